// Package entrypoint runs the long-lived serve process: task workers, the
// periodic scheduler, the session refresher and the optional ops HTTP server.
package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robinjoseph08/golib/logger"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
	http_controllers "github.com/mrlokans/listenwise/internal/http"
	"github.com/mrlokans/listenwise/internal/scheduler"
	"github.com/mrlokans/listenwise/internal/session"
	"github.com/mrlokans/listenwise/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// TaskConfig maps the environment configuration onto the task queue config.
func TaskConfig(cfg *config.Config) tasks.Config {
	return tasks.Config{
		Workers:            cfg.Tasks.Workers,
		ReleaseAfter:       cfg.Tasks.ReleaseAfter,
		CleanupInterval:    cfg.Tasks.CleanupInterval,
		AuditRetentionDays: cfg.Audit.RetentionDays,
	}
}

// SchedulerConfig maps the environment configuration onto the scheduler config.
func SchedulerConfig(cfg *config.Config) scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.SyncEnabled = cfg.Sync.ScheduleEnabled
	if cfg.Sync.Schedule != "" {
		sc.SyncSchedule = cfg.Sync.Schedule
	}
	sc.RecommendAfterSync = cfg.Sync.Recommend
	sc.AuditRetentionDays = cfg.Audit.RetentionDays
	return sc
}

// RefreshConfig maps the environment configuration onto the refresher config.
func RefreshConfig(cfg *config.Config) session.RefreshConfig {
	return session.RefreshConfig{
		Enabled:       cfg.Session.RefreshEnabled,
		CheckInterval: cfg.Session.RefreshInterval,
		RefreshMargin: cfg.Session.RefreshMargin,
	}
}

// Run starts every background component and blocks until SIGINT or SIGTERM.
func Run(cfg *config.Config, version string) error {
	log := logger.New()
	log.Info("starting listenwise", logger.Data{"version": version})

	if cfg.Sync.ScheduleEnabled {
		if err := scheduler.ValidateSchedule(cfg.Sync.Schedule); err != nil {
			return fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", cfg.Sync.Schedule, err)
		}
	}

	conn, db, err := connector.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Err(err).Error("error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var taskClient *tasks.Client
	var sched *scheduler.Scheduler
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, TaskConfig(cfg))
		if err != nil {
			return fmt.Errorf("initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Err(err).Error("error closing task client")
			}
		}()

		taskClient.Register(
			tasks.NewSyncLibraryQueue(conn, taskClient),
			tasks.NewGenerateRecommendationsQueue(conn),
			tasks.NewCleanupAuditEventsQueue(conn.Audit()),
			tasks.NewCleanupChallengesQueue(conn.Challenges()),
		)
		go taskClient.Start(ctx)

		sched = scheduler.New(conn.Credentials(), taskClient, SchedulerConfig(cfg))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Warn("task queue disabled; periodic sync and cleanups will not run")
	}

	refreshCfg := RefreshConfig(cfg)
	var refresher *session.Refresher
	if refreshCfg.Enabled {
		refresher = session.NewRefresher(conn.Sessions(), conn.Credentials(), refreshCfg)
		go refresher.Start(ctx)
	}

	var srv *http.Server
	if cfg.HTTP.Enabled {
		routerCfg := http_controllers.RouterConfig{
			Database:    db,
			OwnerStatus: conn,
			Library:     conn,
			Version:     version,
		}
		if taskClient != nil {
			routerCfg.TaskQueue = taskClient
			routerCfg.TaskStatus = taskClient
		}

		srv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
			Handler:           http_controllers.NewRouter(routerCfg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("starting server", logger.Data{"addr": srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Error("listen failed")
				cancel()
			}
		}()
	}

	onShutdown := func(ctx context.Context) {
		if sched != nil {
			sched.Stop()
		}
		if refresher != nil {
			refresher.Stop()
		}
		if taskClient != nil {
			taskClient.Stop(ctx)
		}
	}

	return wait(ctx, srv, time.Duration(cfg.Global.ShutdownTimeoutInSeconds)*time.Second, onShutdown)
}

// wait blocks until a signal arrives or ctx ends, then shuts everything down
// within timeout.
func wait(ctx context.Context, srv *http.Server, timeout time.Duration, onShutdown ShutdownFunc) error {
	log := logger.New()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Info("shutting down", logger.Data{"signal": sig.String(), "timeout": timeout.String()})
	case <-ctx.Done():
		log.Warn("shutting down after a component failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if onShutdown != nil {
		onShutdown(shutdownCtx)
	}

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
	}

	log.Info("server exiting")
	return nil
}
