// Package scheduler enqueues periodic background work: library syncs for
// every connected owner and the maintenance cleanups.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"
	"github.com/robinjoseph08/golib/logger"

	"github.com/mrlokans/listenwise/internal/tasks"
)

const (
	DefaultSyncSchedule      = "0 3 * * *"
	DefaultChallengeSchedule = "*/15 * * * *"
	DefaultAuditSchedule     = "30 4 * * *"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// OwnerLister lists the owners with an active remote session.
type OwnerLister interface {
	ListActiveOwners() ([]uint, error)
}

// Enqueuer adds tasks to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// Config contains the schedules. An empty schedule disables its job.
type Config struct {
	SyncEnabled        bool
	SyncSchedule       string
	RecommendAfterSync bool
	ChallengeSchedule  string
	AuditSchedule      string
	AuditRetentionDays int
}

// DefaultConfig keeps the periodic sync off and the cleanups on.
func DefaultConfig() Config {
	return Config{
		SyncSchedule:       DefaultSyncSchedule,
		RecommendAfterSync: true,
		ChallengeSchedule:  DefaultChallengeSchedule,
		AuditSchedule:      DefaultAuditSchedule,
	}
}

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// NextRun returns when schedule fires next after from.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Scheduler runs the cron jobs.
type Scheduler struct {
	owners   OwnerLister
	enqueuer Enqueuer
	config   Config
	log      logger.Logger

	cron        *cron.Cron
	syncEntryID cron.EntryID
	mu          sync.RWMutex
	isRunning   bool
	cancelFunc  context.CancelFunc
}

// New creates a scheduler instance.
func New(owners OwnerLister, enqueuer Enqueuer, config Config) *Scheduler {
	return &Scheduler{
		owners:   owners,
		enqueuer: enqueuer,
		config:   config,
		log:      logger.New(),
		cron:     cron.New(cron.WithParser(parser)),
	}
}

// Start registers the enabled jobs and starts the cron loop. It stops when
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.config.SyncEnabled {
		if err := ValidateSchedule(s.config.SyncSchedule); err != nil {
			return fmt.Errorf("invalid sync schedule '%s': %w", s.config.SyncSchedule, err)
		}
		entryID, err := s.cron.AddFunc(s.config.SyncSchedule, func() { s.EnqueueSyncs(context.Background()) })
		if err != nil {
			return fmt.Errorf("failed to schedule sync job: %w", err)
		}
		s.syncEntryID = entryID
	}

	if s.config.ChallengeSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.ChallengeSchedule, func() {
			s.enqueue(context.Background(), tasks.CleanupChallengesTask{})
		}); err != nil {
			return fmt.Errorf("failed to schedule challenge cleanup: %w", err)
		}
	}

	if s.config.AuditSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.AuditSchedule, func() {
			s.enqueue(context.Background(), tasks.CleanupAuditEventsTask{RetentionDays: s.config.AuditRetentionDays})
		}); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup: %w", err)
		}
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	data := logger.Data{"sync_enabled": s.config.SyncEnabled}
	if s.config.SyncEnabled {
		data["sync_schedule"] = s.config.SyncSchedule
		if next, err := NextRun(s.config.SyncSchedule, time.Now()); err == nil {
			data["next_sync"] = next
		}
	}
	s.log.Info("scheduler started", data)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for running jobs and stops the cron loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning = false
	s.cancelFunc = nil

	s.log.Info("scheduler stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextSyncTime returns when the next periodic sync fires, or nil when the
// sync job is not scheduled.
func (s *Scheduler) NextSyncTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || s.syncEntryID == 0 {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.syncEntryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// EnqueueSyncs adds one sync task per active owner and returns how many were
// queued. Owners already syncing are rejected later by the run claim.
func (s *Scheduler) EnqueueSyncs(ctx context.Context) int {
	owners, err := s.owners.ListActiveOwners()
	if err != nil {
		s.log.Err(err).Error("failed to list owners for periodic sync")
		return 0
	}

	queued := 0
	for _, ownerID := range owners {
		if s.enqueue(ctx, tasks.SyncLibraryTask{OwnerID: ownerID, Recommend: s.config.RecommendAfterSync}) {
			queued++
		}
	}

	s.log.Info("periodic sync enqueued", logger.Data{"owners": len(owners), "queued": queued})
	return queued
}

func (s *Scheduler) enqueue(ctx context.Context, task backlite.Task) bool {
	id, err := s.enqueuer.Enqueue(ctx, task)
	if err != nil {
		s.log.Err(err).Error("failed to enqueue task", logger.Data{"queue": task.Config().Name})
		return false
	}
	s.log.Info("task enqueued", logger.Data{"queue": task.Config().Name, "task_id": id})
	return true
}
