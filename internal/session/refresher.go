package session

import (
	"context"
	"sync"
	"time"

	"github.com/robinjoseph08/golib/logger"

	"github.com/mrlokans/listenwise/internal/entities"
)

// ExpiringLister lists active credentials close to expiry.
type ExpiringLister interface {
	ListExpiringBefore(cutoff time.Time) ([]entities.StoredCredential, error)
}

// RefreshConfig contains configuration for the background session refresher.
type RefreshConfig struct {
	Enabled       bool          // Enable background refresh
	CheckInterval time.Duration // How often to look for expiring sessions (default: 10m)
	RefreshMargin time.Duration // Refresh sessions expiring within this duration (default: 5m)
}

// DefaultRefreshConfig returns the refresher defaults.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Enabled:       true,
		CheckInterval: 10 * time.Minute,
		RefreshMargin: 5 * time.Minute,
	}
}

// RefreshReport summarizes one refresh pass.
type RefreshReport struct {
	Checked   int
	Refreshed int
	Failed    int
}

// Refresher keeps stored sessions fresh so background runs rarely find an
// expired token.
type Refresher struct {
	mu sync.Mutex

	manager *Manager
	lister  ExpiringLister
	config  RefreshConfig
	log     logger.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefresher creates a Refresher.
func NewRefresher(manager *Manager, lister ExpiringLister, config RefreshConfig) *Refresher {
	defaults := DefaultRefreshConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = defaults.RefreshMargin
	}

	return &Refresher{
		manager: manager,
		lister:  lister,
		config:  config,
		log:     logger.New(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called or ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	if !r.config.Enabled {
		r.log.Info("session refresher disabled")
		close(r.doneCh)
		return
	}

	r.log.Info("session refresher started", logger.Data{
		"interval": r.config.CheckInterval.String(),
		"margin":   r.config.RefreshMargin.String(),
	})

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	r.RefreshExpiring(ctx)

	for {
		select {
		case <-ticker.C:
			r.RefreshExpiring(ctx)
		case <-r.stopCh:
			r.log.Info("session refresher stopping")
			close(r.doneCh)
			return
		case <-ctx.Done():
			r.log.Info("session refresher context cancelled")
			close(r.doneCh)
			return
		}
	}
}

// Stop gracefully stops the refresher.
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// RefreshExpiring refreshes every active session expiring within the margin.
// Failures are logged per owner and do not stop the pass.
func (r *Refresher) RefreshExpiring(ctx context.Context) RefreshReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report RefreshReport
	log := logger.FromContext(ctx)

	now := r.manager.now()
	creds, err := r.lister.ListExpiringBefore(now.Add(r.config.RefreshMargin))
	if err != nil {
		log.Err(err).Error("failed to list expiring sessions")
		return report
	}

	for _, cred := range creds {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		state, err := r.manager.vault.Load(cred.OwnerID)
		if err != nil {
			report.Failed++
			log.Err(err).Warn("failed to load session for refresh", logger.Data{"owner_id": cred.OwnerID})
			continue
		}

		if _, err := r.manager.refresh(ctx, cred.OwnerID, state); err != nil {
			report.Failed++
			log.Err(err).Warn("failed to refresh session", logger.Data{"owner_id": cred.OwnerID})
			continue
		}

		report.Refreshed++
		log.Info("refreshed session", logger.Data{"owner_id": cred.OwnerID, "marketplace": cred.Marketplace})
	}

	return report
}
