package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robinjoseph08/golib/logger"
)

// Housekeeping queues prune rows that only matter for a while: audit events
// past their retention and OTP challenges nobody answered.

var errNoCleaner = errors.New("cleaner not configured")

// housekeepingQueue shares retention settings between the cleanup queues.
// Finished tasks are dropped after a day; payloads survive only on failure.
func housekeepingQueue(name string, attempts int, backoff, timeout time.Duration) backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        name,
		MaxAttempts: attempts,
		Backoff:     backoff,
		Timeout:     timeout,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// AuditEventCleaner deletes audit events older than a retention window.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupAuditEventsTask prunes the audit log. Zero RetentionDays falls back
// to DefaultConfig.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return housekeepingQueue("cleanup_audit_events", 3, 5*time.Minute, 2*time.Minute)
}

func (t CleanupAuditEventsTask) retentionDays() int {
	if t.RetentionDays > 0 {
		return t.RetentionDays
	}
	return DefaultConfig().AuditRetentionDays
}

func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("audit events: %w", errNoCleaner)
		}

		days := task.retentionDays()
		deleted, err := cleaner.DeleteOldEvents(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			return fmt.Errorf("delete audit events: %w", err)
		}
		logger.FromContext(ctx).Info("audit log pruned", logger.Data{"deleted": deleted, "retention_days": days})
		return nil
	}
}

func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}

// ChallengeCleaner deletes OTP challenges whose expiry is before now.
type ChallengeCleaner interface {
	DeleteExpired(now time.Time) (int64, error)
}

// CleanupChallengesTask removes abandoned OTP challenges. A missed run is
// picked up by the next one, so it is never retried.
type CleanupChallengesTask struct{}

func (t CleanupChallengesTask) Config() backlite.QueueConfig {
	return housekeepingQueue("cleanup_challenges", 1, time.Minute, time.Minute)
}

func CleanupChallengesProcessor(cleaner ChallengeCleaner) backlite.QueueProcessor[CleanupChallengesTask] {
	return func(ctx context.Context, _ CleanupChallengesTask) error {
		if cleaner == nil {
			return fmt.Errorf("otp challenges: %w", errNoCleaner)
		}

		deleted, err := cleaner.DeleteExpired(time.Now())
		if err != nil {
			return fmt.Errorf("delete expired challenges: %w", err)
		}
		if deleted > 0 {
			logger.FromContext(ctx).Info("expired otp challenges removed", logger.Data{"deleted": deleted})
		}
		return nil
	}
}

func NewCleanupChallengesQueue(cleaner ChallengeCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupChallengesProcessor(cleaner))
}
