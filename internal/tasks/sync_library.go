package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robinjoseph08/golib/logger"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/catalogsync"
	"github.com/mrlokans/listenwise/internal/crypto"
	"github.com/mrlokans/listenwise/internal/database/runs"
	"github.com/mrlokans/listenwise/internal/session"
)

// LibrarySyncer runs one library sync for an owner.
type LibrarySyncer interface {
	SyncLibrary(ctx context.Context, ownerID uint) (*catalogsync.SyncReport, error)
}

// Enqueuer adds follow-up tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// SyncLibraryTask pulls an owner's remote library. With Recommend set, a
// successful sync enqueues a recommendation run.
type SyncLibraryTask struct {
	OwnerID   uint `json:"owner_id"`
	Recommend bool `json:"recommend"`
}

// Config returns the queue configuration for library sync tasks.
func (t SyncLibraryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_library",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     30 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncLibraryProcessor creates a processor function for SyncLibraryTask.
// next may be nil, in which case Recommend is ignored.
func SyncLibraryProcessor(syncer LibrarySyncer, next Enqueuer) backlite.QueueProcessor[SyncLibraryTask] {
	return func(ctx context.Context, task SyncLibraryTask) error {
		if syncer == nil {
			return fmt.Errorf("library syncer not configured")
		}

		log := logger.FromContext(ctx)
		data := logger.Data{"owner_id": task.OwnerID}

		report, err := syncer.SyncLibrary(ctx, task.OwnerID)
		if err != nil {
			if permanent(err) {
				log.Err(err).Warn("library sync not retried", data)
				return nil
			}
			return fmt.Errorf("sync library for owner %d: %w", task.OwnerID, err)
		}

		log.Info("library sync task finished", logger.Data{
			"owner_id":  task.OwnerID,
			"fetched":   report.Fetched,
			"created":   report.Created,
			"updated":   report.Updated,
			"errors":    report.ErrorCount(),
			"truncated": report.Truncated,
		})

		if task.Recommend && next != nil {
			if _, err := next.Enqueue(ctx, GenerateRecommendationsTask{OwnerID: task.OwnerID}); err != nil {
				log.Err(err).Error("failed to enqueue recommendation run", data)
			}
		}
		return nil
	}
}

// NewSyncLibraryQueue creates a backlite queue for library sync tasks.
func NewSyncLibraryQueue(syncer LibrarySyncer, next Enqueuer) backlite.Queue {
	return backlite.NewQueue(SyncLibraryProcessor(syncer, next))
}

// permanent reports errors another attempt cannot fix: the owner must act
// (log in again) or another run already holds the claim.
func permanent(err error) bool {
	return errors.Is(err, runs.ErrAlreadyRunning) ||
		errors.Is(err, session.ErrNoSession) ||
		errors.Is(err, crypto.ErrDecryptionFailed) ||
		catalog.IsCredentialError(err)
}
