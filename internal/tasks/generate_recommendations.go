package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robinjoseph08/golib/logger"

	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/recommend"
)

// RecommendationGenerator runs one recommendation pass for an owner.
type RecommendationGenerator interface {
	GenerateRecommendations(ctx context.Context, ownerID uint, limits recommend.Limits) ([]entities.Recommendation, error)
}

// GenerateRecommendationsTask regenerates an owner's recommendations. Zero
// limits use the configured defaults.
type GenerateRecommendationsTask struct {
	OwnerID uint             `json:"owner_id"`
	Limits  recommend.Limits `json:"limits"`
}

// Config returns the queue configuration for recommendation tasks.
func (t GenerateRecommendationsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "generate_recommendations",
		MaxAttempts: 2,
		Backoff:     10 * time.Minute,
		Timeout:     15 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// GenerateRecommendationsProcessor creates a processor function for
// GenerateRecommendationsTask.
func GenerateRecommendationsProcessor(generator RecommendationGenerator) backlite.QueueProcessor[GenerateRecommendationsTask] {
	return func(ctx context.Context, task GenerateRecommendationsTask) error {
		if generator == nil {
			return fmt.Errorf("recommendation generator not configured")
		}

		log := logger.FromContext(ctx)

		recs, err := generator.GenerateRecommendations(ctx, task.OwnerID, task.Limits)
		if err != nil {
			if permanent(err) {
				log.Err(err).Warn("recommendation run not retried", logger.Data{"owner_id": task.OwnerID})
				return nil
			}
			return fmt.Errorf("generate recommendations for owner %d: %w", task.OwnerID, err)
		}

		log.Info("recommendation task finished", logger.Data{"owner_id": task.OwnerID, "generated": len(recs)})
		return nil
	}
}

// NewGenerateRecommendationsQueue creates a backlite queue for recommendation tasks.
func NewGenerateRecommendationsQueue(generator RecommendationGenerator) backlite.Queue {
	return backlite.NewQueue(GenerateRecommendationsProcessor(generator))
}
