// Package challenges provides database operations for in-flight OTP challenges.
package challenges

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/listenwise/internal/entities"
)

// Repository handles auth_challenges operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new challenges repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a new challenge. Any earlier open challenge for the same owner
// is discarded so only the latest OTP prompt can be answered.
func (r *Repository) Create(challenge *entities.AuthChallenge) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", challenge.OwnerID).Delete(&entities.AuthChallenge{}).Error; err != nil {
			return err
		}
		return tx.Create(challenge).Error
	})
}

// Get returns the challenge for ref, or nil if it does not exist.
func (r *Repository) Get(ref string) (*entities.AuthChallenge, error) {
	var challenge entities.AuthChallenge
	err := r.db.Where("ref = ?", ref).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// RecordAttempt increments the attempt counter and returns the new count.
func (r *Repository) RecordAttempt(ref string) (int, error) {
	result := r.db.Model(&entities.AuthChallenge{}).
		Where("ref = ?", ref).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var attempts int
	err := r.db.Model(&entities.AuthChallenge{}).
		Where("ref = ?", ref).
		Pluck("attempts", &attempts).Error
	return attempts, err
}

// Delete removes a challenge.
func (r *Repository) Delete(ref string) error {
	return r.db.Where("ref = ?", ref).Delete(&entities.AuthChallenge{}).Error
}

// DeleteExpired removes challenges that expired before now.
// Returns the number of deleted rows.
func (r *Repository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", now).Delete(&entities.AuthChallenge{})
	return result.RowsAffected, result.Error
}
