// Package runs provides the per-owner run claim used to keep at most one sync
// and one recommendation run in flight per owner.
//
// A claim is a row keyed by (owner_id, kind). Claiming flips it to running with
// a fresh token in a single conditional UPDATE, so exclusion holds across
// processes sharing the database. A running claim not touched for staleAfter is
// considered abandoned and may be taken over.
//
// # Usage
//
//	token, err := repo.Claim(ownerID, entities.RunKindSync)
//	if err != nil {
//	    return err // *ConflictError when another run holds the claim
//	}
//	defer repo.Release(ownerID, entities.RunKindSync, token, runErr)
package runs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/listenwise/internal/entities"
)

// DefaultStaleAfter is used when NewRepository is given a non-positive duration.
const DefaultStaleAfter = 30 * time.Minute

var (
	ErrAlreadyRunning = errors.New("run already in progress")
	ErrClaimLost      = errors.New("run claim was taken over")
)

// ConflictError is returned when a run of the same kind is already in flight
// for the owner.
type ConflictError struct {
	OwnerID uint
	Kind    entities.RunKind
	Since   time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already running for owner %d since %s", e.Kind, e.OwnerID, e.Since.Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error {
	return ErrAlreadyRunning
}

// Repository handles run_claims operations.
type Repository struct {
	db         *gorm.DB
	staleAfter time.Duration
	now        func() time.Time
}

// NewRepository creates a new runs repository.
func NewRepository(db *gorm.DB, staleAfter time.Duration) *Repository {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Repository{db: db, staleAfter: staleAfter, now: time.Now}
}

// Claim marks a run as started and returns its token.
func (r *Repository) Claim(ownerID uint, kind entities.RunKind) (string, error) {
	now := r.now()

	seed := entities.RunClaim{
		OwnerID:   ownerID,
		Kind:      kind,
		Status:    entities.RunStatusCompleted,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return "", fmt.Errorf("seed run claim: %w", err)
	}

	token := uuid.NewString()
	result := r.db.Model(&entities.RunClaim{}).
		Where("owner_id = ? AND kind = ?", ownerID, kind).
		Where("(status <> ? OR updated_at < ?)", entities.RunStatusRunning, now.Add(-r.staleAfter)).
		Updates(map[string]any{
			"status":       entities.RunStatusRunning,
			"token":        token,
			"error":        "",
			"started_at":   now,
			"updated_at":   now,
			"completed_at": nil,
		})
	if result.Error != nil {
		return "", fmt.Errorf("claim run: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		held, err := r.Get(ownerID, kind)
		if err != nil {
			return "", err
		}
		conflict := &ConflictError{OwnerID: ownerID, Kind: kind}
		if held != nil {
			conflict.Since = held.StartedAt
		}
		return "", conflict
	}

	return token, nil
}

// Heartbeat refreshes a running claim so long runs are not treated as stale.
func (r *Repository) Heartbeat(ownerID uint, kind entities.RunKind, token string) error {
	result := r.db.Model(&entities.RunClaim{}).
		Where("owner_id = ? AND kind = ? AND token = ? AND status = ?", ownerID, kind, token, entities.RunStatusRunning).
		Updates(map[string]any{"updated_at": r.now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// Release ends the run identified by token, recording runErr if non-nil.
func (r *Repository) Release(ownerID uint, kind entities.RunKind, token string, runErr error) error {
	now := r.now()
	updates := map[string]any{
		"status":       entities.RunStatusCompleted,
		"token":        "",
		"updated_at":   now,
		"completed_at": now,
	}
	if runErr != nil {
		updates["status"] = entities.RunStatusFailed
		updates["error"] = runErr.Error()
	} else {
		updates["last_success_started_at"] = gorm.Expr("started_at")
	}

	result := r.db.Model(&entities.RunClaim{}).
		Where("owner_id = ? AND kind = ? AND token = ?", ownerID, kind, token).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// Get returns the claim row, or nil if the owner never ran this kind.
func (r *Repository) Get(ownerID uint, kind entities.RunKind) (*entities.RunClaim, error) {
	var claim entities.RunClaim
	err := r.db.Where("owner_id = ? AND kind = ?", ownerID, kind).First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// IsRunning reports whether a live (non-stale) run holds the claim.
func (r *Repository) IsRunning(ownerID uint, kind entities.RunKind) (bool, error) {
	claim, err := r.Get(ownerID, kind)
	if err != nil || claim == nil {
		return false, err
	}
	if claim.Status != entities.RunStatusRunning {
		return false, nil
	}
	return !claim.UpdatedAt.Before(r.now().Add(-r.staleAfter)), nil
}

// LastSuccessStartedAt returns the start time of the latest successful run.
func (r *Repository) LastSuccessStartedAt(ownerID uint, kind entities.RunKind) (*time.Time, error) {
	claim, err := r.Get(ownerID, kind)
	if err != nil || claim == nil {
		return nil, err
	}
	return claim.LastSuccessStartedAt, nil
}
