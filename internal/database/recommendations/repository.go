// Package recommendations provides database operations for generated
// recommendations.
//
// Rows are never deleted by regeneration. Listing hides rows older than the
// caller-supplied cutoff (normally the start of the last successful run) and
// rows the owner dismissed.
package recommendations

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/listenwise/internal/entities"
)

var ErrNotFound = errors.New("recommendation not found")

// Repository handles recommendation operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new recommendations repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert creates or refreshes the row keyed by (owner, asin, kind, source).
// The dismissed flag of an existing row is preserved.
func (r *Repository) Upsert(rec *entities.Recommendation) error {
	return r.db.Where("owner_id = ? AND book_asin = ? AND kind = ? AND source_name = ?",
		rec.OwnerID, rec.BookASIN, rec.Kind, rec.SourceName).
		Assign(map[string]any{
			"title":           rec.Title,
			"authors":         rec.Authors,
			"narrators":       rec.Narrators,
			"language":        rec.Language,
			"price":           rec.Price,
			"currency":        rec.Currency,
			"confidence":      rec.Confidence,
			"purchase_method": rec.PurchaseMethod,
			"generated_at":    rec.GeneratedAt,
		}).
		FirstOrCreate(rec).Error
}

// ListOptions narrows List.
type ListOptions struct {
	Kind  entities.RecommendationKind
	Since *time.Time
	Limit int
}

// List returns the owner's non-dismissed recommendations, highest confidence first.
func (r *Repository) List(ownerID uint, opts ListOptions) ([]entities.Recommendation, error) {
	query := r.db.Where("owner_id = ? AND dismissed = ?", ownerID, false)
	if opts.Kind != "" {
		query = query.Where("kind = ?", opts.Kind)
	}
	if opts.Since != nil {
		query = query.Where("generated_at >= ?", *opts.Since)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var recs []entities.Recommendation
	err := query.Order("confidence DESC, generated_at DESC, id ASC").Find(&recs).Error
	return recs, err
}

// Dismiss hides a recommendation for good.
func (r *Repository) Dismiss(ownerID, id uint) error {
	result := r.db.Model(&entities.Recommendation{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("dismissed", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
