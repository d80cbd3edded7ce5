// Package preferences provides database operations for per-owner preferences.
//
// # Usage
//
//	repo := preferences.NewRepository(db)
//	prefs, err := repo.Get(ownerID) // defaults when the owner never saved any
package preferences

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/listenwise/internal/entities"
)

// Repository handles preferences operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new preferences repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the owner's preferences, falling back to defaults.
func (r *Repository) Get(ownerID uint) (*entities.Preferences, error) {
	var prefs entities.Preferences
	err := r.db.Where("owner_id = ?", ownerID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := entities.DefaultPreferences(ownerID)
		return &defaults, nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// Save creates or updates the owner's preferences.
func (r *Repository) Save(prefs *entities.Preferences) error {
	return r.db.Where("owner_id = ?", prefs.OwnerID).
		Assign(map[string]any{
			"preferred_language":    prefs.PreferredLanguage,
			"marketplace":           prefs.Marketplace,
			"max_price":             prefs.MaxPrice,
			"currency":              prefs.Currency,
			"notifications_enabled": prefs.NotificationsEnabled,
			"price_alert_enabled":   prefs.PriceAlertEnabled,
			"new_release_alerts":    prefs.NewReleaseAlerts,
		}).
		FirstOrCreate(prefs).Error
}
