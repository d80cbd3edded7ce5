package entities

import "time"

const (
	DefaultLanguage       = "english"
	DefaultMarketplace    = "us"
	DefaultCurrency       = "USD"
	DefaultPriceThreshold = 12.66
)

// Preferences are per-owner settings read by sync and recommendation runs.
type Preferences struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	OwnerID              uint      `gorm:"uniqueIndex;not null" json:"owner_id"`
	PreferredLanguage    string    `gorm:"size:50" json:"preferred_language" validate:"omitempty,max=50"`
	Marketplace          string    `gorm:"size:8" json:"marketplace" validate:"required,oneof=us uk de fr ca au in it es jp"`
	MaxPrice             float64   `json:"max_price" validate:"gt=0"`
	Currency             string    `gorm:"size:3" json:"currency" validate:"required,len=3"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	PriceAlertEnabled    bool      `json:"price_alert_enabled"`
	NewReleaseAlerts     bool      `json:"new_release_alerts"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (Preferences) TableName() string {
	return "preferences"
}

// DefaultPreferences returns the settings used for owners that never saved any.
func DefaultPreferences(ownerID uint) Preferences {
	return Preferences{
		OwnerID:              ownerID,
		PreferredLanguage:    DefaultLanguage,
		Marketplace:          DefaultMarketplace,
		MaxPrice:             DefaultPriceThreshold,
		Currency:             DefaultCurrency,
		NotificationsEnabled: true,
		PriceAlertEnabled:    true,
		NewReleaseAlerts:     true,
	}
}
