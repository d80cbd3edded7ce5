package entities

import "time"

type CredentialStatus string

const (
	CredentialStatusPending CredentialStatus = "pending"
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusFailed  CredentialStatus = "failed"
)

// StoredCredential holds one owner's encrypted remote session.
// EncryptedPayload is always sealed; the plaintext never reaches this table.
type StoredCredential struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	OwnerID          uint             `gorm:"uniqueIndex;not null" json:"owner_id"`
	Marketplace      string           `gorm:"size:8;not null" json:"marketplace"`
	EncryptedPayload string           `gorm:"type:text" json:"-"`
	Status           CredentialStatus `gorm:"size:20;not null;default:pending" json:"status"`
	ExpiresAt        time.Time        `json:"expires_at"`
	LastRefreshedAt  *time.Time       `json:"last_refreshed_at,omitempty"`
	LastError        string           `gorm:"size:500" json:"last_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (StoredCredential) TableName() string {
	return "stored_credentials"
}

// IsExpired reports whether the session is past its expiry at now.
func (c *StoredCredential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsExpiringSoon reports whether the session expires within the given window.
func (c *StoredCredential) IsExpiringSoon(now time.Time, window time.Duration) bool {
	return !now.Add(window).Before(c.ExpiresAt)
}
