package entities

import "time"

// AuthChallenge is an in-flight OTP exchange. EncryptedState holds the remote
// continuation sealed under the owner's key.
type AuthChallenge struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Ref            string    `gorm:"uniqueIndex;size:36;not null" json:"ref"`
	OwnerID        uint      `gorm:"index;not null" json:"owner_id"`
	Marketplace    string    `gorm:"size:8" json:"marketplace"`
	EncryptedState string    `gorm:"type:text" json:"-"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (AuthChallenge) TableName() string {
	return "auth_challenges"
}

func (c *AuthChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
