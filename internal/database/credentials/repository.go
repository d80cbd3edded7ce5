// Package credentials provides database operations for encrypted session rows.
//
// Rows only ever hold sealed payloads; sealing happens in the vault package.
package credentials

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/listenwise/internal/entities"
)

// Repository handles stored_credentials operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new credentials repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the credential row for an owner, or nil if none exists.
func (r *Repository) Get(ownerID uint) (*entities.StoredCredential, error) {
	var cred entities.StoredCredential
	err := r.db.Where("owner_id = ?", ownerID).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Save creates or replaces the credential row for cred.OwnerID.
func (r *Repository) Save(cred *entities.StoredCredential) error {
	return r.db.Where("owner_id = ?", cred.OwnerID).
		Assign(map[string]any{
			"marketplace":       cred.Marketplace,
			"encrypted_payload": cred.EncryptedPayload,
			"status":            cred.Status,
			"expires_at":        cred.ExpiresAt,
			"last_refreshed_at": cred.LastRefreshedAt,
			"last_error":        cred.LastError,
		}).
		FirstOrCreate(cred).Error
}

// UpdateStatus changes the status of an owner's row without touching the payload.
func (r *Repository) UpdateStatus(ownerID uint, status entities.CredentialStatus, lastError string) error {
	return r.db.Model(&entities.StoredCredential{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastError,
		}).Error
}

// Delete removes an owner's credential row.
func (r *Repository) Delete(ownerID uint) error {
	return r.db.Where("owner_id = ?", ownerID).Delete(&entities.StoredCredential{}).Error
}

// ListExpiringBefore returns active credentials that expire before the cutoff.
func (r *Repository) ListExpiringBefore(cutoff time.Time) ([]entities.StoredCredential, error) {
	var creds []entities.StoredCredential
	err := r.db.Where("status = ? AND expires_at < ?", entities.CredentialStatusActive, cutoff).
		Order("expires_at ASC").
		Find(&creds).Error
	return creds, err
}

// ListActiveOwners returns the owner ids with an active credential.
func (r *Repository) ListActiveOwners() ([]uint, error) {
	var owners []uint
	err := r.db.Model(&entities.StoredCredential{}).
		Where("status = ?", entities.CredentialStatusActive).
		Order("owner_id ASC").
		Pluck("owner_id", &owners).Error
	return owners, err
}
