// Package vault stores each owner's remote session sealed under a key derived
// for that owner.
package vault

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/crypto"
	"github.com/mrlokans/listenwise/internal/entities"
)

var ErrNotFound = errors.New("no stored session for owner")

// Store persists sealed credential rows.
type Store interface {
	Get(ownerID uint) (*entities.StoredCredential, error)
	Save(cred *entities.StoredCredential) error
	UpdateStatus(ownerID uint, status entities.CredentialStatus, lastError string) error
	Delete(ownerID uint) error
}

// Vault seals session state before it reaches the Store.
type Vault struct {
	box   *crypto.SecretBox
	store Store
	now   func() time.Time
}

// New creates a Vault.
func New(box *crypto.SecretBox, store Store) *Vault {
	return &Vault{box: box, store: store, now: time.Now}
}

func scope(ownerID uint) string {
	return strconv.FormatUint(uint64(ownerID), 10)
}

// Store seals state and replaces any prior entry for the owner. The row is
// marked active with the given expiry.
func (v *Vault) Store(ownerID uint, state *catalog.SessionState, expiresAt time.Time) error {
	if state == nil {
		return errors.New("session state is nil")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	sealed, err := v.box.SealFor(scope(ownerID), payload)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}

	now := v.now()
	cred := &entities.StoredCredential{
		OwnerID:          ownerID,
		Marketplace:      state.LocaleCode,
		EncryptedPayload: sealed,
		Status:           entities.CredentialStatusActive,
		ExpiresAt:        expiresAt,
		LastRefreshedAt:  &now,
	}
	if err := v.store.Save(cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Load decrypts the owner's session. It returns ErrNotFound when no usable
// row exists and crypto.ErrDecryptionFailed when the payload cannot be opened.
func (v *Vault) Load(ownerID uint) (*catalog.SessionState, error) {
	cred, err := v.store.Get(ownerID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if cred == nil || cred.EncryptedPayload == "" {
		return nil, ErrNotFound
	}

	payload, err := v.box.OpenFor(scope(ownerID), cred.EncryptedPayload)
	if err != nil {
		return nil, err
	}

	var state catalog.SessionState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", crypto.ErrDecryptionFailed, err)
	}
	return &state, nil
}

// IsExpired reports whether the owner's session has expired at now. A missing
// entry counts as expired.
func (v *Vault) IsExpired(ownerID uint, now time.Time) (bool, error) {
	cred, err := v.store.Get(ownerID)
	if err != nil {
		return false, fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return true, nil
	}
	return cred.IsExpired(now), nil
}

// Status returns the owner's credential metadata without opening the payload.
// The result is nil when the owner has no entry.
func (v *Vault) Status(ownerID uint) (*entities.StoredCredential, error) {
	cred, err := v.store.Get(ownerID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if cred != nil {
		cred.EncryptedPayload = ""
	}
	return cred, nil
}

// MarkPending records that an interactive login is waiting on an OTP. An
// owner without a row gets a placeholder row with no payload.
func (v *Vault) MarkPending(ownerID uint, marketplace string) error {
	cred, err := v.store.Get(ownerID)
	if err != nil {
		return fmt.Errorf("get credential: %w", err)
	}
	if cred != nil {
		return v.store.UpdateStatus(ownerID, entities.CredentialStatusPending, "")
	}
	return v.store.Save(&entities.StoredCredential{
		OwnerID:     ownerID,
		Marketplace: marketplace,
		Status:      entities.CredentialStatusPending,
	})
}

// MarkFailed records a terminal failure. The payload is discarded so a
// failed entry can never be loaded.
func (v *Vault) MarkFailed(ownerID uint, marketplace string, reason string) error {
	cred, err := v.store.Get(ownerID)
	if err != nil {
		return fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return v.store.Save(&entities.StoredCredential{
			OwnerID:     ownerID,
			Marketplace: marketplace,
			Status:      entities.CredentialStatusFailed,
			LastError:   truncate(reason, 500),
		})
	}

	cred.EncryptedPayload = ""
	cred.Status = entities.CredentialStatusFailed
	cred.LastError = truncate(reason, 500)
	return v.store.Save(cred)
}

// SealState seals an opaque blob (an OTP continuation) under the owner's key.
func (v *Vault) SealState(ownerID uint, state []byte) (string, error) {
	return v.box.SealFor(scope(ownerID), state)
}

// OpenState reverses SealState.
func (v *Vault) OpenState(ownerID uint, sealed string) ([]byte, error) {
	return v.box.OpenFor(scope(ownerID), sealed)
}

// Delete removes the owner's entry.
func (v *Vault) Delete(ownerID uint) error {
	return v.store.Delete(ownerID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
