// Package session turns interactive credentials and OTP codes into a durable
// remote session kept in the vault, and refreshes it silently afterwards.
//
// Authentication is a two-call protocol. Authenticate either returns an
// active session or an otp_required result carrying a challenge reference;
// SubmitOTP completes the exchange. Challenge state is persisted sealed, so
// the second call may land on a different process.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/crypto"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/validation"
	"github.com/mrlokans/listenwise/internal/vault"
)

const (
	DefaultMaxOTPAttempts = 3
	DefaultChallengeTTL   = 15 * time.Minute
)

// AuthStatus is the outcome of an authentication call.
type AuthStatus string

const (
	StatusActive      AuthStatus = "active"
	StatusOTPRequired AuthStatus = "otp_required"
	StatusFailed      AuthStatus = "failed"
)

// AuthResult is returned by Authenticate and SubmitOTP. ChallengeRef is set
// only for StatusOTPRequired.
type AuthResult struct {
	Status            AuthStatus `json:"status"`
	ChallengeRef      string     `json:"challenge_ref,omitempty"`
	AttemptsRemaining int        `json:"attempts_remaining,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

// AuthRequest starts an authentication attempt. Username and Password are
// only needed when no usable session is stored.
type AuthRequest struct {
	OwnerID     uint
	Marketplace string
	Username    string
	Password    string
}

// CredentialVault is the subset of vault.Vault the manager uses.
type CredentialVault interface {
	Store(ownerID uint, state *catalog.SessionState, expiresAt time.Time) error
	Load(ownerID uint) (*catalog.SessionState, error)
	MarkPending(ownerID uint, marketplace string) error
	MarkFailed(ownerID uint, marketplace, reason string) error
	SealState(ownerID uint, state []byte) (string, error)
	OpenState(ownerID uint, sealed string) ([]byte, error)
}

// ChallengeStore persists in-flight OTP challenges.
type ChallengeStore interface {
	Create(challenge *entities.AuthChallenge) error
	Get(ref string) (*entities.AuthChallenge, error)
	RecordAttempt(ref string) (int, error)
	Delete(ref string) error
}

// Auditor records authentication steps.
type Auditor interface {
	LogAuth(ownerID uint, action, marketplace string, err error)
}

// Config tunes the OTP exchange.
type Config struct {
	MaxOTPAttempts int
	ChallengeTTL   time.Duration
}

// Manager implements the authentication state machine for all owners.
type Manager struct {
	vault      CredentialVault
	challenges ChallengeStore
	client     catalog.AuthClient
	validator  *validation.Validator
	auditor    Auditor
	cfg        Config
	now        func() time.Time
}

// NewManager creates a Manager. auditor may be nil.
func NewManager(v CredentialVault, challenges ChallengeStore, client catalog.AuthClient, auditor Auditor, cfg Config) *Manager {
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = DefaultMaxOTPAttempts
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}

	return &Manager{
		vault:      v,
		challenges: challenges,
		client:     client,
		validator:  validation.New(),
		auditor:    auditor,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Authenticate brings the owner to an active session. A stored, unexpired
// session is used without a network call; an expired one is refreshed; only
// when neither works are the interactive credentials submitted.
//
// On failure the result has StatusFailed and the error is typed: a
// *CredentialError, a catalog sentinel (rate limited, network, marketplace)
// or ErrCredentialsRequired.
func (m *Manager) Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error) {
	log := logger.FromContext(ctx)

	market, err := catalog.LookupMarketplace(req.Marketplace)
	if err != nil {
		return failed(err), err
	}

	state, err := m.vault.Load(req.OwnerID)
	switch {
	case err == nil:
		if state.LocaleCode != "" && state.LocaleCode != market.Code {
			log.Info("stored session is for another marketplace", logger.Data{"owner_id": req.OwnerID, "stored": state.LocaleCode, "requested": market.Code})
			break
		}
		if m.now().Before(state.Expires) {
			return active(state), nil
		}

		refreshed, err := m.refresh(ctx, req.OwnerID, state)
		if err == nil {
			return active(refreshed), nil
		}
		if !errors.Is(err, catalog.ErrRefreshRejected) {
			return failed(err), err
		}
		log.Info("refresh rejected, falling back to interactive login", logger.Data{"owner_id": req.OwnerID})

	case errors.Is(err, crypto.ErrDecryptionFailed):
		log.Warn("stored session cannot be decrypted, discarding", logger.Data{"owner_id": req.OwnerID})
		if markErr := m.vault.MarkFailed(req.OwnerID, market.Code, "stored session could not be decrypted"); markErr != nil {
			return failed(markErr), markErr
		}

	case errors.Is(err, vault.ErrNotFound):

	default:
		return failed(err), err
	}

	return m.login(ctx, req, market)
}

func (m *Manager) login(ctx context.Context, req AuthRequest, market catalog.Marketplace) (*AuthResult, error) {
	if req.Username == "" || req.Password == "" {
		return failed(ErrCredentialsRequired), ErrCredentialsRequired
	}

	loginReq := catalog.LoginRequest{Username: req.Username, Password: req.Password, Marketplace: market.Code}
	if err := m.validator.Validate(loginReq); err != nil {
		return failed(err), err
	}

	result, err := m.client.Login(ctx, loginReq)
	m.audit(req.OwnerID, "login", market.Code, err)
	if err != nil {
		return m.fail(req.OwnerID, market.Code, err)
	}

	if result.Challenge != nil {
		return m.openChallenge(req.OwnerID, market.Code, result.Challenge)
	}
	if result.Session == nil {
		err := errors.New("login returned neither session nor challenge")
		return failed(err), err
	}

	if err := m.vault.Store(req.OwnerID, result.Session, result.Session.Expires); err != nil {
		return failed(err), err
	}

	logger.FromContext(ctx).Info("owner authenticated", logger.Data{"owner_id": req.OwnerID, "marketplace": market.Code})
	return active(result.Session), nil
}

func (m *Manager) openChallenge(ownerID uint, marketplace string, challenge *catalog.OTPChallenge) (*AuthResult, error) {
	sealed, err := m.vault.SealState(ownerID, challenge.State)
	if err != nil {
		return failed(err), err
	}

	expiresAt := m.now().Add(m.cfg.ChallengeTTL)
	record := &entities.AuthChallenge{
		Ref:            uuid.NewString(),
		OwnerID:        ownerID,
		Marketplace:    marketplace,
		EncryptedState: sealed,
		MaxAttempts:    m.cfg.MaxOTPAttempts,
		ExpiresAt:      expiresAt,
	}
	if err := m.challenges.Create(record); err != nil {
		return failed(err), fmt.Errorf("create challenge: %w", err)
	}
	if err := m.vault.MarkPending(ownerID, marketplace); err != nil {
		return failed(err), err
	}

	return &AuthResult{
		Status:            StatusOTPRequired,
		ChallengeRef:      record.Ref,
		AttemptsRemaining: record.MaxAttempts,
		ExpiresAt:         &expiresAt,
	}, nil
}

// SubmitOTP answers a challenge opened by Authenticate. A rejected code keeps
// the challenge open (StatusOTPRequired) until MaxOTPAttempts is reached, after
// which the challenge is discarded and the owner is marked failed.
func (m *Manager) SubmitOTP(ctx context.Context, ref, code string) (*AuthResult, error) {
	challenge, err := m.challenges.Get(ref)
	if err != nil {
		return failed(err), err
	}
	if challenge == nil {
		return failed(ErrChallengeNotFound), ErrChallengeNotFound
	}

	if challenge.IsExpired(m.now()) {
		m.discard(ctx, ref)
		return failed(ErrChallengeExpired), ErrChallengeExpired
	}
	if challenge.Attempts >= challenge.MaxAttempts {
		return m.exhausted(ctx, challenge)
	}

	state, err := m.vault.OpenState(challenge.OwnerID, challenge.EncryptedState)
	if err != nil {
		m.discard(ctx, ref)
		return failed(err), err
	}

	session, err := m.client.SubmitOTP(ctx, catalog.OTPChallenge{Marketplace: challenge.Marketplace, State: state}, code)
	m.audit(challenge.OwnerID, "otp_submit", challenge.Marketplace, err)
	if err != nil {
		if !errors.Is(err, catalog.ErrOTPRejected) {
			// The challenge stays open; transient failures do not consume an attempt.
			return failed(err), err
		}

		attempts, recErr := m.challenges.RecordAttempt(ref)
		if recErr != nil {
			return failed(recErr), recErr
		}
		if attempts >= challenge.MaxAttempts {
			return m.exhausted(ctx, challenge)
		}

		credErr := &CredentialError{Reason: "otp rejected", Err: err}
		return &AuthResult{
			Status:            StatusOTPRequired,
			ChallengeRef:      ref,
			AttemptsRemaining: challenge.MaxAttempts - attempts,
			ExpiresAt:         &challenge.ExpiresAt,
			Reason:            credErr.Error(),
		}, credErr
	}

	if err := m.vault.Store(challenge.OwnerID, session, session.Expires); err != nil {
		return failed(err), err
	}
	m.discard(ctx, ref)

	logger.FromContext(ctx).Info("owner authenticated with otp", logger.Data{"owner_id": challenge.OwnerID, "marketplace": challenge.Marketplace})
	return active(session), nil
}

func (m *Manager) exhausted(ctx context.Context, challenge *entities.AuthChallenge) (*AuthResult, error) {
	m.discard(ctx, challenge.Ref)
	credErr := &CredentialError{Reason: "otp attempts exhausted", Err: ErrTooManyAttempts}
	if err := m.vault.MarkFailed(challenge.OwnerID, challenge.Marketplace, credErr.Error()); err != nil {
		return failed(err), err
	}
	return failed(credErr), credErr
}

func (m *Manager) discard(ctx context.Context, ref string) {
	if err := m.challenges.Delete(ref); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to delete otp challenge", logger.Data{"ref": ref})
	}
}

// Session returns a usable session for background runs, refreshing it when
// expired. It never falls back to interactive login.
func (m *Manager) Session(ctx context.Context, ownerID uint) (*catalog.SessionState, error) {
	state, err := m.vault.Load(ownerID)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, ErrNoSession
	}
	if errors.Is(err, crypto.ErrDecryptionFailed) {
		if markErr := m.vault.MarkFailed(ownerID, "", "stored session could not be decrypted"); markErr != nil {
			logger.FromContext(ctx).Err(markErr).Error("failed to mark credential failed", logger.Data{"owner_id": ownerID})
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if m.now().Before(state.Expires) {
		return state, nil
	}

	refreshed, err := m.refresh(ctx, ownerID, state)
	if errors.Is(err, catalog.ErrRefreshRejected) {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return refreshed, err
}

// refresh renews state and stores the result. A rejected refresh marks the
// owner failed; transient errors leave the stored session untouched.
func (m *Manager) refresh(ctx context.Context, ownerID uint, state *catalog.SessionState) (*catalog.SessionState, error) {
	if !state.CanRefresh() {
		return nil, fmt.Errorf("%w: no refresh token", catalog.ErrRefreshRejected)
	}

	refreshed, err := m.client.Refresh(ctx, state)
	m.audit(ownerID, "refresh", state.LocaleCode, err)
	if err != nil {
		if catalog.IsCredentialError(err) {
			if markErr := m.vault.MarkFailed(ownerID, state.LocaleCode, err.Error()); markErr != nil {
				return nil, markErr
			}
			if !errors.Is(err, catalog.ErrRefreshRejected) {
				err = fmt.Errorf("%w: %v", catalog.ErrRefreshRejected, err)
			}
		}
		return nil, err
	}

	if err := m.vault.Store(ownerID, refreshed, refreshed.Expires); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// fail converts a remote error into a failed result. Credential errors mark
// the owner failed; transient errors are surfaced as-is for the caller to
// back off.
func (m *Manager) fail(ownerID uint, marketplace string, err error) (*AuthResult, error) {
	if catalog.IsCredentialError(err) {
		credErr := &CredentialError{Reason: "login rejected", Err: err}
		if markErr := m.vault.MarkFailed(ownerID, marketplace, credErr.Error()); markErr != nil {
			return failed(markErr), markErr
		}
		return failed(credErr), credErr
	}
	return failed(err), err
}

func (m *Manager) audit(ownerID uint, action, marketplace string, err error) {
	if m.auditor != nil {
		m.auditor.LogAuth(ownerID, action, marketplace, err)
	}
}

func active(state *catalog.SessionState) *AuthResult {
	expires := state.Expires
	return &AuthResult{Status: StatusActive, ExpiresAt: &expires}
}

func failed(err error) *AuthResult {
	return &AuthResult{Status: StatusFailed, Reason: err.Error()}
}
