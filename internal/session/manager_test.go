package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/crypto"
	"github.com/mrlokans/listenwise/internal/database/challenges"
	"github.com/mrlokans/listenwise/internal/database/credentials"
	"github.com/mrlokans/listenwise/internal/database/dbtest"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/vault"
)

type fakeAuth struct {
	mu sync.Mutex

	loginResult *catalog.LoginResult
	loginErr    error
	otpCode     string
	otpErr      error
	refreshErr  error

	logins    int
	otps      int
	refreshes int
}

func (f *fakeAuth) Login(ctx context.Context, req catalog.LoginRequest) (*catalog.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeAuth) SubmitOTP(ctx context.Context, challenge catalog.OTPChallenge, code string) (*catalog.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otps++
	if f.otpErr != nil {
		return nil, f.otpErr
	}
	if string(challenge.State) != "continuation" || code != f.otpCode {
		return nil, catalog.ErrOTPRejected
	}
	return freshSession(challenge.Marketplace), nil
}

func (f *fakeAuth) Refresh(ctx context.Context, prior *catalog.SessionState) (*catalog.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	next := *prior
	next.AccessToken = "refreshed"
	next.Expires = time.Now().Add(time.Hour)
	return &next, nil
}

func freshSession(marketplace string) *catalog.SessionState {
	return &catalog.SessionState{
		AccessToken:  "access",
		RefreshToken: "refresh",
		LocaleCode:   marketplace,
		Expires:      time.Now().Add(time.Hour),
	}
}

type fixture struct {
	manager    *Manager
	vault      *vault.Vault
	creds      *credentials.Repository
	challenges *challenges.Repository
	auth       *fakeAuth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	box, err := crypto.NewSecretBox([]byte(strings.Repeat("s", crypto.MinMasterKeySize)))
	require.NoError(t, err)

	creds := credentials.NewRepository(db)
	v := vault.New(box, creds)
	ch := challenges.NewRepository(db)
	auth := &fakeAuth{otpCode: "123456"}

	return &fixture{
		manager:    NewManager(v, ch, auth, nil, Config{}),
		vault:      v,
		creds:      creds,
		challenges: ch,
		auth:       auth,
	}
}

func (f *fixture) status(t *testing.T, ownerID uint) entities.CredentialStatus {
	t.Helper()
	cred, err := f.creds.Get(ownerID)
	require.NoError(t, err)
	require.NotNil(t, cred)
	return cred.Status
}

func TestManager_Authenticate_StoredSession(t *testing.T) {
	f := newFixture(t)
	session := freshSession("us")
	require.NoError(t, f.vault.Store(1, session, session.Expires))

	result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
	assert.Zero(t, f.auth.logins)
	assert.Zero(t, f.auth.refreshes)
}

func TestManager_Authenticate_ExpiredSessionRefreshes(t *testing.T) {
	f := newFixture(t)
	session := freshSession("us")
	session.Expires = time.Now().Add(-time.Minute)
	require.NoError(t, f.vault.Store(1, session, session.Expires))

	result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
	assert.Equal(t, 1, f.auth.refreshes)
	assert.Zero(t, f.auth.logins)

	stored, err := f.vault.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", stored.AccessToken)
}

func TestManager_Authenticate_RejectedRefreshFallsBackToLogin(t *testing.T) {
	f := newFixture(t)
	session := freshSession("us")
	session.Expires = time.Now().Add(-time.Minute)
	require.NoError(t, f.vault.Store(1, session, session.Expires))
	f.auth.refreshErr = catalog.ErrRefreshRejected

	t.Run("without credentials", func(t *testing.T) {
		result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us"})
		assert.ErrorIs(t, err, ErrCredentialsRequired)
		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, entities.CredentialStatusFailed, f.status(t, 1))
	})

	t.Run("with credentials", func(t *testing.T) {
		f.auth.loginResult = &catalog.LoginResult{Session: freshSession("us")}

		result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us", Username: "u", Password: "p"})
		require.NoError(t, err)
		assert.Equal(t, StatusActive, result.Status)
		assert.Equal(t, 1, f.auth.logins)
		assert.Equal(t, entities.CredentialStatusActive, f.status(t, 1))
	})
}

func TestManager_Authenticate_MarketplaceSwitchWithRequestLogger(t *testing.T) {
	f := newFixture(t)
	session := freshSession("us")
	require.NoError(t, f.vault.Store(1, session, session.Expires))
	f.auth.loginResult = &catalog.LoginResult{Session: freshSession("uk")}

	ctx := logger.New().ID("req-42").WithContext(context.Background())
	result, err := f.manager.Authenticate(ctx, AuthRequest{OwnerID: 1, Marketplace: "uk", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
	assert.Equal(t, 1, f.auth.logins, "a session for another marketplace is not reused")

	stored, err := f.vault.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "uk", stored.LocaleCode)
}

func TestManager_Authenticate_TransientRefreshErrorIsSurfaced(t *testing.T) {
	f := newFixture(t)
	session := freshSession("us")
	session.Expires = time.Now().Add(-time.Minute)
	require.NoError(t, f.vault.Store(1, session, session.Expires))
	f.auth.refreshErr = &catalog.RateLimitError{RetryAfter: time.Second}

	result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us", Username: "u", Password: "p"})
	assert.ErrorIs(t, err, catalog.ErrRateLimited)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Zero(t, f.auth.logins, "transient errors are not followed by a login")
	assert.Equal(t, entities.CredentialStatusActive, f.status(t, 1))
}

func TestManager_Authenticate_UndecryptableSessionForcesLogin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.creds.Save(&entities.StoredCredential{
		OwnerID:          1,
		Marketplace:      "us",
		EncryptedPayload: "bm90LWEtcmVhbC1jaXBoZXJ0ZXh0LWF0LWFsbA==",
		Status:           entities.CredentialStatusActive,
		ExpiresAt:        time.Now().Add(time.Hour),
	}))
	f.auth.loginResult = &catalog.LoginResult{Session: freshSession("us")}

	result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
	assert.Equal(t, 1, f.auth.logins)
}

func TestManager_Authenticate_Errors(t *testing.T) {
	t.Run("invalid marketplace", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "atlantis", Username: "u", Password: "p"})
		assert.ErrorIs(t, err, catalog.ErrInvalidMarketplace)
		assert.Equal(t, StatusFailed, result.Status)
		assert.Zero(t, f.auth.logins)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		f := newFixture(t)
		f.auth.loginErr = catalog.ErrInvalidCredentials

		result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us", Username: "u", Password: "bad"})
		var credErr *CredentialError
		require.ErrorAs(t, err, &credErr)
		assert.ErrorIs(t, err, catalog.ErrInvalidCredentials)
		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, entities.CredentialStatusFailed, f.status(t, 1))
	})

	t.Run("rate limited is distinct", func(t *testing.T) {
		f := newFixture(t)
		f.auth.loginErr = &catalog.RateLimitError{RetryAfter: 30 * time.Second}

		_, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us", Username: "u", Password: "p"})
		assert.ErrorIs(t, err, catalog.ErrRateLimited)
		var credErr *CredentialError
		assert.False(t, errors.As(err, &credErr))
		assert.Equal(t, 1, f.auth.logins, "no automatic retry")
	})
}

func otpFixture(t *testing.T) (*fixture, string) {
	t.Helper()
	f := newFixture(t)
	f.auth.loginResult = &catalog.LoginResult{Challenge: &catalog.OTPChallenge{Marketplace: "us", State: []byte("continuation")}}

	result, err := f.manager.Authenticate(context.Background(), AuthRequest{OwnerID: 1, Marketplace: "us", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.Equal(t, StatusOTPRequired, result.Status)
	require.NotEmpty(t, result.ChallengeRef)
	assert.Equal(t, DefaultMaxOTPAttempts, result.AttemptsRemaining)
	assert.Equal(t, entities.CredentialStatusPending, f.status(t, 1))
	return f, result.ChallengeRef
}

func TestManager_SubmitOTP(t *testing.T) {
	t.Run("challenge state is sealed", func(t *testing.T) {
		f, ref := otpFixture(t)
		challenge, err := f.challenges.Get(ref)
		require.NoError(t, err)
		assert.NotContains(t, challenge.EncryptedState, "continuation")
	})

	t.Run("success activates and consumes challenge", func(t *testing.T) {
		f, ref := otpFixture(t)

		result, err := f.manager.SubmitOTP(context.Background(), ref, "123456")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, result.Status)
		assert.Equal(t, entities.CredentialStatusActive, f.status(t, 1))

		_, err = f.vault.Load(1)
		require.NoError(t, err)

		_, err = f.manager.SubmitOTP(context.Background(), ref, "123456")
		assert.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("wrong code keeps challenge open", func(t *testing.T) {
		f, ref := otpFixture(t)

		result, err := f.manager.SubmitOTP(context.Background(), ref, "000000")
		assert.ErrorIs(t, err, catalog.ErrOTPRejected)
		assert.Equal(t, StatusOTPRequired, result.Status)
		assert.Equal(t, ref, result.ChallengeRef)
		assert.Equal(t, DefaultMaxOTPAttempts-1, result.AttemptsRemaining)

		result, err = f.manager.SubmitOTP(context.Background(), ref, "123456")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, result.Status)
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		f, ref := otpFixture(t)

		for i := 0; i < DefaultMaxOTPAttempts-1; i++ {
			result, err := f.manager.SubmitOTP(context.Background(), ref, "000000")
			require.Error(t, err)
			assert.Equal(t, StatusOTPRequired, result.Status)
		}

		result, err := f.manager.SubmitOTP(context.Background(), ref, "000000")
		assert.ErrorIs(t, err, ErrTooManyAttempts)
		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, entities.CredentialStatusFailed, f.status(t, 1))

		_, err = f.manager.SubmitOTP(context.Background(), ref, "123456")
		assert.ErrorIs(t, err, ErrChallengeNotFound)
		assert.Equal(t, DefaultMaxOTPAttempts, f.auth.otps)
	})

	t.Run("transient error does not consume an attempt", func(t *testing.T) {
		f, ref := otpFixture(t)
		f.auth.otpErr = catalog.ErrNetwork

		result, err := f.manager.SubmitOTP(context.Background(), ref, "123456")
		assert.ErrorIs(t, err, catalog.ErrNetwork)
		assert.Equal(t, StatusFailed, result.Status)

		challenge, err := f.challenges.Get(ref)
		require.NoError(t, err)
		require.NotNil(t, challenge)
		assert.Zero(t, challenge.Attempts)
	})

	t.Run("expired challenge", func(t *testing.T) {
		f, ref := otpFixture(t)
		f.manager.now = func() time.Time { return time.Now().Add(DefaultChallengeTTL + time.Minute) }

		_, err := f.manager.SubmitOTP(context.Background(), ref, "123456")
		assert.ErrorIs(t, err, ErrChallengeExpired)
		assert.Zero(t, f.auth.otps)
	})

	t.Run("unknown challenge", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.manager.SubmitOTP(context.Background(), "missing", "123456")
		assert.ErrorIs(t, err, ErrChallengeNotFound)
		assert.Equal(t, StatusFailed, result.Status)
	})
}

func TestManager_Session(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.Session(context.Background(), 1)
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("valid session", func(t *testing.T) {
		f := newFixture(t)
		session := freshSession("us")
		require.NoError(t, f.vault.Store(1, session, session.Expires))

		got, err := f.manager.Session(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "access", got.AccessToken)
	})

	t.Run("expired session is refreshed", func(t *testing.T) {
		f := newFixture(t)
		session := freshSession("us")
		session.Expires = time.Now().Add(-time.Second)
		require.NoError(t, f.vault.Store(1, session, session.Expires))

		got, err := f.manager.Session(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "refreshed", got.AccessToken)
	})

	t.Run("rejected refresh requires login", func(t *testing.T) {
		f := newFixture(t)
		session := freshSession("us")
		session.Expires = time.Now().Add(-time.Second)
		require.NoError(t, f.vault.Store(1, session, session.Expires))
		f.auth.refreshErr = catalog.ErrRefreshRejected

		_, err := f.manager.Session(context.Background(), 1)
		assert.ErrorIs(t, err, ErrNoSession)
		assert.Equal(t, entities.CredentialStatusFailed, f.status(t, 1))
	})
}

func TestRefresher_RefreshExpiring(t *testing.T) {
	f := newFixture(t)

	soon := freshSession("us")
	soon.Expires = time.Now().Add(2 * time.Minute)
	require.NoError(t, f.vault.Store(1, soon, soon.Expires))

	later := freshSession("us")
	require.NoError(t, f.vault.Store(2, later, later.Expires))

	refresher := NewRefresher(f.manager, f.creds, RefreshConfig{Enabled: true, RefreshMargin: 5 * time.Minute})
	report := refresher.RefreshExpiring(context.Background())
	assert.Equal(t, RefreshReport{Checked: 1, Refreshed: 1}, report)

	got, err := f.vault.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", got.AccessToken)

	got, err = f.vault.Load(2)
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
}
