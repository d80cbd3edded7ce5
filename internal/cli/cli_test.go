package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/crypto"
	"github.com/mrlokans/listenwise/internal/database/dbtest"
	"github.com/mrlokans/listenwise/internal/session"
)

type fakeStore struct {
	library []catalog.RawEntry
}

func (f *fakeStore) Login(ctx context.Context, req catalog.LoginRequest) (*catalog.LoginResult, error) {
	if req.Password != "secret" {
		return nil, catalog.ErrInvalidCredentials
	}
	return &catalog.LoginResult{Challenge: &catalog.OTPChallenge{Marketplace: req.Marketplace, State: []byte("state")}}, nil
}

func (f *fakeStore) SubmitOTP(ctx context.Context, challenge catalog.OTPChallenge, code string) (*catalog.SessionState, error) {
	if code != "654321" {
		return nil, catalog.ErrOTPRejected
	}
	return &catalog.SessionState{AccessToken: "a", RefreshToken: "r", LocaleCode: challenge.Marketplace, Expires: time.Now().Add(time.Hour)}, nil
}

func (f *fakeStore) Refresh(ctx context.Context, prior *catalog.SessionState) (*catalog.SessionState, error) {
	next := *prior
	next.Expires = time.Now().Add(time.Hour)
	return &next, nil
}

func (f *fakeStore) ListLibrary(ctx context.Context, s *catalog.SessionState, pageToken string, pageSize int) (*catalog.LibraryPage, error) {
	return &catalog.LibraryPage{Entries: f.library}, nil
}

func (f *fakeStore) SearchByContributor(ctx context.Context, s *catalog.SessionState, name string, kind catalog.ContributorKind, limit int) ([]catalog.RawEntry, error) {
	return nil, nil
}

func (f *fakeStore) SearchInSeries(ctx context.Context, s *catalog.SessionState, series catalog.SeriesRef, limit int) ([]catalog.RawEntry, error) {
	return nil, nil
}

func newTestConnector(t *testing.T) *connector.Connector {
	t.Helper()
	box, err := crypto.NewSecretBox([]byte(strings.Repeat("m", crypto.MinMasterKeySize)))
	require.NoError(t, err)

	store := &fakeStore{library: []catalog.RawEntry{
		{ASIN: "B000000001", Title: "Dune", Authors: []catalog.RawContributor{{Name: "Frank Herbert"}}, Language: "english"},
	}}
	return connector.New(dbtest.Open(t), box, store, store, connector.Options{})
}

func login(t *testing.T, conn *connector.Connector, ownerID uint) {
	t.Helper()
	cmd := &LoginCommand{
		OwnerID:     ownerID,
		Marketplace: "us",
		Username:    "me@example.com",
		Password:    "secret",
		OTP:         "654321",
		Out:         &bytes.Buffer{},
	}
	require.NoError(t, cmd.run(context.Background(), conn))
}

func TestLoginCommand_ParseFlags(t *testing.T) {
	t.Run("owner is required", func(t *testing.T) {
		err := NewLoginCommand().ParseFlags([]string{"-user", "me@example.com"})
		assert.ErrorContains(t, err, "-owner")
	})

	t.Run("unknown marketplace", func(t *testing.T) {
		err := NewLoginCommand().ParseFlags([]string{"-owner", "1", "-marketplace", "xx"})
		assert.ErrorIs(t, err, catalog.ErrInvalidMarketplace)
	})

	t.Run("password from environment", func(t *testing.T) {
		t.Setenv(PasswordEnv, "from-env")
		cmd := NewLoginCommand()
		require.NoError(t, cmd.ParseFlags([]string{"-owner", "3", "-marketplace", "UK"}))
		assert.Equal(t, uint(3), cmd.OwnerID)
		assert.Equal(t, "from-env", cmd.Password)
	})
}

func TestLoginCommand_Interactive(t *testing.T) {
	conn := newTestConnector(t)
	var out bytes.Buffer

	cmd := &LoginCommand{
		OwnerID:     1,
		Marketplace: "us",
		Username:    "me@example.com",
		Interactive: true,
		In:          strings.NewReader("secret\n654321\n"),
		Out:         &out,
	}

	require.NoError(t, cmd.run(context.Background(), conn))
	assert.Contains(t, out.String(), "Password: ")
	assert.Contains(t, out.String(), "One-time code: ")
	assert.Contains(t, out.String(), "Status: active")
}

func TestLoginCommand_DeferredOTP(t *testing.T) {
	conn := newTestConnector(t)
	var out bytes.Buffer

	cmd := &LoginCommand{OwnerID: 1, Marketplace: "us", Username: "me@example.com", Password: "secret", Out: &out}
	require.NoError(t, cmd.run(context.Background(), conn))
	assert.Contains(t, out.String(), "One-time code required")

	ref := ""
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "One-time code required. Challenge: ") {
			ref = strings.TrimPrefix(line, "One-time code required. Challenge: ")
		}
	}
	require.NotEmpty(t, ref)

	out.Reset()
	otp := &OTPCommand{ChallengeRef: ref, Code: "000000", Out: &out}
	err := otp.run(context.Background(), conn)
	assert.ErrorIs(t, err, catalog.ErrOTPRejected)
	assert.Contains(t, out.String(), "attempts left")

	out.Reset()
	otp.Code = "654321"
	require.NoError(t, otp.run(context.Background(), conn))
	assert.Contains(t, out.String(), "Status: active")
}

func TestOTPCommand_ParseFlags(t *testing.T) {
	assert.ErrorContains(t, NewOTPCommand().ParseFlags([]string{"-code", "1"}), "-challenge")
	assert.ErrorContains(t, NewOTPCommand().ParseFlags([]string{"-challenge", "x"}), "-code")
	assert.NoError(t, NewOTPCommand().ParseFlags([]string{"-challenge", "x", "-code", "1"}))
}

func TestSyncCommand(t *testing.T) {
	conn := newTestConnector(t)

	t.Run("without session", func(t *testing.T) {
		cmd := &SyncCommand{OwnerID: 1, Out: &bytes.Buffer{}}
		assert.ErrorIs(t, cmd.run(context.Background(), conn), session.ErrNoSession)
	})

	login(t, conn, 1)

	t.Run("text report", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &SyncCommand{OwnerID: 1, Recommend: true, Out: &out}
		require.NoError(t, cmd.run(context.Background(), conn))
		assert.Contains(t, out.String(), "Created:   1")
		assert.Contains(t, out.String(), "Generated 0 recommendations")
	})

	t.Run("json report", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &SyncCommand{OwnerID: 1, JSON: true, Out: &out}
		require.NoError(t, cmd.run(context.Background(), conn))
		assert.Contains(t, out.String(), `"skipped": 1`)
	})
}

func TestRecommendCommand(t *testing.T) {
	t.Run("parse flags", func(t *testing.T) {
		assert.ErrorContains(t, NewRecommendCommand().ParseFlags([]string{"-owner", "1", "-kind", "genre"}), "unknown kind")
		assert.ErrorContains(t, NewRecommendCommand().ParseFlags([]string{"-owner", "1", "-authors", "-1"}), "negative")

		cmd := NewRecommendCommand()
		require.NoError(t, cmd.ParseFlags([]string{"-owner", "1", "-authors", "3", "-list", "-kind", "series"}))
		assert.Equal(t, 3, cmd.Limits.Authors)
		assert.True(t, cmd.ListOnly)
	})

	t.Run("empty list", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &RecommendCommand{OwnerID: 1, ListOnly: true, Out: &out}
		require.NoError(t, cmd.run(context.Background(), newTestConnector(t)))
		assert.Equal(t, "No recommendations.\n", out.String())
	})

	t.Run("dismiss unknown", func(t *testing.T) {
		cmd := &RecommendCommand{OwnerID: 1, Dismiss: 99, Out: &bytes.Buffer{}}
		assert.Error(t, cmd.run(context.Background(), newTestConnector(t)))
	})
}

func TestPreferencesCommand(t *testing.T) {
	t.Run("only given flags are updated", func(t *testing.T) {
		cmd := NewPreferencesCommand()
		require.NoError(t, cmd.ParseFlags([]string{"-owner", "1", "-language", "", "-max-price", "9.99"}))
		require.NotNil(t, cmd.Update.PreferredLanguage)
		assert.Equal(t, "", *cmd.Update.PreferredLanguage)
		require.NotNil(t, cmd.Update.MaxPrice)
		assert.Equal(t, 9.99, *cmd.Update.MaxPrice)
		assert.Nil(t, cmd.Update.Marketplace)
		assert.Nil(t, cmd.Update.NotificationsEnabled)
	})

	t.Run("show then update", func(t *testing.T) {
		conn := newTestConnector(t)
		var out bytes.Buffer

		show := &PreferencesCommand{OwnerID: 1, Out: &out}
		require.NoError(t, show.run(context.Background(), conn))
		assert.Contains(t, out.String(), "Marketplace:   us")

		out.Reset()
		marketplace := "de"
		update := &PreferencesCommand{OwnerID: 1, Update: connector.PreferencesUpdate{Marketplace: &marketplace}, JSON: true, Out: &out}
		require.NoError(t, update.run(context.Background(), conn))
		assert.Contains(t, out.String(), `"marketplace": "de"`)
	})
}

func TestStatusCommand(t *testing.T) {
	conn := newTestConnector(t)
	var out bytes.Buffer

	status := &StatusCommand{OwnerID: 1, Out: &out}
	require.NoError(t, status.run(context.Background(), conn))
	assert.Contains(t, out.String(), "not connected")
	assert.Contains(t, out.String(), "never")

	login(t, conn, 1)

	out.Reset()
	require.NoError(t, status.run(context.Background(), conn))
	assert.Contains(t, out.String(), "Connection:  active (us)")
	assert.Contains(t, out.String(), "Library:     0 books (0 hidden)")

	out.Reset()
	disconnect := &StatusCommand{OwnerID: 1, Disconnect: true, Out: &out}
	require.NoError(t, disconnect.run(context.Background(), conn))
	assert.Contains(t, out.String(), "Owner 1 disconnected")

	assert.ErrorIs(t, disconnect.run(context.Background(), conn), connector.ErrNotConnected)
}

func TestGenKeyCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := &GenKeyCommand{Out: &out}
	require.NoError(t, cmd.Run())

	key, err := crypto.ParseMasterKey(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Len(t, key, crypto.KeySize)
}

func TestHistoryCommand(t *testing.T) {
	t.Run("flags", func(t *testing.T) {
		cmd := NewHistoryCommand()
		assert.Error(t, cmd.ParseFlags([]string{"-owner", "1", "-type", "billing"}))

		cmd = NewHistoryCommand()
		require.NoError(t, cmd.ParseFlags([]string{"-owner", "1", "-type", "auth"}))
		assert.Equal(t, 20, cmd.Limit)
	})

	conn := newTestConnector(t)
	var out bytes.Buffer
	history := &HistoryCommand{OwnerID: 1, Limit: 20, Out: &out}

	require.NoError(t, history.run(context.Background(), conn))
	assert.Equal(t, "No events.\n", out.String())

	login(t, conn, 1)

	require.Eventually(t, func() bool {
		out.Reset()
		return history.run(context.Background(), conn) == nil &&
			strings.Contains(out.String(), "otp_submit") &&
			strings.Contains(out.String(), "login")
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "ACTION")

	out.Reset()
	history.Type = "sync"
	require.NoError(t, history.run(context.Background(), conn))
	assert.Equal(t, "No events.\n", out.String())
}

func TestLibraryCommand(t *testing.T) {
	t.Run("flags", func(t *testing.T) {
		assert.ErrorContains(t, NewLibraryCommand().ParseFlags([]string{"-owner", "1", "-sort", "rating"}), "unknown sort")
		assert.Error(t, NewLibraryCommand().ParseFlags([]string{"-owner", "1", "-limit", "0"}))

		cmd := NewLibraryCommand()
		require.NoError(t, cmd.ParseFlags([]string{"-owner", "1", "-author", "herbert", "-sort", "runtime", "-desc", "-all"}))
		assert.Equal(t, "herbert", cmd.Query.Author)
		assert.True(t, cmd.Query.Desc)
		assert.True(t, cmd.Query.IncludeHidden)
		assert.Equal(t, 20, cmd.Query.Limit)
	})

	conn := newTestConnector(t)
	var out bytes.Buffer

	list := &LibraryCommand{OwnerID: 1, Out: &out}
	require.NoError(t, list.run(context.Background(), conn))
	assert.Equal(t, "No books.\n", out.String())

	login(t, conn, 1)
	require.NoError(t, (&SyncCommand{OwnerID: 1, Out: &bytes.Buffer{}}).run(context.Background(), conn))

	out.Reset()
	require.NoError(t, list.run(context.Background(), conn))
	assert.Contains(t, out.String(), "B000000001")
	assert.Contains(t, out.String(), "Frank Herbert")

	out.Reset()
	show := &LibraryCommand{OwnerID: 1, ASIN: "B000000001", Out: &out}
	require.NoError(t, show.run(context.Background(), conn))
	assert.Contains(t, out.String(), "Title:      Dune")
	assert.Contains(t, out.String(), "Authors:    Frank Herbert")

	missing := &LibraryCommand{OwnerID: 2, ASIN: "B000000001", Out: &bytes.Buffer{}}
	assert.ErrorIs(t, missing.run(context.Background(), conn), connector.ErrBookNotFound)

	out.Reset()
	status := &StatusCommand{OwnerID: 1, Out: &out}
	require.NoError(t, status.run(context.Background(), conn))
	assert.Contains(t, out.String(), "Library:     1 books (0 hidden)")
}
