// Package catalog defines the contracts between the core engines and the
// remote audiobook marketplace: authentication, library listing and search.
//
// The HTTP implementation lives in catalog/audible. Engines depend only on
// the interfaces here so tests can substitute fakes.
package catalog

import (
	"context"
	"time"
)

// SessionState is the remote session material kept in the vault.
// It is sealed before it is persisted and never logged.
type SessionState struct {
	WebsiteCookies            map[string]string `json:"website_cookies,omitempty"`
	ADPToken                  string            `json:"adp_token,omitempty"`
	AccessToken               string            `json:"access_token"`
	RefreshToken              string            `json:"refresh_token"`
	DevicePrivateKey          string            `json:"device_private_key,omitempty"`
	StoreAuthenticationCookie map[string]string `json:"store_authentication_cookie,omitempty"`
	DeviceInfo                map[string]any    `json:"device_info,omitempty"`
	CustomerInfo              map[string]any    `json:"customer_info,omitempty"`
	Expires                   time.Time         `json:"expires"`
	LocaleCode                string            `json:"locale_code"` // marketplace code, e.g. "us"
	WithUsername              bool              `json:"with_username,omitempty"`
	ActivationBytes           string            `json:"activation_bytes,omitempty"`
}

// CanRefresh reports whether the state carries a refresh capability.
func (s *SessionState) CanRefresh() bool {
	return s != nil && s.RefreshToken != ""
}

// LoginRequest holds interactive credentials. Password is never persisted.
type LoginRequest struct {
	Username    string `validate:"required,max=320"`
	Password    string `validate:"required,max=1024"`
	Marketplace string `validate:"required"`
}

// OTPChallenge is the opaque continuation a remote login hands back when it
// needs a one-time passcode.
type OTPChallenge struct {
	Marketplace string
	State       []byte
}

// LoginResult is either an established session or a pending OTP challenge.
type LoginResult struct {
	Session   *SessionState
	Challenge *OTPChallenge
}

// ContributorKind selects which contributor field a search matches.
type ContributorKind string

const (
	ContributorAuthor   ContributorKind = "author"
	ContributorNarrator ContributorKind = "narrator"
)

// RawContributor is an author or narrator as the remote reports it.
type RawContributor struct {
	ID   string
	Name string
}

// RawSeries is a series membership as the remote reports it. Sequence is the
// remote's text ("1", "1.5", "1-3").
type RawSeries struct {
	ID       string
	Title    string
	Sequence string
}

// Price is a candidate's known price.
type Price struct {
	Amount   float64
	Currency string
}

// RawEntry is one catalog item before normalization. Every field except
// Extra is optional; Extra holds attributes without a typed home.
type RawEntry struct {
	ASIN            string
	Title           string
	Subtitle        string
	Authors         []RawContributor
	Narrators       []RawContributor
	Series          []RawSeries
	Language        string
	RuntimeMinutes  *int
	ReleaseDate     string
	PurchaseDate    string
	PercentComplete *float64
	IsFinished      bool
	Price           *Price
	Extra           map[string]any
}

// LibraryPage is one page of the owner's remote library. An empty
// NextPageToken means there are no more pages.
type LibraryPage struct {
	Entries       []RawEntry
	NextPageToken string
}

// SeriesRef identifies a series for search. Title is used by remotes that
// search by name.
type SeriesRef struct {
	ID    string
	Title string
}

// AuthClient performs the remote authentication protocol.
type AuthClient interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	SubmitOTP(ctx context.Context, challenge OTPChallenge, code string) (*SessionState, error)
	Refresh(ctx context.Context, prior *SessionState) (*SessionState, error)
}

// CatalogClient reads the owner's library and searches the marketplace.
type CatalogClient interface {
	ListLibrary(ctx context.Context, session *SessionState, pageToken string, pageSize int) (*LibraryPage, error)
	SearchByContributor(ctx context.Context, session *SessionState, name string, kind ContributorKind, limit int) ([]RawEntry, error)
	SearchInSeries(ctx context.Context, session *SessionState, series SeriesRef, limit int) ([]RawEntry, error)
}
