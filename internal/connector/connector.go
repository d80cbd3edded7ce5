// Package connector exposes the account connector's operations as plain
// function calls: authentication, library sync, recommendation generation,
// preferences and recommendation listing. A thin API layer, the CLI and the
// task workers all go through a *Connector.
package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"gorm.io/gorm"

	"github.com/mrlokans/listenwise/internal/audit"
	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/catalogsync"
	"github.com/mrlokans/listenwise/internal/crypto"
	auditrepo "github.com/mrlokans/listenwise/internal/database/audit"
	"github.com/mrlokans/listenwise/internal/database/challenges"
	"github.com/mrlokans/listenwise/internal/database/credentials"
	"github.com/mrlokans/listenwise/internal/database/library"
	"github.com/mrlokans/listenwise/internal/database/preferences"
	"github.com/mrlokans/listenwise/internal/database/recommendations"
	"github.com/mrlokans/listenwise/internal/database/runs"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/recommend"
	"github.com/mrlokans/listenwise/internal/session"
	"github.com/mrlokans/listenwise/internal/utils"
	"github.com/mrlokans/listenwise/internal/validation"
	"github.com/mrlokans/listenwise/internal/vault"
)

var (
	// ErrNotConnected is returned for owners that never stored a credential.
	ErrNotConnected = errors.New("owner has no stored credential")
	// ErrBookNotFound is returned when the owner's library has no such book.
	ErrBookNotFound = errors.New("book not in library")
)

// Options tunes the components built by New.
type Options struct {
	Session    session.Config
	Sync       catalogsync.Config
	Recommend  recommend.Config
	Limits     recommend.Limits
	StaleAfter time.Duration
}

// Connector wires the session manager and both engines to one database.
type Connector struct {
	sessions    *session.Manager
	syncer      *catalogsync.Engine
	recommender *recommend.Engine

	vault       *vault.Vault
	credentials *credentials.Repository
	challenges  *challenges.Repository
	prefs       *preferences.Repository
	library     *library.Repository
	recs        *recommendations.Repository
	runs        *runs.Repository
	audit       *audit.Service

	validator *validation.Validator
	limits    recommend.Limits
}

// New builds a Connector over db. box seals every owner's session; auth and
// client talk to the remote marketplace.
func New(db *gorm.DB, box *crypto.SecretBox, auth catalog.AuthClient, client catalog.CatalogClient, opts Options) *Connector {
	credRepo := credentials.NewRepository(db)
	challengeRepo := challenges.NewRepository(db)
	prefsRepo := preferences.NewRepository(db)
	libraryRepo := library.NewRepository(db)
	recsRepo := recommendations.NewRepository(db)
	runsRepo := runs.NewRepository(db, opts.StaleAfter)
	auditService := audit.NewService(auditrepo.NewRepository(db))

	v := vault.New(box, credRepo)
	manager := session.NewManager(v, challengeRepo, auth, auditService, opts.Session)

	limits := opts.Limits
	if limits == (recommend.Limits{}) {
		limits = recommend.DefaultLimits()
	}

	return &Connector{
		sessions:    manager,
		syncer:      catalogsync.NewEngine(manager, client, libraryRepo, runsRepo, prefsRepo, auditService, opts.Sync),
		recommender: recommend.NewEngine(manager, client, libraryRepo, recsRepo, runsRepo, prefsRepo, auditService, opts.Recommend),
		vault:       v,
		credentials: credRepo,
		challenges:  challengeRepo,
		prefs:       prefsRepo,
		library:     libraryRepo,
		recs:        recsRepo,
		runs:        runsRepo,
		audit:       auditService,
		validator:   validation.New(),
		limits:      limits,
	}
}

// Sessions returns the session manager, for the background refresher.
func (c *Connector) Sessions() *session.Manager { return c.sessions }

// Credentials returns the credential repository.
func (c *Connector) Credentials() *credentials.Repository { return c.credentials }

// Challenges returns the OTP challenge repository.
func (c *Connector) Challenges() *challenges.Repository { return c.challenges }

// Audit returns the audit service.
func (c *Connector) Audit() *audit.Service { return c.audit }

// Authenticate brings the owner to an active remote session, or opens an OTP
// challenge. See session.Manager.Authenticate.
func (c *Connector) Authenticate(ctx context.Context, req session.AuthRequest) (*session.AuthResult, error) {
	return c.sessions.Authenticate(ctx, req)
}

// SubmitOTP completes an open challenge.
func (c *Connector) SubmitOTP(ctx context.Context, challengeRef, code string) (*session.AuthResult, error) {
	return c.sessions.SubmitOTP(ctx, challengeRef, code)
}

// SyncLibrary runs one library sync for the owner.
func (c *Connector) SyncLibrary(ctx context.Context, ownerID uint) (*catalogsync.SyncReport, error) {
	return c.syncer.Sync(ctx, ownerID)
}

// GenerateRecommendations runs one recommendation pass. Zero limits use the
// configured defaults.
func (c *Connector) GenerateRecommendations(ctx context.Context, ownerID uint, limits recommend.Limits) ([]entities.Recommendation, error) {
	if limits == (recommend.Limits{}) {
		limits = c.limits
	}
	return c.recommender.Generate(ctx, ownerID, limits)
}

// CredentialStatus returns the owner's credential metadata. The sealed
// payload is never included.
func (c *Connector) CredentialStatus(ownerID uint) (*entities.StoredCredential, error) {
	cred, err := c.vault.Status(ownerID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNotConnected
	}
	return cred, nil
}

// Disconnect forgets the owner's remote session. The synced library and
// recommendations are kept.
func (c *Connector) Disconnect(ctx context.Context, ownerID uint) error {
	cred, err := c.vault.Status(ownerID)
	if err != nil {
		return err
	}
	if cred == nil {
		return ErrNotConnected
	}
	if err := c.vault.Delete(ownerID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	logger.FromContext(ctx).Info("credential removed", logger.Data{"owner_id": ownerID})
	c.audit.LogAuth(ownerID, "disconnect", cred.Marketplace, nil)
	return nil
}

// GetPreferences returns the owner's preferences, defaults included.
func (c *Connector) GetPreferences(ownerID uint) (*entities.Preferences, error) {
	return c.prefs.Get(ownerID)
}

// PreferencesUpdate is a partial update; nil fields keep their value.
type PreferencesUpdate struct {
	PreferredLanguage    *string
	Marketplace          *string
	MaxPrice             *float64
	Currency             *string
	NotificationsEnabled *bool
	PriceAlertEnabled    *bool
	NewReleaseAlerts     *bool
}

// UpdatePreferences validates and saves the owner's preferences. A language
// change re-applies visibility to the whole library right away.
func (c *Connector) UpdatePreferences(ctx context.Context, ownerID uint, update PreferencesUpdate) (*entities.Preferences, error) {
	log := logger.FromContext(ctx)

	prefs, err := c.prefs.Get(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	previousLanguage := prefs.PreferredLanguage

	var changed []string
	if update.PreferredLanguage != nil {
		prefs.PreferredLanguage = strings.ToLower(strings.TrimSpace(*update.PreferredLanguage))
		changed = append(changed, "preferred_language")
	}
	if update.Marketplace != nil {
		prefs.Marketplace = strings.ToLower(strings.TrimSpace(*update.Marketplace))
		changed = append(changed, "marketplace")
	}
	if update.MaxPrice != nil {
		prefs.MaxPrice = *update.MaxPrice
		changed = append(changed, "max_price")
	}
	if update.Currency != nil {
		prefs.Currency = strings.ToUpper(strings.TrimSpace(*update.Currency))
		changed = append(changed, "currency")
	}
	if update.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *update.NotificationsEnabled
		changed = append(changed, "notifications_enabled")
	}
	if update.PriceAlertEnabled != nil {
		prefs.PriceAlertEnabled = *update.PriceAlertEnabled
		changed = append(changed, "price_alert_enabled")
	}
	if update.NewReleaseAlerts != nil {
		prefs.NewReleaseAlerts = *update.NewReleaseAlerts
		changed = append(changed, "new_release_alerts")
	}

	if err := c.validator.Validate(prefs); err != nil {
		return nil, err
	}
	if err := c.prefs.Save(prefs); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}

	if utils.LanguageCode(previousLanguage) != utils.LanguageCode(prefs.PreferredLanguage) {
		preferred := prefs.PreferredLanguage
		n, err := c.library.ApplyVisibility(ownerID, func(language string) bool {
			return utils.LanguageMatches(preferred, language)
		})
		if err != nil {
			return nil, fmt.Errorf("apply visibility: %w", err)
		}
		log.Info("library visibility updated", logger.Data{"owner_id": ownerID, "changed": n})
	}

	if len(changed) > 0 {
		c.audit.LogPreferences(ownerID, "Updated "+strings.Join(changed, ", "))
	}
	return prefs, nil
}

// ListRecommendations returns the owner's current recommendations: not
// dismissed and not older than the latest successful generation run.
func (c *Connector) ListRecommendations(ownerID uint, kind entities.RecommendationKind, limit int) ([]entities.Recommendation, error) {
	since, err := c.runs.LastSuccessStartedAt(ownerID, entities.RunKindRecommend)
	if err != nil {
		return nil, fmt.Errorf("read last run: %w", err)
	}
	return c.recs.List(ownerID, recommendations.ListOptions{Kind: kind, Since: since, Limit: limit})
}

// DismissRecommendation hides a recommendation permanently.
func (c *Connector) DismissRecommendation(ownerID, id uint) error {
	return c.recs.Dismiss(ownerID, id)
}

// RunStatus returns the owner's latest run of the given kind, or nil if
// none ever started.
func (c *Connector) RunStatus(ownerID uint, kind entities.RunKind) (*entities.RunClaim, error) {
	return c.runs.Get(ownerID, kind)
}

// RunActive reports whether a live run of the given kind holds the owner's
// claim. A running claim whose heartbeat went stale is not active.
func (c *Connector) RunActive(ownerID uint, kind entities.RunKind) (bool, error) {
	return c.runs.IsRunning(ownerID, kind)
}

// LibraryPage is one page of an owner's library.
type LibraryPage struct {
	Entries []entities.LibraryEntry `json:"entries"`
	Total   int64                   `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// Library lists the owner's synced books matching q.
func (c *Connector) Library(ownerID uint, q library.EntryQuery) (*LibraryPage, error) {
	if !library.ValidSort(q.Sort) {
		return nil, fmt.Errorf("unknown sort %q", q.Sort)
	}
	entries, total, err := c.library.ListEntries(ownerID, q)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	if entries == nil {
		entries = []entities.LibraryEntry{}
	}
	return &LibraryPage{Entries: entries, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// LibrarySummary counts an owner's library entries.
type LibrarySummary struct {
	Total   int64 `json:"total"`
	Visible int64 `json:"visible"`
}

// LibrarySummary returns how many books the owner has and how many pass the
// language filter.
func (c *Connector) LibrarySummary(ownerID uint) (*LibrarySummary, error) {
	total, visible, err := c.library.CountEntries(ownerID)
	if err != nil {
		return nil, fmt.Errorf("count library: %w", err)
	}
	return &LibrarySummary{Total: total, Visible: visible}, nil
}

// BookDetail is a book together with the owner's entry for it.
type BookDetail struct {
	Book  *entities.Book         `json:"book"`
	Entry *entities.LibraryEntry `json:"entry"`
}

// Book looks up one book of the owner's library by ASIN. Books the owner does
// not hold return ErrBookNotFound, hidden ones included.
func (c *Connector) Book(ownerID uint, asin string) (*BookDetail, error) {
	asin = utils.NormalizeASIN(asin)
	if asin == "" {
		return nil, ErrBookNotFound
	}
	book, err := c.library.GetBookByASIN(asin)
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	entry, err := c.library.EntryForBook(ownerID, book.ID)
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	if entry == nil {
		return nil, ErrBookNotFound
	}
	return &BookDetail{Book: book, Entry: entry}, nil
}
