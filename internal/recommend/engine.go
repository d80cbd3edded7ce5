// Package recommend derives purchase suggestions from an owner's synced
// library.
//
// A run picks the owner's top authors, narrators and series, searches the
// remote catalog for more of each, drops anything the owner already holds
// and stores one row per (book, reason). Rows are upserted with the run's
// start time; older rows stay in place and are hidden at listing time.
package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/retry"
	"github.com/mrlokans/listenwise/internal/utils"
)

const (
	DefaultLimit         = 5
	DefaultSearchResults = 20
)

// Limits caps how many sources of each kind a run searches.
type Limits struct {
	Authors   int `json:"authors"`
	Narrators int `json:"narrators"`
	Series    int `json:"series"`
}

// DefaultLimits returns five of each.
func DefaultLimits() Limits {
	return Limits{Authors: DefaultLimit, Narrators: DefaultLimit, Series: DefaultLimit}
}

// SessionSource hands out a usable remote session for an owner.
type SessionSource interface {
	Session(ctx context.Context, ownerID uint) (*catalog.SessionState, error)
}

// Searcher is the search half of catalog.CatalogClient.
type Searcher interface {
	SearchByContributor(ctx context.Context, session *catalog.SessionState, name string, kind catalog.ContributorKind, limit int) ([]catalog.RawEntry, error)
	SearchInSeries(ctx context.Context, session *catalog.SessionState, series catalog.SeriesRef, limit int) ([]catalog.RawEntry, error)
}

// LibraryReader reads the owner's library with books and links preloaded.
type LibraryReader interface {
	Entries(ownerID uint) ([]entities.LibraryEntry, error)
}

// Store persists recommendations.
type Store interface {
	Upsert(rec *entities.Recommendation) error
}

// RunClaimer provides per-owner mutual exclusion. A claim that is not
// heartbeated within the stale window may be taken over by another run.
type RunClaimer interface {
	Claim(ownerID uint, kind entities.RunKind) (string, error)
	Get(ownerID uint, kind entities.RunKind) (*entities.RunClaim, error)
	Heartbeat(ownerID uint, kind entities.RunKind, token string) error
	Release(ownerID uint, kind entities.RunKind, token string, runErr error) error
}

// PreferencesReader returns an owner's preferences, defaults included.
type PreferencesReader interface {
	Get(ownerID uint) (*entities.Preferences, error)
}

// Auditor records finished runs.
type Auditor interface {
	LogRecommend(ownerID uint, generated, failedSources int, err error)
}

// Config tunes a run. PriceThreshold applies when the owner has none.
type Config struct {
	SearchResults  int
	PriceThreshold float64
	Retry          retry.Policy
}

// Engine generates recommendations.
type Engine struct {
	sessions SessionSource
	searcher Searcher
	library  LibraryReader
	store    Store
	runs     RunClaimer
	prefs    PreferencesReader
	auditor  Auditor
	cfg      Config
	tracer   trace.Tracer
}

// NewEngine creates a recommendation engine. auditor may be nil.
func NewEngine(sessions SessionSource, searcher Searcher, library LibraryReader, store Store, runs RunClaimer, prefs PreferencesReader, auditor Auditor, cfg Config) *Engine {
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = DefaultSearchResults
	}
	if cfg.PriceThreshold <= 0 {
		cfg.PriceThreshold = entities.DefaultPriceThreshold
	}

	return &Engine{
		sessions: sessions,
		searcher: searcher,
		library:  library,
		store:    store,
		runs:     runs,
		prefs:    prefs,
		auditor:  auditor,
		cfg:      cfg,
		tracer:   otel.Tracer("listenwise/recommend"),
	}
}

// run carries the per-generation state.
type run struct {
	ownerID   uint
	session   *catalog.SessionState
	prefs     *entities.Preferences
	owned     ownership
	total     int
	threshold float64
	startedAt time.Time

	recs   []entities.Recommendation
	failed int
}

// Generate runs one recommendation pass for the owner and returns the rows
// it wrote, in the order they were produced. A second call while one is in
// flight fails with a *runs.ConflictError.
//
// A failed search for one source is logged and skipped. Credential errors
// and persistence errors abort the run.
func (e *Engine) Generate(ctx context.Context, ownerID uint, limits Limits) (recs []entities.Recommendation, err error) {
	ctx, span := e.tracer.Start(ctx, "recommend.Generate", trace.WithAttributes(attribute.Int("owner.id", int(ownerID))))
	defer span.End()

	log := logger.FromContext(ctx)

	token, err := e.runs.Claim(ownerID, entities.RunKindRecommend)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}

	r := &run{ownerID: ownerID}

	defer func() {
		if relErr := e.runs.Release(ownerID, entities.RunKindRecommend, token, err); relErr != nil {
			log.Err(relErr).Error("failed to release recommendation claim", logger.Data{"owner_id": ownerID})
			if err == nil {
				err = fmt.Errorf("release claim: %w", relErr)
			}
		}
		if e.auditor != nil {
			e.auditor.LogRecommend(ownerID, len(r.recs), r.failed, err)
		}

		span.SetAttributes(
			attribute.Int("recommend.generated", len(r.recs)),
			attribute.Int("recommend.failed_sources", r.failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	// Rows carry the claim's start time so listing can compare against the
	// last successful run.
	claim, err := e.runs.Get(ownerID, entities.RunKindRecommend)
	if err != nil {
		return nil, fmt.Errorf("read run claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("run claim for owner %d disappeared", ownerID)
	}
	r.startedAt = claim.StartedAt

	if r.prefs, err = e.prefs.Get(ownerID); err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	r.threshold = r.prefs.MaxPrice
	if r.threshold <= 0 {
		r.threshold = e.cfg.PriceThreshold
	}

	entries, err := e.library.Entries(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	r.owned = newOwnership(entries)

	var visible []entities.LibraryEntry
	for _, entry := range entries {
		if entry.Visible {
			visible = append(visible, entry)
		}
	}
	r.total = len(visible)

	authors, narrators, series := selectSources(visible, limits)
	sources := make([]source, 0, len(authors)+len(narrators)+len(series))
	sources = append(sources, authors...)
	sources = append(sources, narrators...)
	sources = append(sources, series...)
	if len(sources) == 0 {
		log.Info("no sources in library, nothing to recommend", logger.Data{"owner_id": ownerID})
		return nil, nil
	}

	if r.session, err = e.sessions.Session(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("obtain session: %w", err)
	}

	log.Info("recommendation run started", logger.Data{"owner_id": ownerID, "sources": len(sources)})

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return r.recs, err
		}
		if err := e.processSource(ctx, r, src); err != nil {
			return r.recs, err
		}
		if err := e.runs.Heartbeat(ownerID, entities.RunKindRecommend, token); err != nil {
			return r.recs, fmt.Errorf("heartbeat: %w", err)
		}
	}

	log.Info("recommendation run finished", logger.Data{
		"owner_id":       ownerID,
		"generated":      len(r.recs),
		"failed_sources": r.failed,
	})
	return r.recs, nil
}

// processSource searches one source and stores its candidates. Only errors
// that must abort the run are returned.
func (e *Engine) processSource(ctx context.Context, r *run, src source) error {
	ctx, span := e.tracer.Start(ctx, "recommend.source", trace.WithAttributes(
		attribute.String("source.kind", string(src.Kind)),
		attribute.Int("source.count", src.Count),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	var candidates []catalog.RawEntry
	err := retry.Do(ctx, e.cfg.Retry, catalog.IsTransient, func(ctx context.Context) error {
		var err error
		candidates, err = e.search(ctx, r.session, src)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if catalog.IsCredentialError(err) {
			return fmt.Errorf("search %s %q: %w", src.Kind, src.Name, err)
		}
		r.failed++
		log.Err(err).Warn("source search failed, skipping", logger.Data{"owner_id": r.ownerID, "kind": src.Kind, "source": src.Name})
		return nil
	}

	seen := map[string]bool{}
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, ok := e.evaluate(r, src, candidate)
		if !ok || seen[rec.BookASIN] {
			continue
		}
		seen[rec.BookASIN] = true

		if err := e.store.Upsert(rec); err != nil {
			return fmt.Errorf("store recommendation: %w", err)
		}
		r.recs = append(r.recs, *rec)
	}

	span.SetAttributes(attribute.Int("source.candidates", len(candidates)))
	return nil
}

func (e *Engine) search(ctx context.Context, session *catalog.SessionState, src source) ([]catalog.RawEntry, error) {
	switch src.Kind {
	case entities.RecommendationKindAuthor:
		return e.searcher.SearchByContributor(ctx, session, src.Name, catalog.ContributorAuthor, e.cfg.SearchResults)
	case entities.RecommendationKindNarrator:
		return e.searcher.SearchByContributor(ctx, session, src.Name, catalog.ContributorNarrator, e.cfg.SearchResults)
	default:
		return e.searcher.SearchInSeries(ctx, session, catalog.SeriesRef{ID: src.ExternalID, Title: src.Name}, e.cfg.SearchResults)
	}
}

// evaluate applies the hard filters and scores a candidate.
func (e *Engine) evaluate(r *run, src source, candidate catalog.RawEntry) (*entities.Recommendation, bool) {
	asin := utils.NormalizeASIN(candidate.ASIN)
	title := strings.TrimSpace(candidate.Title)
	if asin == "" || title == "" {
		return nil, false
	}

	switch src.Kind {
	case entities.RecommendationKindAuthor:
		if !credits(candidate.Authors, src.Name) {
			return nil, false
		}
	case entities.RecommendationKindNarrator:
		if !credits(candidate.Narrators, src.Name) {
			return nil, false
		}
	}

	primaryAuthor := ""
	if len(candidate.Authors) > 0 {
		primaryAuthor = candidate.Authors[0].Name
	}
	if r.owned.owns(asin, title, primaryAuthor) {
		return nil, false
	}

	if !utils.LanguageMatches(r.prefs.PreferredLanguage, candidate.Language) {
		return nil, false
	}

	confidence := seriesConfidence
	if src.Kind != entities.RecommendationKindSeries {
		confidence = contributorConfidence(src.Count, r.total)
	}

	rec := &entities.Recommendation{
		OwnerID:     r.ownerID,
		BookASIN:    asin,
		Kind:        src.Kind,
		SourceName:  src.Name,
		Title:       title,
		Authors:     joinNames(candidate.Authors),
		Narrators:   joinNames(candidate.Narrators),
		Language:    strings.ToLower(strings.TrimSpace(candidate.Language)),
		Confidence:  confidence,
		GeneratedAt: r.startedAt,
	}
	if candidate.Price != nil {
		amount := candidate.Price.Amount
		rec.Price = &amount
		rec.Currency = candidate.Price.Currency
	}
	rec.PurchaseMethod = PurchaseMethod(rec.Price, r.threshold)

	return rec, true
}

func credits(contributors []catalog.RawContributor, name string) bool {
	for _, c := range contributors {
		if utils.SameName(c.Name, name) {
			return true
		}
	}
	return false
}

func joinNames(contributors []catalog.RawContributor) string {
	names := make([]string, 0, len(contributors))
	for _, c := range contributors {
		if name := strings.TrimSpace(c.Name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}
