// Package catalogsync imports an owner's remote library into the local
// catalog.
//
// A sync pages through the remote library in the order the remote returns it,
// normalizes each entry and upserts it on its own, so a cancelled or failed
// run keeps whatever it already wrote. At most one sync per owner runs at a
// time; the exclusion is a claim row in the database, not an in-process lock.
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/retry"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
	DefaultMaxPages = 100
)

// SessionSource hands out a usable remote session for an owner.
type SessionSource interface {
	Session(ctx context.Context, ownerID uint) (*catalog.SessionState, error)
}

// LibraryStore persists normalized entries.
type LibraryStore interface {
	SaveItem(ownerID uint, book *entities.Book, entry *entities.LibraryEntry, seenAt time.Time) (entities.UpsertOutcome, error)
}

// RunClaimer provides per-owner mutual exclusion.
type RunClaimer interface {
	Claim(ownerID uint, kind entities.RunKind) (string, error)
	Heartbeat(ownerID uint, kind entities.RunKind, token string) error
	Release(ownerID uint, kind entities.RunKind, token string, runErr error) error
}

// PreferencesReader returns an owner's preferences, defaults included.
type PreferencesReader interface {
	Get(ownerID uint) (*entities.Preferences, error)
}

// Auditor records finished syncs.
type Auditor interface {
	LogSync(ownerID uint, fetched, created, updated, skipped, failed int, err error)
}

// Config bounds a sync run.
type Config struct {
	PageSize int
	MaxPages int
	Retry    retry.Policy
}

// EntryError is a per-item failure recorded in a report. Page-level failures
// have Index -1.
type EntryError struct {
	Page    int    `json:"page"`
	Index   int    `json:"index"`
	ASIN    string `json:"asin,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// SyncReport summarizes one run. Skipped counts entries that were already up
// to date.
type SyncReport struct {
	OwnerID    uint         `json:"owner_id"`
	Fetched    int          `json:"fetched"`
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Skipped    int          `json:"skipped"`
	Errors     []EntryError `json:"errors"`
	Pages      int          `json:"pages"`
	Truncated  bool         `json:"truncated"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// ErrorCount returns the number of recorded per-item errors.
func (r *SyncReport) ErrorCount() int {
	return len(r.Errors)
}

func (r *SyncReport) addError(page, index int, raw *catalog.RawEntry, err error) {
	e := EntryError{Page: page, Index: index, Message: err.Error()}
	if raw != nil {
		e.ASIN = raw.ASIN
		e.Title = raw.Title
	}
	r.Errors = append(r.Errors, e)
}

// Engine runs library syncs.
type Engine struct {
	sessions SessionSource
	client   catalog.CatalogClient
	store    LibraryStore
	runs     RunClaimer
	prefs    PreferencesReader
	auditor  Auditor
	cfg      Config
	tracer   trace.Tracer
	now      func() time.Time
}

// NewEngine creates a sync engine. auditor may be nil.
func NewEngine(sessions SessionSource, client catalog.CatalogClient, store LibraryStore, runs RunClaimer, prefs PreferencesReader, auditor Auditor, cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}

	return &Engine{
		sessions: sessions,
		client:   client,
		store:    store,
		runs:     runs,
		prefs:    prefs,
		auditor:  auditor,
		cfg:      cfg,
		tracer:   otel.Tracer("listenwise/catalogsync"),
		now:      time.Now,
	}
}

// Sync imports the owner's remote library. A second call for the same owner
// while one is in flight fails with a *runs.ConflictError.
//
// Per-entry problems are recorded in the report and do not stop the run.
// Systemic failures (no session, lost claim) abort it. On cancellation the
// partial report is returned together with the context error.
func (e *Engine) Sync(ctx context.Context, ownerID uint) (report *SyncReport, err error) {
	ctx, span := e.tracer.Start(ctx, "catalogsync.Sync", trace.WithAttributes(attribute.Int("owner.id", int(ownerID))))
	defer span.End()

	log := logger.FromContext(ctx)

	token, err := e.runs.Claim(ownerID, entities.RunKindSync)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}

	report = &SyncReport{OwnerID: ownerID, StartedAt: e.now()}

	defer func() {
		report.FinishedAt = e.now()
		if relErr := e.runs.Release(ownerID, entities.RunKindSync, token, err); relErr != nil {
			log.Err(relErr).Error("failed to release sync claim", logger.Data{"owner_id": ownerID})
			if err == nil {
				err = fmt.Errorf("release claim: %w", relErr)
			}
		}
		if e.auditor != nil {
			e.auditor.LogSync(ownerID, report.Fetched, report.Created, report.Updated, report.Skipped, report.ErrorCount(), err)
		}

		span.SetAttributes(
			attribute.Int("sync.fetched", report.Fetched),
			attribute.Int("sync.created", report.Created),
			attribute.Int("sync.updated", report.Updated),
			attribute.Int("sync.errors", report.ErrorCount()),
			attribute.Bool("sync.truncated", report.Truncated),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	session, err := e.sessions.Session(ctx, ownerID)
	if err != nil {
		return report, fmt.Errorf("obtain session: %w", err)
	}

	prefs, err := e.prefs.Get(ownerID)
	if err != nil {
		return report, fmt.Errorf("load preferences: %w", err)
	}

	log.Info("library sync started", logger.Data{"owner_id": ownerID, "page_size": e.cfg.PageSize})

	pageToken := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if page > e.cfg.MaxPages {
			report.Truncated = true
			log.Warn("page ceiling reached, stopping sync", logger.Data{"owner_id": ownerID, "max_pages": e.cfg.MaxPages})
			break
		}

		result, err := e.fetchPage(ctx, session, page, pageToken)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			if catalog.IsCredentialError(err) {
				return report, fmt.Errorf("fetch page %d: %w", page, err)
			}
			// Without this page there is no next token; keep what we have.
			report.addError(page, -1, nil, err)
			report.Truncated = true
			log.Err(err).Warn("page fetch failed, ending sync early", logger.Data{"owner_id": ownerID, "page": page})
			break
		}
		report.Pages++

		for i := range result.Entries {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			e.saveEntry(report, ownerID, prefs, page, i, &result.Entries[i])
		}

		if err := e.runs.Heartbeat(ownerID, entities.RunKindSync, token); err != nil {
			return report, fmt.Errorf("heartbeat: %w", err)
		}

		if result.NextPageToken == "" {
			break
		}
		if result.NextPageToken == pageToken {
			report.addError(page, -1, nil, errors.New("remote returned the same page token twice"))
			report.Truncated = true
			break
		}
		pageToken = result.NextPageToken
	}

	log.Info("library sync finished", logger.Data{
		"owner_id": ownerID,
		"fetched":  report.Fetched,
		"created":  report.Created,
		"updated":  report.Updated,
		"skipped":  report.Skipped,
		"errors":   report.ErrorCount(),
		"pages":    report.Pages,
	})
	return report, nil
}

func (e *Engine) fetchPage(ctx context.Context, session *catalog.SessionState, page int, pageToken string) (*catalog.LibraryPage, error) {
	ctx, span := e.tracer.Start(ctx, "catalogsync.fetchPage", trace.WithAttributes(attribute.Int("page", page)))
	defer span.End()

	var result *catalog.LibraryPage
	err := retry.Do(ctx, e.cfg.Retry, catalog.IsTransient, func(ctx context.Context) error {
		var err error
		result, err = e.client.ListLibrary(ctx, session, pageToken, e.cfg.PageSize)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("entries", len(result.Entries)))
	return result, nil
}

func (e *Engine) saveEntry(report *SyncReport, ownerID uint, prefs *entities.Preferences, page, index int, raw *catalog.RawEntry) {
	report.Fetched++

	book, entry, err := Normalize(*raw, prefs)
	if err != nil {
		report.addError(page, index, raw, err)
		return
	}

	outcome, err := e.store.SaveItem(ownerID, book, entry, e.now())
	if err != nil {
		report.addError(page, index, raw, fmt.Errorf("save: %w", err))
		return
	}

	switch outcome {
	case entities.UpsertCreated:
		report.Created++
	case entities.UpsertUpdated:
		report.Updated++
	default:
		report.Skipped++
	}
}
