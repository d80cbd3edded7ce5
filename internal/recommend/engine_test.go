package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/catalogsync"
	"github.com/mrlokans/listenwise/internal/database/dbtest"
	"github.com/mrlokans/listenwise/internal/database/library"
	"github.com/mrlokans/listenwise/internal/database/preferences"
	"github.com/mrlokans/listenwise/internal/database/recommendations"
	"github.com/mrlokans/listenwise/internal/database/runs"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/retry"
)

type fakeSessions struct{}

func (fakeSessions) Session(ctx context.Context, ownerID uint) (*catalog.SessionState, error) {
	return &catalog.SessionState{AccessToken: "token", LocaleCode: "us", Expires: time.Now().Add(time.Hour)}, nil
}

type fakeSearcher struct {
	mu       sync.Mutex
	results  map[string][]catalog.RawEntry
	failures map[string]error
	calls    []string

	delay    time.Duration
	onSearch func()
}

func newSearcher() *fakeSearcher {
	return &fakeSearcher{results: map[string][]catalog.RawEntry{}, failures: map[string]error{}}
}

func (f *fakeSearcher) record(key string) ([]catalog.RawEntry, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.onSearch != nil {
		f.onSearch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err := f.failures[key]; err != nil {
		return nil, err
	}
	return f.results[key], nil
}

func (f *fakeSearcher) SearchByContributor(ctx context.Context, session *catalog.SessionState, name string, kind catalog.ContributorKind, limit int) ([]catalog.RawEntry, error) {
	return f.record(string(kind) + ":" + name)
}

func (f *fakeSearcher) SearchInSeries(ctx context.Context, session *catalog.SessionState, series catalog.SeriesRef, limit int) ([]catalog.RawEntry, error) {
	return f.record("series:" + series.Title)
}

type fixture struct {
	engine   *Engine
	library  *library.Repository
	recs     *recommendations.Repository
	runs     *runs.Repository
	prefs    *preferences.Repository
	searcher *fakeSearcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStaleAfter(t, time.Hour)
}

func newFixtureWithStaleAfter(t *testing.T, staleAfter time.Duration) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	f := &fixture{
		library:  library.NewRepository(db),
		recs:     recommendations.NewRepository(db),
		runs:     runs.NewRepository(db, staleAfter),
		prefs:    preferences.NewRepository(db),
		searcher: newSearcher(),
	}
	f.engine = NewEngine(fakeSessions{}, f.searcher, f.library, f.recs, f.runs, f.prefs, nil, Config{
		Retry: retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	return f
}

type owned struct {
	asin      string
	title     string
	author    string
	narrator  string
	series    string
	language  string
	purchased string
}

func (f *fixture) own(t *testing.T, ownerID uint, books ...owned) {
	t.Helper()
	prefs, err := f.prefs.Get(ownerID)
	require.NoError(t, err)

	for _, b := range books {
		raw := catalog.RawEntry{
			ASIN:         b.asin,
			Title:        b.title,
			Authors:      []catalog.RawContributor{{Name: b.author}},
			Language:     "english",
			PurchaseDate: b.purchased,
		}
		if b.language != "" {
			raw.Language = b.language
		}
		if b.narrator != "" {
			raw.Narrators = []catalog.RawContributor{{Name: b.narrator}}
		}
		if b.series != "" {
			raw.Series = []catalog.RawSeries{{Title: b.series, Sequence: "1"}}
		}

		book, entry, err := catalogsync.Normalize(raw, prefs)
		require.NoError(t, err)
		_, err = f.library.SaveItem(ownerID, book, entry, time.Now())
		require.NoError(t, err)
	}
}

func candidate(asin, title, author string, price *float64) catalog.RawEntry {
	c := catalog.RawEntry{
		ASIN:     asin,
		Title:    title,
		Authors:  []catalog.RawContributor{{Name: author}},
		Language: "english",
	}
	if price != nil {
		c.Price = &catalog.Price{Amount: *price, Currency: "USD"}
	}
	return c
}

func TestEngine_Generate_Scenario(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1,
		owned{asin: "B000000001", title: "A One", author: "A"},
		owned{asin: "B000000002", title: "A Two", author: "A"},
		owned{asin: "B000000003", title: "A Three", author: "A"},
		owned{asin: "B000000004", title: "B One", author: "B"},
	)
	f.searcher.results["author:A"] = []catalog.RawEntry{
		candidate("B000000002", "A Two", "A", nil),
		candidate("B000000010", "A Four", "A", pricePtr(9.99)),
	}

	recs, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "B000000010", rec.BookASIN)
	assert.Equal(t, entities.RecommendationKindAuthor, rec.Kind)
	assert.Equal(t, "A", rec.SourceName)
	assert.InDelta(t, 0.75, rec.Confidence, 1e-9)
	assert.Equal(t, entities.PurchaseMethodCash, rec.PurchaseMethod)
	assert.Equal(t, []string{"author:A"}, f.searcher.calls)

	stored, err := f.recs.List(1, recommendations.ListOptions{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "B000000010", stored[0].BookASIN)
}

func TestEngine_Generate_OwnershipFilter(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1,
		owned{asin: "B000000001", title: "Owned", author: "A"},
		owned{asin: "B000000002", title: "Hidden Owned", author: "A", language: "german"},
		owned{title: "No Asin Owned", author: "A"},
	)
	f.searcher.results["author:A"] = []catalog.RawEntry{
		candidate("B000000001", "Owned", "A", nil),
		candidate("B000000002", "Hidden Owned", "A", nil),
		candidate("B000000003", "NO ASIN OWNED", "a", nil),
		candidate("B000000004", "Fresh", "A", nil),
	}

	recs, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 5})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "B000000004", recs[0].BookASIN)
}

func TestEngine_Generate_Filters(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1, owned{asin: "B000000001", title: "Owned", author: "A", narrator: "N"})

	german := candidate("B000000002", "Fremd", "A", nil)
	german.Language = "german"
	f.searcher.results["author:A"] = []catalog.RawEntry{
		german,
		candidate("B000000003", "Other Author", "Somebody Else", nil),
		candidate("bad", "No Asin", "A", nil),
		candidate("B000000004", "Good", "A", nil),
		candidate("B000000004", "Good", "A", nil),
	}
	narrated := candidate("B000000004", "Good", "A", nil)
	narrated.Narrators = []catalog.RawContributor{{Name: "n"}}
	f.searcher.results["narrator:N"] = []catalog.RawEntry{narrated}

	recs, err := f.engine.Generate(context.Background(), 1, DefaultLimits())
	require.NoError(t, err)
	require.Len(t, recs, 2, "one row per reason")
	assert.Equal(t, entities.RecommendationKindAuthor, recs[0].Kind)
	assert.Equal(t, entities.RecommendationKindNarrator, recs[1].Kind)
	assert.Equal(t, recs[0].BookASIN, recs[1].BookASIN)
	assert.Equal(t, entities.PurchaseMethodCredit, recs[0].PurchaseMethod, "missing price is a credit")
}

func TestEngine_Generate_Series(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1, owned{asin: "B000000001", title: "Leviathan Wakes", author: "James S. A. Corey", series: "The Expanse"})

	next := candidate("B000000002", "Caliban's War", "James S. A. Corey", pricePtr(12.66))
	f.searcher.results["series:The Expanse"] = []catalog.RawEntry{
		candidate("B000000001", "Leviathan Wakes", "James S. A. Corey", nil),
		next,
	}

	recs, err := f.engine.Generate(context.Background(), 1, Limits{Series: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, entities.RecommendationKindSeries, recs[0].Kind)
	assert.Equal(t, "The Expanse", recs[0].SourceName)
	assert.Equal(t, 1.0, recs[0].Confidence)
	assert.Equal(t, entities.PurchaseMethodCredit, recs[0].PurchaseMethod)
}

func TestEngine_Generate_SourceRanking(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1,
		owned{asin: "B000000001", title: "One", author: "Old", purchased: "2020-01-01"},
		owned{asin: "B000000002", title: "Two", author: "Old", purchased: "2020-01-02"},
		owned{asin: "B000000003", title: "Three", author: "New", purchased: "2023-01-01"},
		owned{asin: "B000000004", title: "Four", author: "New", purchased: "2023-01-02"},
		owned{asin: "B000000005", title: "Five", author: "Single", purchased: "2024-01-01"},
	)

	_, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"author:New", "author:Old"}, f.searcher.calls)
}

func TestEngine_Generate_FailedSourceIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1,
		owned{asin: "B000000001", title: "One", author: "A"},
		owned{asin: "B000000002", title: "Two", author: "A"},
		owned{asin: "B000000003", title: "Three", author: "B"},
	)
	f.searcher.failures["author:A"] = fmt.Errorf("%w: timeout", catalog.ErrNetwork)
	f.searcher.results["author:B"] = []catalog.RawEntry{candidate("B000000010", "B Two", "B", nil)}

	recs, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 2})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "B", recs[0].SourceName)
	assert.Equal(t, []string{"author:A", "author:A", "author:B"}, f.searcher.calls, "transient failures are retried before skipping")
}

func TestEngine_Generate_CredentialErrorAborts(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1,
		owned{asin: "B000000001", title: "One", author: "A"},
		owned{asin: "B000000002", title: "Two", author: "A"},
		owned{asin: "B000000003", title: "Three", author: "B"},
	)
	f.searcher.failures["author:A"] = catalog.ErrSessionExpired

	_, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 2})
	assert.ErrorIs(t, err, catalog.ErrSessionExpired)
	assert.Equal(t, []string{"author:A"}, f.searcher.calls)

	claim, err := f.runs.Get(1, entities.RunKindRecommend)
	require.NoError(t, err)
	assert.Equal(t, entities.RunStatusFailed, claim.Status)
}

func TestEngine_Generate_Regeneration(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1, owned{asin: "B000000001", title: "One", author: "A"})
	f.searcher.results["author:A"] = []catalog.RawEntry{
		candidate("B000000010", "Two", "A", nil),
		candidate("B000000011", "Three", "A", nil),
	}

	first, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 1})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NoError(t, f.recs.Dismiss(1, first[0].ID))

	second, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 1})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID, "rows are upserted, not duplicated")
	assert.False(t, second[1].GeneratedAt.Before(first[1].GeneratedAt))

	visible, err := f.recs.List(1, recommendations.ListOptions{})
	require.NoError(t, err)
	require.Len(t, visible, 1, "dismissal survives regeneration")
	assert.Equal(t, "B000000011", visible[0].BookASIN)
}

func TestEngine_Generate_MutualExclusion(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1, owned{asin: "B000000001", title: "One", author: "A"})
	f.own(t, 2, owned{asin: "B000000001", title: "One", author: "A"})
	f.searcher.results["author:A"] = []catalog.RawEntry{candidate("B000000010", "Two", "A", nil)}

	_, err := f.runs.Claim(1, entities.RunKindRecommend)
	require.NoError(t, err)

	_, err = f.engine.Generate(context.Background(), 1, DefaultLimits())
	var conflict *runs.ConflictError
	assert.True(t, errors.As(err, &conflict))

	recs, err := f.engine.Generate(context.Background(), 2, DefaultLimits())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestEngine_Generate_LongRunKeepsClaim(t *testing.T) {
	f := newFixtureWithStaleAfter(t, 300*time.Millisecond)
	for i := 0; i < 8; i++ {
		author := fmt.Sprintf("Author %d", i)
		f.own(t, 1, owned{asin: fmt.Sprintf("B00000000%d", i), title: "Book " + author, author: author})
	}
	f.searcher.delay = 100 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Generate(context.Background(), 1, Limits{Authors: 8})
		done <- err
	}()

	time.Sleep(450 * time.Millisecond)
	_, err := f.runs.Claim(1, entities.RunKindRecommend)
	assert.ErrorIs(t, err, runs.ErrAlreadyRunning, "a heartbeated run is not stale")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not finish")
	}
}

func TestEngine_Generate_LostClaimFails(t *testing.T) {
	f := newFixture(t)
	f.own(t, 1,
		owned{asin: "B000000001", title: "One", author: "A"},
		owned{asin: "B000000002", title: "Two", author: "B"},
	)

	var once sync.Once
	f.searcher.onSearch = func() {
		once.Do(func() {
			claim, err := f.runs.Get(1, entities.RunKindRecommend)
			require.NoError(t, err)
			require.NoError(t, f.runs.Release(1, entities.RunKindRecommend, claim.Token, nil))
		})
	}

	_, err := f.engine.Generate(context.Background(), 1, DefaultLimits())
	assert.ErrorIs(t, err, runs.ErrClaimLost)
	assert.Len(t, f.searcher.calls, 1, "the run stops at the first heartbeat")
}

func TestEngine_Generate_EmptyLibrary(t *testing.T) {
	f := newFixture(t)

	recs, err := f.engine.Generate(context.Background(), 1, DefaultLimits())
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, f.searcher.calls)
}
