package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/listenwise/internal/database/dbtest"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/utils"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func testBook(asin, title, author string) *entities.Book {
	book := &entities.Book{
		Title:           title,
		NormalizedTitle: utils.NormalizeKey(title),
		PrimaryAuthor:   utils.NormalizeKey(author),
		Language:        "english",
		Contributors: []entities.BookContributor{
			{Role: entities.RoleAuthor, Contributor: entities.Contributor{Name: author}},
		},
	}
	if asin != "" {
		book.ASIN = strPtr(asin)
	}
	return book
}

func visibleEntry() *entities.LibraryEntry {
	return &entities.LibraryEntry{Visible: true}
}

func countRows(t *testing.T, repo *Repository, model any) int64 {
	var count int64
	require.NoError(t, repo.db.Model(model).Count(&count).Error)
	return count
}

func TestRepository_SaveItem_CreateThenUnchanged(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	now := time.Now()

	outcome, err := repo.SaveItem(1, testBook("B000000001", "Project Hail Mary", "Andy Weir"), visibleEntry(), now)
	require.NoError(t, err)
	assert.Equal(t, entities.UpsertCreated, outcome)

	outcome, err = repo.SaveItem(1, testBook("B000000001", "Project Hail Mary", "Andy Weir"), visibleEntry(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, entities.UpsertUnchanged, outcome)

	assert.Equal(t, int64(1), countRows(t, repo, &entities.Book{}))
	assert.Equal(t, int64(1), countRows(t, repo, &entities.Contributor{}))
	assert.Equal(t, int64(1), countRows(t, repo, &entities.LibraryEntry{}))
}

func TestRepository_SaveItem_SameASINDifferentCasing(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	_, err := repo.SaveItem(1, testBook("B000000001", "Project Hail Mary", "Andy Weir"), visibleEntry(), time.Now())
	require.NoError(t, err)

	outcome, err := repo.SaveItem(1, testBook("B000000001", "PROJECT HAIL MARY", "Andy Weir"), visibleEntry(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, entities.UpsertUpdated, outcome)

	assert.Equal(t, int64(1), countRows(t, repo, &entities.Book{}))
	book, err := repo.GetBookByASIN("B000000001")
	require.NoError(t, err)
	assert.Equal(t, "PROJECT HAIL MARY", book.Title)
}

func TestRepository_SaveItem_TitleAuthorFallback(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	_, err := repo.SaveItem(1, testBook("B000000001", "The Martian", "Andy Weir"), visibleEntry(), time.Now())
	require.NoError(t, err)

	t.Run("missing asin links to the asin book without rewriting it", func(t *testing.T) {
		incoming := testBook("", "THE MARTIAN", "andy weir")
		incoming.Subtitle = "A Novel"
		incoming.Contributors = append(incoming.Contributors, entities.BookContributor{
			Role: entities.RoleNarrator, Contributor: entities.Contributor{Name: "R. C. Bray"},
		})

		outcome, err := repo.SaveItem(1, incoming, visibleEntry(), time.Now())
		require.NoError(t, err)
		assert.Equal(t, entities.UpsertUnchanged, outcome)
		assert.Equal(t, "B000000001", *incoming.ASIN)
		assert.Equal(t, int64(1), countRows(t, repo, &entities.Book{}))
		assert.Equal(t, int64(1), countRows(t, repo, &entities.BookContributor{}))

		book, err := repo.GetBookByASIN("B000000001")
		require.NoError(t, err)
		assert.Equal(t, "The Martian", book.Title)
		assert.Empty(t, book.Subtitle)
	})

	t.Run("different asin with same title is a different book", func(t *testing.T) {
		outcome, err := repo.SaveItem(1, testBook("B000000002", "The Martian", "Andy Weir"), visibleEntry(), time.Now())
		require.NoError(t, err)
		assert.Equal(t, entities.UpsertCreated, outcome)
		assert.Equal(t, int64(2), countRows(t, repo, &entities.Book{}))

		original, err := repo.GetBookByASIN("B000000001")
		require.NoError(t, err)
		assert.Equal(t, "The Martian", original.Title)
	})
}

func TestRepository_SaveItem_AdoptsASINLessBook(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	_, err := repo.SaveItem(1, testBook("", "Dune", "Frank Herbert"), visibleEntry(), time.Now())
	require.NoError(t, err)

	outcome, err := repo.SaveItem(1, testBook("B000000003", "Dune", "Frank Herbert"), visibleEntry(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, entities.UpsertUpdated, outcome)
	assert.Equal(t, int64(1), countRows(t, repo, &entities.Book{}))

	book, err := repo.GetBookByASIN("B000000003")
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, "Dune", book.Title)
}

func TestRepository_SaveItem_ContributorsAndSeries(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	book := testBook("B000000004", "Red Rising", "Pierce Brown")
	book.Contributors[0].Contributor.ExternalID = strPtr("AUTH1")
	book.Contributors = append(book.Contributors, entities.BookContributor{
		Role:        entities.RoleNarrator,
		Position:    0,
		Contributor: entities.Contributor{Name: "Tim Gerard Reynolds"},
	})
	book.Series = []entities.BookSeries{
		{Sequence: floatPtr(1), SequenceLabel: "1", Series: entities.Series{ExternalID: strPtr("SER1"), Title: "Red Rising Saga"}},
	}
	_, err := repo.SaveItem(1, book, visibleEntry(), time.Now())
	require.NoError(t, err)

	second := testBook("B000000005", "Golden Son", "pierce brown")
	second.Contributors[0].Contributor.ExternalID = strPtr("AUTH1")
	second.Series = []entities.BookSeries{
		{Sequence: floatPtr(2.5), SequenceLabel: "2.5", Series: entities.Series{Title: "Red Rising Saga"}},
	}
	_, err = repo.SaveItem(1, second, visibleEntry(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(2), countRows(t, repo, &entities.Contributor{}))
	assert.Equal(t, int64(1), countRows(t, repo, &entities.Series{}))

	stored, err := repo.GetBookByASIN("B000000005")
	require.NoError(t, err)
	require.Len(t, stored.Series, 1)
	require.NotNil(t, stored.Series[0].Sequence)
	assert.Equal(t, 2.5, *stored.Series[0].Sequence)
	assert.Equal(t, "Red Rising Saga", stored.Series[0].Series.Title)
}

func TestRepository_SaveItem_EntryFlags(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	_, err := repo.SaveItem(1, testBook("B000000006", "Hyperion", "Dan Simmons"), visibleEntry(), time.Now())
	require.NoError(t, err)

	hidden := &entities.LibraryEntry{Visible: false, IsFinished: true, PercentComplete: floatPtr(100)}
	outcome, err := repo.SaveItem(1, testBook("B000000006", "Hyperion", "Dan Simmons"), hidden, time.Now())
	require.NoError(t, err)
	assert.Equal(t, entities.UpsertUpdated, outcome)

	entries, err := repo.Entries(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Visible)
	assert.True(t, entries[0].IsFinished)
	assert.Equal(t, "Hyperion", entries[0].Book.Title)

	total, visible, err := repo.CountEntries(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(0), visible)
}

func TestRepository_SaveItem_HiddenOnCreate(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	_, err := repo.SaveItem(1, testBook("B000000007", "Der Process", "Franz Kafka"), &entities.LibraryEntry{Visible: false}, time.Now())
	require.NoError(t, err)

	entries, err := repo.Entries(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Visible)
}

func TestRepository_SaveItem_OwnersShareBooks(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	outcome, err := repo.SaveItem(1, testBook("B000000008", "Leviathan Wakes", "James S. A. Corey"), visibleEntry(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, entities.UpsertCreated, outcome)

	outcome, err = repo.SaveItem(2, testBook("B000000008", "Leviathan Wakes", "James S. A. Corey"), visibleEntry(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, entities.UpsertCreated, outcome)

	assert.Equal(t, int64(1), countRows(t, repo, &entities.Book{}))
	assert.Equal(t, int64(2), countRows(t, repo, &entities.LibraryEntry{}))
}

func TestRepository_ApplyVisibility(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	english := testBook("B000000009", "Emma", "Jane Austen")
	german := testBook("B000000010", "Faust", "Goethe")
	german.Language = "german"
	_, err := repo.SaveItem(1, english, visibleEntry(), time.Now())
	require.NoError(t, err)
	_, err = repo.SaveItem(1, german, visibleEntry(), time.Now())
	require.NoError(t, err)

	changed, err := repo.ApplyVisibility(1, func(language string) bool { return language == "english" })
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	_, visible, err := repo.CountEntries(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), visible)
}

func TestRepository_ListEntries(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	base := time.Now().Add(-time.Hour)

	save := func(book *entities.Book, visible bool, acquired time.Time) {
		t.Helper()
		_, err := repo.SaveItem(1, book, &entities.LibraryEntry{Visible: visible, AcquiredAt: acquired}, time.Now())
		require.NoError(t, err)
	}

	leviathan := testBook("B000000001", "Leviathan Wakes", "James S. A. Corey")
	leviathan.Contributors = append(leviathan.Contributors, entities.BookContributor{
		Role: entities.RoleNarrator, Position: 1, Contributor: entities.Contributor{Name: "Jefferson Mays"},
	})
	leviathan.Series = []entities.BookSeries{{Series: entities.Series{Title: "The Expanse"}}}
	save(leviathan, true, base)

	caliban := testBook("B000000002", "Caliban's War", "James S. A. Corey")
	caliban.Subtitle = "Expanse, Book 2"
	caliban.Series = []entities.BookSeries{{Series: entities.Series{Title: "The Expanse"}}}
	save(caliban, true, base.Add(time.Minute))

	save(testBook("B000000003", "Der Schwarm", "Frank Schätzing"), false, base.Add(2*time.Minute))

	_, err := repo.SaveItem(2, testBook("B000000004", "Artemis", "Andy Weir"), visibleEntry(), time.Now())
	require.NoError(t, err)

	asins := func(entries []entities.LibraryEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.BookASIN
		}
		return out
	}

	tests := []struct {
		name  string
		query EntryQuery
		total int64
		want  []string
	}{
		{"visible by title", EntryQuery{}, 2, []string{"B000000002", "B000000001"}},
		{"hidden included", EntryQuery{IncludeHidden: true}, 3, []string{"B000000002", "B000000003", "B000000001"}},
		{"newest first", EntryQuery{IncludeHidden: true, Sort: SortAcquired, Desc: true}, 3, []string{"B000000003", "B000000002", "B000000001"}},
		{"search matches subtitle", EntryQuery{Search: "book 2"}, 1, []string{"B000000002"}},
		{"author filter", EntryQuery{Author: "corey"}, 2, []string{"B000000002", "B000000001"}},
		{"narrator filter", EntryQuery{Narrator: "mays"}, 1, []string{"B000000001"}},
		{"author is not a narrator", EntryQuery{Narrator: "corey"}, 0, []string{}},
		{"series filter", EntryQuery{Series: "expanse", Sort: SortAcquired}, 2, []string{"B000000001", "B000000002"}},
		{"paging", EntryQuery{Limit: 1, Offset: 1}, 2, []string{"B000000001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, total, err := repo.ListEntries(1, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)
			assert.Equal(t, tt.want, asins(entries))
		})
	}

	t.Run("preloads the book", func(t *testing.T) {
		entries, _, err := repo.ListEntries(1, EntryQuery{Narrator: "mays"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Leviathan Wakes", entries[0].Book.Title)
		assert.Len(t, entries[0].Book.Contributors, 2)
		require.Len(t, entries[0].Book.Series, 1)
		assert.Equal(t, "The Expanse", entries[0].Book.Series[0].Series.Title)
	})
}

func TestRepository_EntryForBook(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	book := testBook("B000000001", "Dune", "Frank Herbert")
	_, err := repo.SaveItem(1, book, visibleEntry(), time.Now())
	require.NoError(t, err)

	entry, err := repo.EntryForBook(1, book.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "B000000001", entry.BookASIN)

	entry, err = repo.EntryForBook(2, book.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestValidSort(t *testing.T) {
	assert.True(t, ValidSort(""))
	assert.True(t, ValidSort(SortRuntime))
	assert.False(t, ValidSort("rating"))
}
