package catalogsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/entities"
)

func intPtr(i int) *int { return &i }

func TestNormalize(t *testing.T) {
	prefs := entities.DefaultPreferences(1)

	t.Run("full entry", func(t *testing.T) {
		pct := 42.5
		raw := catalog.RawEntry{
			ASIN:            " b000000001 ",
			Title:           "  Red Rising ",
			Subtitle:        "Book 1",
			Authors:         []catalog.RawContributor{{ID: "A1", Name: "Pierce Brown"}, {Name: "pierce brown"}},
			Narrators:       []catalog.RawContributor{{Name: "Tim Gerard Reynolds"}, {Name: " "}},
			Series:          []catalog.RawSeries{{ID: "S1", Title: "Red Rising Saga", Sequence: "1.5"}},
			Language:        "English",
			RuntimeMinutes:  intPtr(960),
			ReleaseDate:     "2014-01-28",
			PurchaseDate:    "2020-03-01T12:00:00Z",
			PercentComplete: &pct,
			IsFinished:      false,
			Price:           &catalog.Price{Amount: 9.99, Currency: "USD"},
			Extra:           map[string]any{"publisher_name": "Audible Studios"},
		}

		book, entry, err := Normalize(raw, &prefs)
		require.NoError(t, err)

		require.NotNil(t, book.ASIN)
		assert.Equal(t, "B000000001", *book.ASIN)
		assert.Equal(t, "Red Rising", book.Title)
		assert.Equal(t, "red rising", book.NormalizedTitle)
		assert.Equal(t, "pierce brown", book.PrimaryAuthor)
		assert.Equal(t, "english", book.Language)
		assert.Equal(t, 960, *book.RuntimeMinutes)
		require.NotNil(t, book.ReleaseDate)
		assert.Equal(t, 2014, book.ReleaseDate.Year())

		require.Len(t, book.Contributors, 2)
		assert.Equal(t, entities.RoleAuthor, book.Contributors[0].Role)
		assert.Equal(t, "A1", *book.Contributors[0].Contributor.ExternalID)
		assert.Equal(t, entities.RoleNarrator, book.Contributors[1].Role)
		assert.Equal(t, 0, book.Contributors[1].Position)

		require.Len(t, book.Series, 1)
		assert.Equal(t, 1.5, *book.Series[0].Sequence)
		assert.Equal(t, "1.5", book.Series[0].SequenceLabel)

		assert.Contains(t, book.RawAttributes, `"publisher_name":"Audible Studios"`)
		assert.Contains(t, book.RawAttributes, `"price"`)

		assert.True(t, entry.Visible)
		require.NotNil(t, entry.PurchaseDate)
		assert.Equal(t, *entry.PurchaseDate, entry.AcquiredAt)
		assert.Equal(t, 42.5, *entry.PercentComplete)
	})

	t.Run("missing title is malformed", func(t *testing.T) {
		_, _, err := Normalize(catalog.RawEntry{ASIN: "B000000001", Title: "  "}, &prefs)
		assert.ErrorIs(t, err, catalog.ErrMalformedEntry)
	})

	t.Run("invalid asin falls back to title identity", func(t *testing.T) {
		book, _, err := Normalize(catalog.RawEntry{ASIN: "not-an-asin", Title: "Dune"}, &prefs)
		require.NoError(t, err)
		assert.Nil(t, book.ASIN)
		assert.Contains(t, book.RawAttributes, `"invalid_asin":"not-an-asin"`)
	})

	t.Run("language filter sets visibility only", func(t *testing.T) {
		_, entry, err := Normalize(catalog.RawEntry{Title: "Der Process", Language: "german"}, &prefs)
		require.NoError(t, err)
		assert.False(t, entry.Visible)

		_, entry, err = Normalize(catalog.RawEntry{Title: "Emma", Language: "en"}, &prefs)
		require.NoError(t, err)
		assert.True(t, entry.Visible)

		_, entry, err = Normalize(catalog.RawEntry{Title: "Der Process", Language: "german"}, nil)
		require.NoError(t, err)
		assert.True(t, entry.Visible)
	})

	t.Run("unparseable dates are kept as attributes", func(t *testing.T) {
		book, entry, err := Normalize(catalog.RawEntry{Title: "X", ReleaseDate: "someday", PurchaseDate: "soon"}, &prefs)
		require.NoError(t, err)
		assert.Nil(t, book.ReleaseDate)
		assert.Contains(t, book.RawAttributes, `"release_date":"someday"`)
		assert.Nil(t, entry.PurchaseDate)
		assert.True(t, entry.AcquiredAt.IsZero())
	})

	t.Run("deterministic attributes", func(t *testing.T) {
		raw := catalog.RawEntry{Title: "X", Extra: map[string]any{"b": "2", "a": "1", "c": []any{"x"}}}
		first, _, err := Normalize(raw, &prefs)
		require.NoError(t, err)
		second, _, err := Normalize(raw, &prefs)
		require.NoError(t, err)
		assert.Equal(t, first.RawAttributes, second.RawAttributes)
	})
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{raw: "1", want: 1, ok: true},
		{raw: " 2.5 ", want: 2.5, ok: true},
		{raw: "0", want: 0, ok: true},
		{raw: "1-3", ok: false},
		{raw: "Book 2", ok: false},
		{raw: "", ok: false},
		{raw: "-1", ok: false},
		{raw: "NaN", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseSequence(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
