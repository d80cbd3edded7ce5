package catalogsync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/utils"
)

// Date layouts seen in catalog payloads, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// Normalize converts a raw catalog entry into a Book (with its contributor and
// series links) and the owner's LibraryEntry. prefs decides visibility; nil
// prefs means no language filter.
//
// An entry without a title is rejected with catalog.ErrMalformedEntry. A
// malformed ASIN is dropped so the title + author fallback applies.
func Normalize(raw catalog.RawEntry, prefs *entities.Preferences) (*entities.Book, *entities.LibraryEntry, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, nil, fmt.Errorf("%w: missing title (asin %q)", catalog.ErrMalformedEntry, raw.ASIN)
	}

	book := &entities.Book{
		Title:           title,
		NormalizedTitle: utils.NormalizeKey(title),
		Subtitle:        strings.TrimSpace(raw.Subtitle),
		Language:        strings.ToLower(strings.TrimSpace(raw.Language)),
	}
	if asin := utils.NormalizeASIN(raw.ASIN); asin != "" {
		book.ASIN = &asin
	}
	if raw.RuntimeMinutes != nil && *raw.RuntimeMinutes > 0 {
		minutes := *raw.RuntimeMinutes
		book.RuntimeMinutes = &minutes
	}

	extra := make(map[string]any, len(raw.Extra)+2)
	for k, v := range raw.Extra {
		extra[k] = v
	}

	if raw.ReleaseDate != "" {
		if t, ok := parseDate(raw.ReleaseDate); ok {
			book.ReleaseDate = &t
		} else {
			extra["release_date"] = raw.ReleaseDate
		}
	}

	book.Contributors = append(contributors(raw.Authors, entities.RoleAuthor), contributors(raw.Narrators, entities.RoleNarrator)...)
	for _, c := range book.Contributors {
		if c.Role == entities.RoleAuthor {
			book.PrimaryAuthor = c.Contributor.NormalizedName
			break
		}
	}
	book.Series = series(raw.Series)

	if raw.Price != nil {
		extra["price"] = map[string]any{"amount": raw.Price.Amount, "currency": raw.Price.Currency}
	}
	if original := strings.TrimSpace(raw.ASIN); original != "" && book.ASIN == nil {
		extra["invalid_asin"] = original
	}

	if len(extra) > 0 {
		encoded, err := json.Marshal(extra)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: encode attributes: %v", catalog.ErrMalformedEntry, err)
		}
		book.RawAttributes = string(encoded)
	}

	entry := &entities.LibraryEntry{
		Visible:    prefs == nil || utils.LanguageMatches(prefs.PreferredLanguage, book.Language),
		IsFinished: raw.IsFinished,
	}
	if raw.PercentComplete != nil {
		pct := *raw.PercentComplete
		entry.PercentComplete = &pct
	}
	if raw.PurchaseDate != "" {
		if t, ok := parseDate(raw.PurchaseDate); ok {
			entry.PurchaseDate = &t
			entry.AcquiredAt = t
		}
	}

	return book, entry, nil
}

// contributors builds links for one role, dropping blank names and repeats.
func contributors(raw []catalog.RawContributor, role entities.ContributorRole) []entities.BookContributor {
	var links []entities.BookContributor
	seen := map[string]bool{}

	for _, c := range raw {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		normalized := utils.NormalizeKey(name)
		id := strings.TrimSpace(c.ID)
		if seen[normalized] || (id != "" && seen["id:"+id]) {
			continue
		}
		seen[normalized] = true

		contributor := entities.Contributor{Name: name, NormalizedName: normalized}
		if id != "" {
			seen["id:"+id] = true
			contributor.ExternalID = &id
		}
		links = append(links, entities.BookContributor{
			Role:        role,
			Position:    len(links),
			Contributor: contributor,
		})
	}
	return links
}

func series(raw []catalog.RawSeries) []entities.BookSeries {
	var links []entities.BookSeries
	seen := map[string]bool{}

	for _, s := range raw {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			continue
		}
		normalized := utils.NormalizeKey(title)
		id := strings.TrimSpace(s.ID)
		if seen[normalized] || (id != "" && seen["id:"+id]) {
			continue
		}
		seen[normalized] = true

		link := entities.BookSeries{
			SequenceLabel: strings.TrimSpace(s.Sequence),
			Series:        entities.Series{Title: title, NormalizedTitle: normalized},
		}
		if id != "" {
			seen["id:"+id] = true
			link.Series.ExternalID = &id
		}
		if seq, ok := ParseSequence(s.Sequence); ok {
			link.Sequence = &seq
		}
		links = append(links, link)
	}
	return links
}

// ParseSequence reads a series position such as "2" or "1.5". Ranges and
// labels ("1-3", "Book 2") are not numeric and return false.
func ParseSequence(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	seq, err := strconv.ParseFloat(raw, 64)
	if err != nil || seq < 0 || math.IsNaN(seq) || math.IsInf(seq, 0) {
		return 0, false
	}
	return seq, true
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
