// Package library provides database operations for the synced catalog: books,
// contributors, series and per-owner library entries.
//
// Writes go through SaveItem, which applies the identity rules for one catalog
// entry inside a single transaction:
//
//   - a book with an ASIN is matched by ASIN only; an ASIN-less book with the
//     same normalized title and primary author is adopted and given the ASIN
//   - a book without an ASIN is matched by normalized title + primary author,
//     ASIN-less rows first; a hit on a row with an ASIN only links the entry
//     and never rewrites that book
//   - contributors and series match on external id first, then normalized name
//
// Each call commits on its own so an interrupted sync keeps what it wrote.
package library

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/utils"
)

// Repository handles catalog and library entry operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new library repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveItem upserts a normalized book, its contributor and series links, and the
// owner's library entry. The book's Contributors and Series carry the desired
// links; their IDs are resolved here.
func (r *Repository) SaveItem(ownerID uint, book *entities.Book, entry *entities.LibraryEntry, seenAt time.Time) (entities.UpsertOutcome, error) {
	var outcome entities.UpsertOutcome

	err := r.db.Transaction(func(tx *gorm.DB) error {
		stored, bookChanged, linkOnly, err := upsertBook(tx, book)
		if err != nil {
			return fmt.Errorf("upsert book: %w", err)
		}

		var contributorsChanged, seriesChanged bool
		if !linkOnly {
			contributorsChanged, err = syncContributors(tx, stored.ID, book.Contributors)
			if err != nil {
				return fmt.Errorf("sync contributors: %w", err)
			}
			seriesChanged, err = syncSeries(tx, stored.ID, book.Series)
			if err != nil {
				return fmt.Errorf("sync series: %w", err)
			}
		}

		entryOutcome, err := upsertEntry(tx, ownerID, stored, entry, seenAt, linkOnly)
		if err != nil {
			return fmt.Errorf("upsert library entry: %w", err)
		}

		switch {
		case entryOutcome == entities.UpsertCreated:
			outcome = entities.UpsertCreated
		case bookChanged, contributorsChanged, seriesChanged, entryOutcome == entities.UpsertUpdated:
			outcome = entities.UpsertUpdated
		default:
			outcome = entities.UpsertUnchanged
		}

		book.ID = stored.ID
		book.ASIN = stored.ASIN
		return nil
	})

	return outcome, err
}

// bookMatch is the stored row an incoming book resolved to. linkOnly marks an
// ASIN-less entry that matched a book identified by ASIN: the entry is linked
// to it but never rewrites its fields or links.
type bookMatch struct {
	book     *entities.Book
	linkOnly bool
}

func firstBook(q *gorm.DB) (*entities.Book, error) {
	var existing entities.Book
	err := q.Order("id ASC").First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func findBook(tx *gorm.DB, book *entities.Book) (bookMatch, error) {
	byKey := func() *gorm.DB {
		return tx.Where("normalized_title = ? AND primary_author = ?", book.NormalizedTitle, book.PrimaryAuthor)
	}

	if book.ASIN != nil {
		existing, err := firstBook(tx.Where("asin = ?", *book.ASIN))
		if err != nil || existing != nil {
			return bookMatch{book: existing}, err
		}
		// Only an ASIN-less row may be adopted; a row with another ASIN is a different book.
		existing, err = firstBook(byKey().Where("asin IS NULL"))
		return bookMatch{book: existing}, err
	}

	existing, err := firstBook(byKey().Where("asin IS NULL"))
	if err != nil || existing != nil {
		return bookMatch{book: existing}, err
	}
	existing, err = firstBook(byKey().Where("asin IS NOT NULL"))
	return bookMatch{book: existing, linkOnly: existing != nil}, err
}

func upsertBook(tx *gorm.DB, book *entities.Book) (*entities.Book, bool, bool, error) {
	match, err := findBook(tx, book)
	if err != nil {
		return nil, false, false, err
	}
	existing := match.book
	if match.linkOnly {
		return existing, false, true, nil
	}

	if existing == nil {
		row := entities.Book{
			ASIN:            book.ASIN,
			Title:           book.Title,
			NormalizedTitle: book.NormalizedTitle,
			PrimaryAuthor:   book.PrimaryAuthor,
			Subtitle:        book.Subtitle,
			RuntimeMinutes:  book.RuntimeMinutes,
			Language:        book.Language,
			ReleaseDate:     book.ReleaseDate,
			RawAttributes:   book.RawAttributes,
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, false, false, err
		}
		return &row, true, false, nil
	}

	updates := map[string]any{}
	if book.ASIN != nil && existing.ASIN == nil {
		updates["asin"] = *book.ASIN
	}
	if existing.Title != book.Title {
		updates["title"] = book.Title
		updates["normalized_title"] = book.NormalizedTitle
	}
	if book.PrimaryAuthor != "" && existing.PrimaryAuthor != book.PrimaryAuthor {
		updates["primary_author"] = book.PrimaryAuthor
	}
	if existing.Subtitle != book.Subtitle {
		updates["subtitle"] = book.Subtitle
	}
	if !equalIntPtr(existing.RuntimeMinutes, book.RuntimeMinutes) {
		updates["runtime_minutes"] = book.RuntimeMinutes
	}
	if existing.Language != book.Language {
		updates["language"] = book.Language
	}
	if !equalTimePtr(existing.ReleaseDate, book.ReleaseDate) {
		updates["release_date"] = book.ReleaseDate
	}
	if existing.RawAttributes != book.RawAttributes {
		updates["raw_attributes"] = book.RawAttributes
	}

	if len(updates) == 0 {
		return existing, false, false, nil
	}

	if err := tx.Model(existing).Updates(updates).Error; err != nil {
		return nil, false, false, err
	}
	if asin, ok := updates["asin"].(string); ok {
		existing.ASIN = &asin
	}
	return existing, true, false, nil
}

func resolveContributor(tx *gorm.DB, c entities.Contributor) (uint, error) {
	normalized := utils.NormalizeKey(c.Name)
	var existing entities.Contributor

	if c.ExternalID != nil && *c.ExternalID != "" {
		err := tx.Where("external_id = ?", *c.ExternalID).First(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}

		err = tx.Where("external_id IS NULL AND normalized_name = ?", normalized).Order("id ASC").First(&existing).Error
		if err == nil {
			if err := tx.Model(&existing).Update("external_id", *c.ExternalID).Error; err != nil {
				return 0, err
			}
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	} else {
		err := tx.Where("normalized_name = ?", normalized).Order("id ASC").First(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	row := entities.Contributor{ExternalID: c.ExternalID, Name: c.Name, NormalizedName: normalized}
	if err := tx.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func resolveSeries(tx *gorm.DB, s entities.Series) (uint, error) {
	normalized := utils.NormalizeKey(s.Title)
	var existing entities.Series

	if s.ExternalID != nil && *s.ExternalID != "" {
		err := tx.Where("external_id = ?", *s.ExternalID).First(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}

		err = tx.Where("external_id IS NULL AND normalized_title = ?", normalized).Order("id ASC").First(&existing).Error
		if err == nil {
			if err := tx.Model(&existing).Update("external_id", *s.ExternalID).Error; err != nil {
				return 0, err
			}
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	} else {
		err := tx.Where("normalized_title = ?", normalized).Order("id ASC").First(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	row := entities.Series{ExternalID: s.ExternalID, Title: s.Title, NormalizedTitle: normalized}
	if err := tx.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// syncContributors replaces the book's contributor links when they differ.
// An empty desired set leaves existing links alone so a sparse payload cannot
// strip a book's credits.
func syncContributors(tx *gorm.DB, bookID uint, desired []entities.BookContributor) (bool, error) {
	if len(desired) == 0 {
		return false, nil
	}

	type linkKey struct {
		contributorID uint
		role          entities.ContributorRole
	}
	seen := make(map[linkKey]bool)
	var links []entities.BookContributor
	for _, link := range desired {
		id, err := resolveContributor(tx, link.Contributor)
		if err != nil {
			return false, err
		}
		key := linkKey{id, link.Role}
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, entities.BookContributor{BookID: bookID, ContributorID: id, Role: link.Role, Position: link.Position})
	}

	var existing []entities.BookContributor
	if err := tx.Where("book_id = ?", bookID).Find(&existing).Error; err != nil {
		return false, err
	}

	if sameContributorLinks(existing, links) {
		return false, nil
	}

	if err := tx.Where("book_id = ?", bookID).Delete(&entities.BookContributor{}).Error; err != nil {
		return false, err
	}
	if err := tx.Omit("Contributor").Create(&links).Error; err != nil {
		return false, err
	}
	return true, nil
}

func syncSeries(tx *gorm.DB, bookID uint, desired []entities.BookSeries) (bool, error) {
	if len(desired) == 0 {
		return false, nil
	}

	seen := make(map[uint]bool)
	var links []entities.BookSeries
	for _, link := range desired {
		id, err := resolveSeries(tx, link.Series)
		if err != nil {
			return false, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, entities.BookSeries{BookID: bookID, SeriesID: id, Sequence: link.Sequence, SequenceLabel: link.SequenceLabel})
	}

	var existing []entities.BookSeries
	if err := tx.Where("book_id = ?", bookID).Find(&existing).Error; err != nil {
		return false, err
	}

	if sameSeriesLinks(existing, links) {
		return false, nil
	}

	if err := tx.Where("book_id = ?", bookID).Delete(&entities.BookSeries{}).Error; err != nil {
		return false, err
	}
	if err := tx.Omit("Series").Create(&links).Error; err != nil {
		return false, err
	}
	return true, nil
}

// upsertEntry creates or updates the owner's entry for book. With touchOnly an
// existing entry only gets its seen marker.
func upsertEntry(tx *gorm.DB, ownerID uint, book *entities.Book, entry *entities.LibraryEntry, seenAt time.Time, touchOnly bool) (entities.UpsertOutcome, error) {
	var existing entities.LibraryEntry
	err := tx.Where("owner_id = ? AND book_id = ?", ownerID, book.ID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acquired := entry.AcquiredAt
		if acquired.IsZero() {
			acquired = seenAt
		}
		row := entities.LibraryEntry{
			OwnerID:         ownerID,
			BookID:          book.ID,
			BookASIN:        book.ASINValue(),
			AcquiredAt:      acquired,
			Visible:         entry.Visible,
			PurchaseDate:    entry.PurchaseDate,
			PercentComplete: entry.PercentComplete,
			IsFinished:      entry.IsFinished,
			LastSeenAt:      seenAt,
		}
		if err := tx.Omit("Book").Create(&row).Error; err != nil {
			return "", err
		}
		*entry = row
		return entities.UpsertCreated, nil
	}
	if err != nil {
		return "", err
	}

	var updates map[string]any
	if !touchOnly {
		updates = entryUpdates(&existing, book, entry)
	}

	outcome := entities.UpsertUnchanged
	if len(updates) > 0 {
		outcome = entities.UpsertUpdated
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return "", err
		}
	}

	// Seen marker only; does not count as a change.
	if err := tx.Model(&existing).UpdateColumn("last_seen_at", seenAt).Error; err != nil {
		return "", err
	}

	*entry = existing
	return outcome, nil
}

func entryUpdates(existing *entities.LibraryEntry, book *entities.Book, entry *entities.LibraryEntry) map[string]any {
	updates := map[string]any{}
	if existing.BookASIN != book.ASINValue() {
		updates["book_asin"] = book.ASINValue()
	}
	if existing.Visible != entry.Visible {
		updates["visible"] = entry.Visible
	}
	if !equalTimePtr(existing.PurchaseDate, entry.PurchaseDate) {
		updates["purchase_date"] = entry.PurchaseDate
	}
	if !equalFloatPtr(existing.PercentComplete, entry.PercentComplete) {
		updates["percent_complete"] = entry.PercentComplete
	}
	if existing.IsFinished != entry.IsFinished {
		updates["is_finished"] = entry.IsFinished
	}
	return updates
}

// Entries returns all of an owner's library entries, hidden ones included,
// with books, contributors and series preloaded. Newest acquisitions first.
func (r *Repository) Entries(ownerID uint) ([]entities.LibraryEntry, error) {
	var entries []entities.LibraryEntry
	err := r.db.
		Preload("Book.Contributors", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Book.Contributors.Contributor").
		Preload("Book.Series.Series").
		Where("owner_id = ?", ownerID).
		Order("acquired_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}

// CountEntries returns the owner's total and visible entry counts.
func (r *Repository) CountEntries(ownerID uint) (total, visible int64, err error) {
	if err = r.db.Model(&entities.LibraryEntry{}).Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = r.db.Model(&entities.LibraryEntry{}).Where("owner_id = ? AND visible = ?", ownerID, true).Count(&visible).Error
	return total, visible, err
}

// EntrySort names a library ordering.
type EntrySort string

const (
	SortTitle       EntrySort = "title"
	SortReleaseDate EntrySort = "release_date"
	SortRuntime     EntrySort = "runtime"
	SortAcquired    EntrySort = "acquired"
)

var entrySortColumns = map[EntrySort]string{
	SortTitle:       "books.title",
	SortReleaseDate: "books.release_date",
	SortRuntime:     "books.runtime_minutes",
	SortAcquired:    "library_entries.acquired_at",
}

// ValidSort reports whether s is a known ordering. Empty means SortTitle.
func ValidSort(s EntrySort) bool {
	_, ok := entrySortColumns[s]
	return ok || s == ""
}

const defaultEntryPageSize = 20

// EntryQuery filters and pages an owner's library. Text filters match
// case-insensitively anywhere in the field. Hidden entries are skipped unless
// IncludeHidden is set.
type EntryQuery struct {
	Search        string
	Author        string
	Narrator      string
	Series        string
	IncludeHidden bool
	Sort          EntrySort
	Desc          bool
	Limit         int
	Offset        int
}

const contributorFilter = `EXISTS (SELECT 1 FROM book_contributors bc JOIN contributors c ON c.id = bc.contributor_id
	WHERE bc.book_id = books.id AND bc.role = ? AND c.name LIKE ?)`

const seriesFilter = `EXISTS (SELECT 1 FROM book_series bs JOIN series s ON s.id = bs.series_id
	WHERE bs.book_id = books.id AND s.title LIKE ?)`

func (q EntryQuery) scope(tx *gorm.DB, ownerID uint) *gorm.DB {
	tx = tx.Model(&entities.LibraryEntry{}).
		Joins("JOIN books ON books.id = library_entries.book_id").
		Where("library_entries.owner_id = ?", ownerID)
	if !q.IncludeHidden {
		tx = tx.Where("library_entries.visible = ?", true)
	}
	if q.Search != "" {
		like := "%" + q.Search + "%"
		tx = tx.Where("(books.title LIKE ? OR books.subtitle LIKE ?)", like, like)
	}
	if q.Author != "" {
		tx = tx.Where(contributorFilter, entities.RoleAuthor, "%"+q.Author+"%")
	}
	if q.Narrator != "" {
		tx = tx.Where(contributorFilter, entities.RoleNarrator, "%"+q.Narrator+"%")
	}
	if q.Series != "" {
		tx = tx.Where(seriesFilter, "%"+q.Series+"%")
	}
	return tx
}

// ListEntries returns one page of the owner's library matching q, with books,
// contributors and series preloaded, plus the number of matches.
func (r *Repository) ListEntries(ownerID uint, q EntryQuery) ([]entities.LibraryEntry, int64, error) {
	var total int64
	if err := q.scope(r.db, ownerID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := entrySortColumns[q.Sort]
	if !ok {
		column = entrySortColumns[SortTitle]
	}
	direction := " ASC"
	if q.Desc {
		direction = " DESC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEntryPageSize
	}

	var entries []entities.LibraryEntry
	err := q.scope(r.db, ownerID).
		Select("library_entries.*").
		Preload("Book.Contributors", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Book.Contributors.Contributor").
		Preload("Book.Series.Series").
		Order(column + direction).
		Order("library_entries.id ASC").
		Limit(limit).
		Offset(max(q.Offset, 0)).
		Find(&entries).Error
	return entries, total, err
}

// GetBookByASIN returns a book by ASIN, or nil if unknown.
func (r *Repository) GetBookByASIN(asin string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Preload("Contributors", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Contributors.Contributor").
		Preload("Series.Series").
		Where("asin = ?", asin).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// EntryForBook returns the owner's entry for bookID, or nil if the owner does
// not have it.
func (r *Repository) EntryForBook(ownerID, bookID uint) (*entities.LibraryEntry, error) {
	var entry entities.LibraryEntry
	err := r.db.Where("owner_id = ? AND book_id = ?", ownerID, bookID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ApplyVisibility recomputes the visible flag of every entry for the owner
// using keep on the book language. Returns the number of entries changed.
func (r *Repository) ApplyVisibility(ownerID uint, keep func(language string) bool) (int, error) {
	var entries []entities.LibraryEntry
	if err := r.db.Preload("Book").Where("owner_id = ?", ownerID).Find(&entries).Error; err != nil {
		return 0, err
	}

	changed := 0
	for _, entry := range entries {
		visible := keep(entry.Book.Language)
		if visible == entry.Visible {
			continue
		}
		if err := r.db.Model(&entities.LibraryEntry{}).Where("id = ?", entry.ID).Update("visible", visible).Error; err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func sameContributorLinks(a, b []entities.BookContributor) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(l entities.BookContributor) string {
		return fmt.Sprintf("%d|%s|%d", l.ContributorID, l.Role, l.Position)
	}
	return sameKeys(a, b, key)
}

func sameSeriesLinks(a, b []entities.BookSeries) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(l entities.BookSeries) string {
		seq := "-"
		if l.Sequence != nil {
			seq = fmt.Sprintf("%g", *l.Sequence)
		}
		return fmt.Sprintf("%d|%s|%s", l.SeriesID, seq, l.SequenceLabel)
	}
	return sameKeys(a, b, key)
}

func sameKeys[T any](a, b []T, key func(T) string) bool {
	ka := make([]string, len(a))
	kb := make([]string, len(b))
	for i := range a {
		ka[i] = key(a[i])
	}
	for i := range b {
		kb[i] = key(b[i])
	}
	sort.Strings(ka)
	sort.Strings(kb)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
