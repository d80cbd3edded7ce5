package entities

import "time"

type ContributorRole string

const (
	RoleAuthor   ContributorRole = "author"
	RoleNarrator ContributorRole = "narrator"
)

// Book is a catalog title. ASIN is the identity key; books imported without one
// are matched on NormalizedTitle + PrimaryAuthor instead.
type Book struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ASIN            *string    `gorm:"uniqueIndex;size:20" json:"asin,omitempty"`
	Title           string     `gorm:"not null" json:"title"`
	NormalizedTitle string     `gorm:"index:idx_book_title_author" json:"-"`
	PrimaryAuthor   string     `gorm:"index:idx_book_title_author" json:"-"`
	Subtitle        string     `json:"subtitle,omitempty"`
	RuntimeMinutes  *int       `json:"runtime_minutes,omitempty"`
	Language        string     `gorm:"size:50" json:"language"`
	ReleaseDate     *time.Time `json:"release_date,omitempty"`
	RawAttributes   string     `gorm:"type:text" json:"raw_attributes,omitempty"`

	Contributors []BookContributor `gorm:"foreignKey:BookID" json:"contributors,omitempty"`
	Series       []BookSeries      `gorm:"foreignKey:BookID" json:"series,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Book) TableName() string {
	return "books"
}

// ASINValue returns the ASIN or an empty string.
func (b *Book) ASINValue() string {
	if b.ASIN == nil {
		return ""
	}
	return *b.ASIN
}

// Contributor is an author or narrator. ExternalID wins over the name for dedup.
type Contributor struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ExternalID     *string   `gorm:"uniqueIndex;size:32" json:"external_id,omitempty"`
	Name           string    `gorm:"not null" json:"name"`
	NormalizedName string    `gorm:"index" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Contributor) TableName() string {
	return "contributors"
}

type BookContributor struct {
	BookID        uint            `gorm:"primaryKey" json:"book_id"`
	ContributorID uint            `gorm:"primaryKey" json:"contributor_id"`
	Role          ContributorRole `gorm:"primaryKey;size:20" json:"role"`
	Position      int             `json:"position"`
	Contributor   Contributor     `gorm:"foreignKey:ContributorID" json:"contributor"`
}

func (BookContributor) TableName() string {
	return "book_contributors"
}

type Series struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ExternalID      *string   `gorm:"uniqueIndex;size:32" json:"external_id,omitempty"`
	Title           string    `gorm:"not null" json:"title"`
	NormalizedTitle string    `gorm:"index" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Series) TableName() string {
	return "series"
}

// BookSeries orders a book within a series. Sequence may be fractional (1.5);
// SequenceLabel keeps the remote's text ("1-3", "Book 2") when it is not numeric.
type BookSeries struct {
	BookID        uint     `gorm:"primaryKey" json:"book_id"`
	SeriesID      uint     `gorm:"primaryKey" json:"series_id"`
	Sequence      *float64 `json:"sequence,omitempty"`
	SequenceLabel string   `gorm:"size:50" json:"sequence_label,omitempty"`
	Series        Series   `gorm:"foreignKey:SeriesID" json:"series"`
}

func (BookSeries) TableName() string {
	return "book_series"
}
