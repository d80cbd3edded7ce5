package entities

import "time"

// LibraryEntry records that an owner holds a book. Entries are never deleted by a
// sync; Visible is cleared when the owner's language filter excludes the book.
type LibraryEntry struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	OwnerID         uint       `gorm:"uniqueIndex:idx_library_owner_book;not null" json:"owner_id"`
	BookID          uint       `gorm:"uniqueIndex:idx_library_owner_book;not null" json:"book_id"`
	BookASIN        string     `gorm:"index;size:20" json:"book_asin"`
	AcquiredAt      time.Time  `json:"acquired_at"`
	Visible         bool       `gorm:"not null" json:"visible"`
	PurchaseDate    *time.Time `json:"purchase_date,omitempty"`
	PercentComplete *float64   `json:"percent_complete,omitempty"`
	IsFinished      bool       `json:"is_finished"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	Book            Book       `gorm:"foreignKey:BookID" json:"book"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (LibraryEntry) TableName() string {
	return "library_entries"
}

// UpsertOutcome classifies what a library upsert did to the owner's library.
type UpsertOutcome string

const (
	UpsertCreated   UpsertOutcome = "created"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)
