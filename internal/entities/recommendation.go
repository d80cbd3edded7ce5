package entities

import "time"

type RecommendationKind string

const (
	RecommendationKindAuthor   RecommendationKind = "author"
	RecommendationKindNarrator RecommendationKind = "narrator"
	RecommendationKindSeries   RecommendationKind = "series"
)

type PurchaseMethod string

const (
	PurchaseMethodCash   PurchaseMethod = "cash"
	PurchaseMethodCredit PurchaseMethod = "credit"
)

// Recommendation is one reason to suggest a book. The same book may appear once
// per (kind, source) pair.
type Recommendation struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	OwnerID        uint               `gorm:"uniqueIndex:idx_recommendation_identity;not null" json:"owner_id"`
	BookASIN       string             `gorm:"uniqueIndex:idx_recommendation_identity;size:20;not null" json:"book_asin"`
	Kind           RecommendationKind `gorm:"uniqueIndex:idx_recommendation_identity;size:20;not null" json:"kind"`
	SourceName     string             `gorm:"uniqueIndex:idx_recommendation_identity;not null" json:"source_name"`
	Title          string             `json:"title"`
	Authors        string             `json:"authors,omitempty"`
	Narrators      string             `json:"narrators,omitempty"`
	Language       string             `gorm:"size:50" json:"language,omitempty"`
	Price          *float64           `json:"price,omitempty"`
	Currency       string             `gorm:"size:3" json:"currency,omitempty"`
	Confidence     float64            `json:"confidence"`
	PurchaseMethod PurchaseMethod     `gorm:"size:10" json:"purchase_method"`
	Dismissed      bool               `gorm:"not null;default:false" json:"dismissed"`
	GeneratedAt    time.Time          `gorm:"index" json:"generated_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}
