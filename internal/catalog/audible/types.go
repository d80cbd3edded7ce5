package audible

import (
	"strconv"
	"strings"

	"github.com/mrlokans/listenwise/internal/catalog"
)

// libraryResponse is the /1.0/library payload.
type libraryResponse struct {
	Items        []rawProduct `json:"items"`
	TotalResults int          `json:"total_results"`
}

// productsResponse is the /1.0/catalog/products payload.
type productsResponse struct {
	Products     []rawProduct `json:"products"`
	TotalResults int          `json:"total_results"`
}

type rawProduct struct {
	ASIN                       string           `json:"asin"`
	Title                      string           `json:"title"`
	Subtitle                   string           `json:"subtitle"`
	Authors                    []rawContributor `json:"authors"`
	Narrators                  []rawContributor `json:"narrators"`
	Series                     []rawSeries      `json:"series"`
	Language                   string           `json:"language"`
	RuntimeLengthMin           *int             `json:"runtime_length_min"`
	ReleaseDate                string           `json:"release_date"`
	IssueDate                  string           `json:"issue_date"`
	PublicationDatetime        string           `json:"publication_datetime"`
	PurchaseDate               string           `json:"purchase_date"`
	PercentComplete            *float64         `json:"percent_complete"`
	IsFinished                 bool             `json:"is_finished"`
	PublisherName              string           `json:"publisher_name"`
	ContentType                string           `json:"content_type"`
	MerchandisingSummary       string           `json:"merchandising_summary"`
	ExtendedProductDescription string           `json:"extended_product_description"`
	CategoryLadders            []any            `json:"category_ladders"`
	Price                      *rawPrice        `json:"price"`
}

type rawContributor struct {
	ASIN string `json:"asin"`
	Name string `json:"name"`
}

type rawSeries struct {
	ASIN     string `json:"asin"`
	Title    string `json:"title"`
	Sequence string `json:"sequence"`
}

type rawPrice struct {
	ListPrice   *rawPriceValue `json:"list_price"`
	LowestPrice *rawPriceValue `json:"lowest_price"`
}

type rawPriceValue struct {
	Base         *float64 `json:"base"`
	CurrencyCode string   `json:"currency_code"`
	Type         string   `json:"type"`
}

// toEntry converts a product to a catalog entry. Fields without a typed home
// go to Extra.
func (p rawProduct) toEntry() catalog.RawEntry {
	entry := catalog.RawEntry{
		ASIN:            p.ASIN,
		Title:           p.Title,
		Subtitle:        p.Subtitle,
		Authors:         toContributors(p.Authors),
		Narrators:       toContributors(p.Narrators),
		Language:        p.Language,
		RuntimeMinutes:  p.RuntimeLengthMin,
		ReleaseDate:     firstNonEmpty(p.ReleaseDate, p.IssueDate),
		PurchaseDate:    p.PurchaseDate,
		PercentComplete: p.PercentComplete,
		IsFinished:      p.IsFinished,
		Price:           p.Price.toPrice(),
		Extra:           map[string]any{},
	}

	for _, s := range p.Series {
		entry.Series = append(entry.Series, catalog.RawSeries{ID: s.ASIN, Title: s.Title, Sequence: s.Sequence})
	}

	setExtra(entry.Extra, "publisher_name", p.PublisherName)
	setExtra(entry.Extra, "content_type", p.ContentType)
	setExtra(entry.Extra, "merchandising_summary", p.MerchandisingSummary)
	setExtra(entry.Extra, "extended_product_description", p.ExtendedProductDescription)
	setExtra(entry.Extra, "publication_datetime", p.PublicationDatetime)
	if len(p.CategoryLadders) > 0 {
		entry.Extra["category_ladders"] = p.CategoryLadders
	}

	return entry
}

// toPrice prefers the member price, falling back to the list price.
func (p *rawPrice) toPrice() *catalog.Price {
	if p == nil {
		return nil
	}
	if p.LowestPrice != nil && p.LowestPrice.Type == "member" && p.LowestPrice.Base != nil {
		return &catalog.Price{Amount: *p.LowestPrice.Base, Currency: p.LowestPrice.CurrencyCode}
	}
	if p.ListPrice != nil && p.ListPrice.Base != nil {
		return &catalog.Price{Amount: *p.ListPrice.Base, Currency: p.ListPrice.CurrencyCode}
	}
	return nil
}

func toContributors(raw []rawContributor) []catalog.RawContributor {
	var out []catalog.RawContributor
	for _, c := range raw {
		out = append(out, catalog.RawContributor{ID: c.ASIN, Name: c.Name})
	}
	return out
}

// inSeries reports whether the product belongs to the series, by id when both
// sides have one, else by case-insensitive title.
func (p rawProduct) inSeries(ref catalog.SeriesRef) bool {
	for _, s := range p.Series {
		if ref.ID != "" && s.ASIN != "" {
			if s.ASIN == ref.ID {
				return true
			}
			continue
		}
		if strings.EqualFold(strings.TrimSpace(s.Title), strings.TrimSpace(ref.Title)) {
			return true
		}
	}
	return false
}

func setExtra(extra map[string]any, key, value string) {
	if value != "" {
		extra[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func pageNumber(token string) int {
	if token == "" {
		return 1
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
