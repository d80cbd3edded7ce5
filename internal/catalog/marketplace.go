package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Marketplace describes one regional storefront.
type Marketplace struct {
	Code     string
	APIHost  string
	TLD      string
	Currency string
	Locale   string
}

var marketplaces = map[string]Marketplace{
	"us": {Code: "us", APIHost: "api.audible.com", TLD: "com", Currency: "USD", Locale: "en-US"},
	"uk": {Code: "uk", APIHost: "api.audible.co.uk", TLD: "co.uk", Currency: "GBP", Locale: "en-GB"},
	"de": {Code: "de", APIHost: "api.audible.de", TLD: "de", Currency: "EUR", Locale: "de-DE"},
	"fr": {Code: "fr", APIHost: "api.audible.fr", TLD: "fr", Currency: "EUR", Locale: "fr-FR"},
	"ca": {Code: "ca", APIHost: "api.audible.ca", TLD: "ca", Currency: "CAD", Locale: "en-CA"},
	"au": {Code: "au", APIHost: "api.audible.com.au", TLD: "com.au", Currency: "AUD", Locale: "en-AU"},
	"in": {Code: "in", APIHost: "api.audible.in", TLD: "in", Currency: "INR", Locale: "en-IN"},
	"it": {Code: "it", APIHost: "api.audible.it", TLD: "it", Currency: "EUR", Locale: "it-IT"},
	"es": {Code: "es", APIHost: "api.audible.es", TLD: "es", Currency: "EUR", Locale: "es-ES"},
	"jp": {Code: "jp", APIHost: "api.audible.co.jp", TLD: "co.jp", Currency: "JPY", Locale: "ja-JP"},
}

// LookupMarketplace returns the marketplace for a code such as "us" or "UK".
func LookupMarketplace(code string) (Marketplace, error) {
	m, ok := marketplaces[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Marketplace{}, fmt.Errorf("%w: %q", ErrInvalidMarketplace, code)
	}
	return m, nil
}

// MarketplaceCodes returns all supported codes, sorted.
func MarketplaceCodes() []string {
	codes := make([]string, 0, len(marketplaces))
	for code := range marketplaces {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// TokenHost returns the host of the marketplace's token endpoint.
func (m Marketplace) TokenHost() string {
	return "api.amazon." + m.TLD
}
