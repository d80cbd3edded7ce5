package utils

import (
	"regexp"
	"strings"
)

var (
	// Punctuation dropped before comparing titles and names
	keyPunctuation = regexp.MustCompile(`[\p{P}\p{S}]+`)
	// Multiple spaces to collapse
	multipleSpaces = regexp.MustCompile(`\s+`)
	// Remote catalog identifiers: 10 alphanumerics
	asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)
)

// NormalizeKey folds a title or contributor name into a comparison key:
// lower case, punctuation removed, whitespace collapsed.
func NormalizeKey(s string) string {
	s = strings.ToLower(s)
	s = keyPunctuation.ReplaceAllString(s, " ")
	s = multipleSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SameName reports whether two contributor names refer to the same person,
// ignoring case and surrounding whitespace.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// NormalizeASIN upper-cases and trims an identifier, returning "" if it is not
// a well-formed ASIN.
func NormalizeASIN(raw string) string {
	asin := strings.ToUpper(strings.TrimSpace(raw))
	if !asinPattern.MatchString(asin) {
		return ""
	}
	return asin
}

// languageCodes maps the language names and ISO 639 codes seen in catalog
// payloads to ISO 639-1.
var languageCodes = map[string]string{
	"english": "en", "eng": "en", "en": "en",
	"spanish": "es", "spa": "es", "es": "es", "español": "es",
	"french": "fr", "fra": "fr", "fre": "fr", "fr": "fr", "français": "fr",
	"german": "de", "deu": "de", "ger": "de", "de": "de", "deutsch": "de",
	"italian": "it", "ita": "it", "it": "it", "italiano": "it",
	"portuguese": "pt", "por": "pt", "pt": "pt",
	"dutch": "nl", "nld": "nl", "dut": "nl", "nl": "nl",
	"japanese": "ja", "jpn": "ja", "ja": "ja",
	"chinese": "zh", "zho": "zh", "chi": "zh", "zh": "zh", "mandarin_chinese": "zh",
	"russian": "ru", "rus": "ru", "ru": "ru",
	"polish": "pl", "pol": "pl", "pl": "pl",
	"swedish": "sv", "swe": "sv", "sv": "sv",
	"danish": "da", "dan": "da", "da": "da",
	"norwegian": "no", "nor": "no", "no": "no",
	"finnish": "fi", "fin": "fi", "fi": "fi",
	"hindi": "hi", "hin": "hi", "hi": "hi",
	"korean": "ko", "kor": "ko", "ko": "ko",
	"turkish": "tr", "tur": "tr", "tr": "tr",
	"arabic": "ar", "ara": "ar", "ar": "ar",
}

// LanguageCode returns the ISO 639-1 code for a language name or code.
// Unknown values are returned lower-cased so equal spellings still match.
func LanguageCode(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if code, ok := languageCodes[key]; ok {
		return code
	}
	return key
}

// LanguageMatches reports whether language satisfies the preferred filter.
// An empty filter accepts everything; an unknown book language is accepted.
func LanguageMatches(preferred, language string) bool {
	if strings.TrimSpace(preferred) == "" || strings.TrimSpace(language) == "" {
		return true
	}
	return LanguageCode(preferred) == LanguageCode(language)
}
