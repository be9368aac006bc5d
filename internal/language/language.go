package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Sentinel tags detectors return when no single language applies. They
// normalize to the empty string so callers treat them as "undetected".
var undetermined = map[string]struct{}{
	"und":     {},
	"mul":     {},
	"zxx":     {},
	"mixed":   {},
	"unknown": {},
	"none":    {},
	"n/a":     {},
}

// Word forms and bibliographic ISO 639-2 codes x/text does not accept.
var aliases = map[string]string{
	"english":  "en",
	"german":   "de",
	"deutsch":  "de",
	"hebrew":   "he",
	"ivrit":    "he",
	"spanish":  "es",
	"french":   "fr",
	"italian":  "it",
	"russian":  "ru",
	"arabic":   "ar",
	"yiddish":  "yi",
	"polish":   "pl",
	"dutch":    "nl",
	"ger":      "de",
	"fre":      "fr",
	"dut":      "nl",
	"chi":      "zh",
	"iw":       "he",
	"ji":       "yi",
	"portugal": "pt",
}

// Normalize converts a language code, BCP 47 tag or English language name to
// a lowercase ISO 639-1 code (ISO 639-3 when no 2-letter code exists).
// Unrecognized input and "undetermined" sentinels return "".
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	code = strings.Trim(code, `"'.`)
	if code == "" {
		return ""
	}
	if _, ok := undetermined[code]; ok {
		return ""
	}
	if mapped, ok := aliases[code]; ok {
		return mapped
	}
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No {
		return ""
	}
	normalized := base.String()
	if _, ok := undetermined[normalized]; ok {
		return ""
	}
	return normalized
}

// Equal reports whether two tags name the same base language. Undetermined
// tags are never equal to anything.
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}

// DisplayName returns the English name of a language ("German"), "Unknown"
// for empty input, or the uppercased input when it is unrecognized.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	normalized := Normalize(trimmed)
	if normalized == "" {
		return strings.ToUpper(trimmed)
	}
	name := display.English.Languages().Name(xlanguage.Make(normalized))
	if name == "" {
		return strings.ToUpper(normalized)
	}
	return name
}

// NormalizeList deduplicates and normalizes a list of language codes,
// dropping entries that cannot be recognized.
func NormalizeList(languages []string) []string {
	if len(languages) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		code := Normalize(lang)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}
	return normalized
}
