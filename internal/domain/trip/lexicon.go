package trip

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// interestTranslations canonicalizes the non-English interest terms the
// mobile clients commonly send. The canonical lexicon is English.
var interestTranslations = map[string]string{
	"museu":        "museum",
	"musee":        "museum",
	"museo":        "museum",
	"kunst":        "art",
	"arte":         "art",
	"gastronomia":  "food",
	"gastronomie":  "food",
	"comida":       "food",
	"essen":        "food",
	"nachtleben":   "nightlife",
	"vida noturna": "nightlife",
	"compras":      "shopping",
	"einkaufen":    "shopping",
	"natureza":     "nature",
	"natur":        "nature",
	"historia":     "history",
	"geschichte":   "history",
	"arquitetura":  "architecture",
	"architektur":  "architecture",
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeInterest lowercases, strips diacritics and translates an interest
// term into the canonical lexicon before storage.
func NormalizeInterest(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if stripped, _, err := transform.String(diacriticStripper, s); err == nil {
		s = stripped
	}
	if canonical, ok := interestTranslations[s]; ok {
		return canonical
	}
	return s
}

// NormalizeInterests normalizes and dedupes a list, preserving order.
func NormalizeInterests(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		n := NormalizeInterest(r)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
