// Package enrich augments confirmed identifications with sommelier knowledge
// and maintains the canonical-keyed enrichment cache.
package enrich

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key is the canonical enrichment-cache identifier: case-, diacritic-, and
// whitespace-normalized (producer, wineName, vintage).
type Key struct {
	Producer string
	WineName string
	Vintage  string
}

// Canonical folds diacritics, lowercases, trims, and collapses internal
// whitespace. Idempotent: Canonical(Canonical(x)) == Canonical(x).
func Canonical(s string) string {
	// The transform chain carries internal state, so build it per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// CanonicalKey builds the cache key for a wine.
func CanonicalKey(producer, wineName, vintage string) Key {
	return Key{
		Producer: Canonical(producer),
		WineName: Canonical(wineName),
		Vintage:  Canonical(vintage),
	}
}
