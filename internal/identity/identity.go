// Package identity computes canonical keys for free text, leads, and campaigns.
//
// Two strings denote the same identity iff their NormalizeText forms are
// equal: comparison ignores case, diacritics, whitespace, and punctuation.
// Lead ids are lossy fingerprints, not unique identifiers; distinct
// businesses whose truncated name and phone tail coincide share an id.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// nameFragmentLen caps the normalized name part of a lead id.
	nameFragmentLen = 24
	// neighborhoodFragmentLen caps the normalized neighborhood part.
	neighborhoodFragmentLen = 12
	// phoneFragmentLen is the number of trailing phone digits kept.
	phoneFragmentLen = 8

	idSeparator = "-"
)

// NormalizeText folds s to lowercase ASCII letters and digits only.
// Accented letters keep their base letter ("Pizzária" -> "pizzaria").
func NormalizeText(s string) string {
	folded, _, err := transform.String(foldDiacritics(), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldDiacritics returns a fresh transformer; transformers carry state and
// must not be shared between goroutines.
func foldDiacritics() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// CampaignKey is the folder identity of a niche.
func CampaignKey(niche string) string {
	return NormalizeText(niche)
}

// DeriveLeadID fingerprints a business from its name, phone, and optionally
// its neighborhood (pass "" to leave it out). The result is stable for
// identical inputs.
func DeriveLeadID(name, phone, neighborhood string) string {
	parts := make([]string, 0, 3)

	if n := truncate(NormalizeText(name), nameFragmentLen); n != "" {
		parts = append(parts, n)
	}
	if nb := truncate(NormalizeText(neighborhood), neighborhoodFragmentLen); nb != "" {
		parts = append(parts, nb)
	}
	if p := NormalizeText(phone); p != "" {
		if len(p) > phoneFragmentLen {
			p = p[len(p)-phoneFragmentLen:]
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, idSeparator)
}

// DisplayNiche is the uppercase display form stored on campaigns.
func DisplayNiche(niche string) string {
	return strings.ToUpper(strings.Join(strings.Fields(niche), " "))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
