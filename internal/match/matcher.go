// Package match implements fuzzy matching of generic products against
// the specialized catalogs. Everything here is pure computation: no
// I/O, no shared state, deterministic output for a given input.
package match

import (
	"strings"
	"unicode"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/catalog"
)

// Config holds matcher tuning knobs.
type Config struct {
	// Threshold is the minimum score a candidate must reach to be
	// accepted. False negatives are fine (the product logs as generic
	// food); false positives mis-route the user's data, so the default
	// leans conservative.
	Threshold float64

	// BrandBonus is added when both query and candidate carry a brand
	// and the brands normalize-equal.
	BrandBonus float64
}

// DefaultConfig returns the default matcher tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:  0.5,
		BrandBonus: 0.2,
	}
}

// Query is the normalized-input side of a match: the generic product's
// name and brand as reported by the lookup backend.
type Query struct {
	Name  string
	Brand string
}

// Candidate is one scored catalog entry.
type Candidate struct {
	ID         string
	Score      float64
	BrandExact bool
}

// BestAlcohol returns the best-scoring alcohol entry above the
// threshold, or (zero, false) when nothing qualifies.
func BestAlcohol(cfg Config, q Query, entries []catalog.AlcoholEntry) (catalog.AlcoholEntry, float64, bool) {
	best := -1
	var bestCand Candidate

	for i, entry := range entries {
		cand := score(cfg, q, entry.ID, entry.Name, entry.Brand)
		if better(cand, bestCand, best >= 0) {
			best = i
			bestCand = cand
		}
	}

	if best < 0 || bestCand.Score < cfg.Threshold {
		return catalog.AlcoholEntry{}, bestScore(bestCand, best >= 0), false
	}
	return entries[best], bestCand.Score, true
}

// BestCaffeine returns the best-scoring caffeine entry above the
// threshold, or (zero, false) when nothing qualifies.
func BestCaffeine(cfg Config, q Query, entries []catalog.CaffeineEntry) (catalog.CaffeineEntry, float64, bool) {
	best := -1
	var bestCand Candidate

	for i, entry := range entries {
		cand := score(cfg, q, entry.ID, entry.Name, entry.Brand)
		if better(cand, bestCand, best >= 0) {
			best = i
			bestCand = cand
		}
	}

	if best < 0 || bestCand.Score < cfg.Threshold {
		return catalog.CaffeineEntry{}, bestScore(bestCand, best >= 0), false
	}
	return entries[best], bestCand.Score, true
}

func bestScore(cand Candidate, found bool) float64 {
	if !found {
		return 0
	}
	return cand.Score
}

// better reports whether cand beats cur. Ties prefer an exact brand
// match, then the lexicographically smallest ID, keeping selection
// deterministic and testable.
func better(cand, cur Candidate, haveCur bool) bool {
	if !haveCur {
		return true
	}
	if cand.Score != cur.Score {
		return cand.Score > cur.Score
	}
	if cand.BrandExact != cur.BrandExact {
		return cand.BrandExact
	}
	return cand.ID < cur.ID
}

// score computes the similarity between the query and one candidate:
// token-set overlap over name+brand tokens as the primary signal, plus
// a bonus for a normalize-equal brand.
func score(cfg Config, q Query, id, name, brand string) Candidate {
	queryTokens := tokenSet(q.Name, q.Brand)
	candTokens := tokenSet(name, brand)

	s := overlap(queryTokens, candTokens)

	qBrand := Normalize(q.Brand)
	cBrand := Normalize(brand)
	brandExact := qBrand != "" && qBrand == cBrand
	if brandExact {
		s += cfg.BrandBonus
	}
	if s > 1 {
		s = 1
	}

	return Candidate{ID: id, Score: s, BrandExact: brandExact}
}

// overlap is the Jaccard index of two token sets.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}

	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// tokenSet builds the set of normalized tokens from name and brand.
func tokenSet(name, brand string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(Normalize(name)) {
		set[tok] = struct{}{}
	}
	for _, tok := range strings.Fields(Normalize(brand)) {
		set[tok] = struct{}{}
	}
	return set
}

// Normalize lowercases, strips punctuation, and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}
