package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

const maxDomainMatches = 5

// fallbackDomainScore is assigned when no domain keyword intersects the
// intent at all.
const fallbackDomainScore = 0.3

// SearchDomains ranks catalog domains against the intent's keyword bag.
// Pure: no I/O, deterministic for a given snapshot and intent.
func SearchDomains(snap *catalog.Snapshot, intent *models.Intent) []models.DomainMatch {
	domains := snap.Domains()
	if len(domains) == 0 {
		return nil
	}

	bag := intentKeywordBag(intent)

	matches := make([]models.DomainMatch, 0, len(domains))
	anyHit := false
	for _, d := range domains {
		overlap := keywordOverlap(bag, d.Keywords)
		if overlap == 0 {
			continue
		}
		anyHit = true
		score := float64(overlap)/float64(max(len(bag), 1)) + 0.3
		if score > 1.0 {
			score = 1.0
		}
		matches = append(matches, models.DomainMatch{
			Domain:    d,
			Score:     score,
			Reasoning: fmt.Sprintf("%d termo(s) em comum com o domínio %s", overlap, d.Name),
		})
	}

	if !anyHit {
		// Snapshot order is alphabetical, so the fallback is stable.
		n := min(maxDomainMatches, len(domains))
		matches = matches[:0]
		for _, d := range domains[:n] {
			matches = append(matches, models.DomainMatch{
				Domain:    d,
				Score:     fallbackDomainScore,
				Reasoning: "fallback: no direct match",
			})
		}
		return matches
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Domain.ID < matches[j].Domain.ID
	})

	if len(matches) > maxDomainMatches {
		matches = matches[:maxDomainMatches]
	}
	return matches
}

// intentKeywordBag collects the lowercased tokens that describe the intent.
func intentKeywordBag(intent *models.Intent) map[string]struct{} {
	bag := make(map[string]struct{})

	addTokens := func(s string) {
		for _, tok := range strings.Fields(strings.ToLower(s)) {
			bag[tok] = struct{}{}
		}
	}

	addTokens(intent.DataNeed)
	addTokens(intent.TargetEntity)
	addTokens(intent.TargetProduct)
	addTokens(intent.TargetSegment)
	for _, d := range intent.InferredDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			bag[d] = struct{}{}
		}
	}
	return bag
}

func keywordOverlap(bag map[string]struct{}, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if _, ok := bag[strings.ToLower(kw)]; ok {
			n++
		}
	}
	return n
}
