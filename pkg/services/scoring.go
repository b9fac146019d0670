// Package services contains the retrieval pipeline and the workflow engine.
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// ============================================================================
// Score Weights
// ============================================================================

// Combined score weights. Initial defaults, subject to recalibration once
// enough feedback accumulates.
const (
	weightSemantic       = 0.25
	weightDisambiguation = 0.50
	weightHistorical     = 0.15
	weightOwnerBoost     = 0.10

	ownerBoostValue = 0.1

	contextBonus          = 0.10
	contextBonusThreshold = 0.5
)

// disambWeights are the per-use-case weights over (certification, freshness,
// quality). Each row sums to 1.0; context enters as a bonus, not a weight.
type disambWeights struct {
	cert, fresh, quality float64
}

var useCaseWeights = map[string]disambWeights{
	"operational": {cert: 0.25, fresh: 0.40, quality: 0.35},
	"analytical":  {cert: 0.30, fresh: 0.15, quality: 0.55},
	"regulatory":  {cert: 0.40, fresh: 0.10, quality: 0.50},
}

var defaultWeights = disambWeights{cert: 0.30, fresh: 0.30, quality: 0.40}

func weightsForUseCase(useCase string) disambWeights {
	if w, ok := useCaseWeights[strings.ToLower(useCase)]; ok {
		return w
	}
	return defaultWeights
}

// ============================================================================
// Certification
// ============================================================================

var dataLayerScores = map[models.DataLayer]float64{
	models.DataLayerSoT:  0.75,
	models.DataLayerSpec: 0.50,
	models.DataLayerSoR:  0.30,
}

// certificationScore scores a table's trust level. Either certification flag
// maxes it out; otherwise the data layer decides.
func certificationScore(t *models.TableInfo) float64 {
	if t.IsGoldenSource || t.IsVisaoCliente {
		return 1.0
	}
	if s, ok := dataLayerScores[t.DataLayer]; ok {
		return s
	}
	return 0.3
}

// ============================================================================
// Freshness
// ============================================================================

type freshnessWindow struct {
	fresh, stale float64 // hours
}

var freshnessWindows = map[models.UpdateFrequency]freshnessWindow{
	models.UpdateFrequencyRealtime: {fresh: 1, stale: 4},
	models.UpdateFrequencyDaily:    {fresh: 26, stale: 50},
	models.UpdateFrequencyWeekly:   {fresh: 170, stale: 200},
	models.UpdateFrequencyMonthly:  {fresh: 750, stale: 800},
}

var unknownFrequencyWindow = freshnessWindow{fresh: 72, stale: 168}

// freshnessScore scores how current a table is relative to its declared
// cadence. A table without last_updated is neutral.
func freshnessScore(t *models.TableInfo, now time.Time) float64 {
	if t.LastUpdated == nil {
		return 0.5
	}

	window, ok := freshnessWindows[t.UpdateFrequency]
	if !ok {
		window = unknownFrequencyWindow
	}

	hours := now.Sub(*t.LastUpdated).Hours()
	switch {
	case hours <= window.fresh:
		return 1.0
	case hours <= window.stale:
		return 0.7
	default:
		return 0.4
	}
}

// ============================================================================
// Context
// ============================================================================

// contextScore measures how well the table fits the caller's declared domain
// and product. Returns the score plus whether the product matched, which
// feeds the has_product_match flag.
func contextScore(t *models.TableInfo, userDomain, userProduct string) (float64, bool) {
	score := 0.0
	attempted := false

	if userDomain != "" {
		attempted = true
		if strings.EqualFold(userDomain, t.DomainID) {
			score += 0.5
		}
	}

	productMatch := false
	if userProduct != "" {
		attempted = true
		p := strings.ToLower(userProduct)
		if strings.Contains(strings.ToLower(t.InferredProduct), p) {
			productMatch = true
		} else if t.DataLayer == models.DataLayerSpec && strings.Contains(strings.ToLower(t.Name), p) {
			productMatch = true
		}
		if productMatch {
			score += 0.5
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	if score == 0 && attempted {
		return 0.3, false
	}
	if !attempted {
		return 0.3, false
	}
	return score, productMatch
}

// ============================================================================
// Combined Score
// ============================================================================

// disambiguationScore combines the four components under the use-case
// weights. The context component enters only as a bonus when it is strong.
func disambiguationScore(c models.DisambiguationComponents, useCase string) float64 {
	w := weightsForUseCase(useCase)
	total := w.cert*c.Certification + w.fresh*c.Freshness + w.quality*c.Quality
	if c.Context >= contextBonusThreshold {
		total += contextBonus
	}
	if total > 1.0 {
		total = 1.0
	}
	return total
}

// combinedScore folds semantic, disambiguation, historical, and owner-boost
// components into the final ranking score.
func combinedScore(s models.ScoreComponents) float64 {
	return weightSemantic*s.Semantic +
		weightDisambiguation*s.Disambiguation +
		weightHistorical*s.Historical +
		weightOwnerBoost*s.OwnerBoost
}

// scoreReasoning renders the user-visible score breakdown. Must stay stable
// for a given input: these strings end up in the decision log.
func scoreReasoning(s models.ScoreComponents) string {
	return fmt.Sprintf(
		"semântica %.2f · desambiguação %.2f (cert %.2f, atualidade %.2f, qualidade %.2f, contexto %.2f) · histórico %.2f · owner %.2f",
		s.Semantic, s.Disambiguation,
		s.Components.Certification, s.Components.Freshness, s.Components.Quality, s.Components.Context,
		s.Historical, s.OwnerBoost,
	)
}
