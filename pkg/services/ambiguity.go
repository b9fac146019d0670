package services

import (
	"fmt"
	"strings"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// AmbiguityConfig tunes detection thresholds.
type AmbiguityConfig struct {
	ScoreTieThreshold float64 // two leaders closer than this are a tie
	MinimumConfidence float64 // below this, everything is low confidence
}

// DetectAmbiguity inspects the ranked matches for situations where the
// caller should be asked to choose. Pure and deterministic.
func DetectAmbiguity(matches []models.TableMatch, cfg AmbiguityConfig) models.Ambiguity {
	if cfg.ScoreTieThreshold <= 0 {
		cfg.ScoreTieThreshold = 0.05
	}
	if cfg.MinimumConfidence <= 0 {
		cfg.MinimumConfidence = 0.40
	}

	if len(matches) == 0 {
		return models.Ambiguity{Type: models.AmbiguityNone}
	}

	top := matches[0]

	// Everything weak: the ranking itself is not trustworthy.
	if top.Score < cfg.MinimumConfidence {
		return models.Ambiguity{
			Type:               models.AmbiguityLowConfidence,
			ProvisionalTableID: top.Table.ID,
			Options:            topOptions(matches, 3, optionLabelTable),
			Question:           "Nenhuma tabela atingiu confiança mínima. Alguma destas atende, ou o dado precisa ser criado?",
		}
	}

	// Two leaders in distinct domains within the tie threshold.
	if len(matches) >= 2 {
		second := matches[1]
		if top.Score-second.Score < cfg.ScoreTieThreshold && top.Table.DomainID != second.Table.DomainID {
			return models.Ambiguity{
				Type:               models.AmbiguityDomainConflict,
				ProvisionalTableID: top.Table.ID,
				Options: []models.AmbiguityOption{
					{TableID: top.Table.ID, Label: optionLabelDomain(&top), Score: top.Score},
					{TableID: second.Table.ID, Label: optionLabelDomain(&second), Score: second.Score},
				},
				Question: fmt.Sprintf("A necessidade é do domínio %s ou %s?", top.Table.DomainID, second.Table.DomainID),
			}
		}
	}

	// Several products among the strong candidates.
	if products := distinctProducts(matches); len(products) > 1 {
		options := make([]models.AmbiguityOption, 0, len(products))
		for _, m := range matches[:min(5, len(matches))] {
			if m.Table.InferredProduct == "" {
				continue
			}
			options = append(options, models.AmbiguityOption{
				TableID: m.Table.ID,
				Label:   m.Table.InferredProduct,
				Score:   m.Score,
			})
		}
		return models.Ambiguity{
			Type:               models.AmbiguityMultipleProducts,
			ProvisionalTableID: top.Table.ID,
			Options:            options,
			Question:           fmt.Sprintf("Qual produto interessa: %s?", strings.Join(products, ", ")),
		}
	}

	return models.Ambiguity{Type: models.AmbiguityNone}
}

// distinctProducts lists the distinct nonempty inferred products among the
// top 5, in first-seen order.
func distinctProducts(matches []models.TableMatch) []string {
	seen := make(map[string]struct{})
	var products []string
	for _, m := range matches[:min(5, len(matches))] {
		p := strings.ToLower(m.Table.InferredProduct)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			products = append(products, p)
		}
	}
	return products
}

func topOptions(matches []models.TableMatch, n int, label func(*models.TableMatch) string) []models.AmbiguityOption {
	n = min(n, len(matches))
	options := make([]models.AmbiguityOption, 0, n)
	for i := 0; i < n; i++ {
		options = append(options, models.AmbiguityOption{
			TableID: matches[i].Table.ID,
			Label:   label(&matches[i]),
			Score:   matches[i].Score,
		})
	}
	return options
}

func optionLabelTable(m *models.TableMatch) string {
	if m.Table.DisplayName != "" {
		return m.Table.DisplayName
	}
	return m.Table.Name
}

func optionLabelDomain(m *models.TableMatch) string {
	return fmt.Sprintf("%s (domínio %s)", optionLabelTable(m), m.Table.DomainID)
}
