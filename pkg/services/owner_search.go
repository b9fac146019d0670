package services

import (
	"fmt"
	"sort"

	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

const maxOwnerMatches = 10

// Owner score weights: domain affinity dominates, tempered by the owner's
// historical approval rate.
const (
	ownerDomainWeight   = 0.6
	ownerApprovalWeight = 0.4
)

// SearchOwners ranks the owners of the matched domains. Each owner appears
// once even when several of their domains matched (best domain wins).
func SearchOwners(snap *catalog.Snapshot, domainMatches []models.DomainMatch) []models.OwnerMatch {
	best := make(map[string]models.OwnerMatch)

	for _, dm := range domainMatches {
		for _, owner := range snap.OwnersInDomain(dm.Domain.ID) {
			score := ownerDomainWeight*dm.Score + ownerApprovalWeight*owner.ApprovalRate
			if existing, ok := best[owner.ID]; ok && existing.Score >= score {
				continue
			}
			best[owner.ID] = models.OwnerMatch{
				Owner:       *owner,
				Score:       score,
				DomainScore: dm.Score,
				Reasoning: fmt.Sprintf("responsável no domínio %s (aprovação histórica %.0f%%)",
					dm.Domain.Name, owner.ApprovalRate*100),
			}
		}
	}

	matches := make([]models.OwnerMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Owner.ID < matches[j].Owner.ID
	})

	if len(matches) > maxOwnerMatches {
		matches = matches[:maxOwnerMatches]
	}
	return matches
}
