// Package feedback is the append-only decision log plus the derived
// historical-approval aggregates used during scoring.
package feedback

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// ConceptHash derives the 16-hex-char key under which historical approvals
// are aggregated. Built from the salient intent fields only: nonempty values
// are lowercased, sorted, joined with "|" and hashed, so identical intents
// always collide regardless of field order.
func ConceptHash(intent *models.Intent) string {
	fields := []string{
		intent.DataNeed,
		intent.TargetEntity,
		intent.TargetProduct,
		intent.TargetSegment,
		intent.Granularity,
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.ToLower(strings.TrimSpace(f)); s != "" {
			parts = append(parts, s)
		}
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}
