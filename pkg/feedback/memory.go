package feedback

import (
	"context"
	"sort"
	"sync"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// memoryRepository is the in-memory Repository used in tests. Honors the same
// dedup and aggregation semantics as the Postgres implementation.
type memoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records []models.DecisionRecord
	byKey   map[string]int64 // request_id|table_id|outcome -> id
}

// NewMemoryRepository creates an empty in-memory decision repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{byKey: make(map[string]int64)}
}

var _ Repository = (*memoryRepository)(nil)

func dedupKey(rec *models.DecisionRecord) string {
	return rec.RequestID + "|" + rec.TableID + "|" + string(rec.Outcome)
}

func (r *memoryRepository) Insert(_ context.Context, rec *models.DecisionRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[dedupKey(rec)]; ok {
		return id, nil
	}

	r.nextID++
	stored := *rec
	stored.ID = r.nextID
	r.records = append(r.records, stored)
	r.byKey[dedupKey(rec)] = stored.ID
	return stored.ID, nil
}

func (r *memoryRepository) Aggregate(_ context.Context, conceptHash, tableID string) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var approved, total int
	for i := range r.records {
		rec := &r.records[i]
		if rec.ConceptHash != conceptHash || rec.TableID != tableID {
			continue
		}
		total++
		if rec.Outcome == models.OutcomeApproved {
			approved++
		}
	}
	return approved, total, nil
}

func (r *memoryRepository) TopTablesForConcept(_ context.Context, conceptHash string, limit, minSamples int) ([]models.TableApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type agg struct{ approved, total int }
	byTable := make(map[string]*agg)
	for i := range r.records {
		rec := &r.records[i]
		if rec.ConceptHash != conceptHash {
			continue
		}
		a := byTable[rec.TableID]
		if a == nil {
			a = &agg{}
			byTable[rec.TableID] = a
		}
		a.total++
		if rec.Outcome == models.OutcomeApproved {
			a.approved++
		}
	}

	var out []models.TableApproval
	for tableID, a := range byTable {
		if a.total < minSamples {
			continue
		}
		out = append(out, models.TableApproval{
			TableID:      tableID,
			ApprovalRate: float64(a.approved) / float64(a.total),
			SampleCount:  a.total,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ApprovalRate != out[j].ApprovalRate {
			return out[i].ApprovalRate > out[j].ApprovalRate
		}
		if out[i].SampleCount != out[j].SampleCount {
			return out[i].SampleCount > out[j].SampleCount
		}
		return out[i].TableID < out[j].TableID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
