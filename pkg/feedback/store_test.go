package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/apperrors"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

func newTestStore() Store {
	return NewStore(NewMemoryRepository(), 3, 5*time.Minute, zap.NewNop())
}

func record(requestID, tableID string, outcome models.DecisionOutcome) *models.DecisionRecord {
	return &models.DecisionRecord{
		RequestID:   requestID,
		ConceptHash: "abc123def4567890",
		TableID:     tableID,
		Outcome:     outcome,
	}
}

func TestRecordDecisionAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore()

	rec := record("req-1", "tbl-1", models.OutcomeApproved)
	id, err := s.RecordDecision(context.Background(), rec)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestRecordDecisionIdempotent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id1, err := s.RecordDecision(ctx, record("req-1", "tbl-1", models.OutcomeApproved))
	require.NoError(t, err)
	id2, err := s.RecordDecision(ctx, record("req-1", "tbl-1", models.OutcomeApproved))
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "duplicate record returns the original id")

	// The duplicate must add no aggregate weight. Record two more to clear
	// min_samples, then check the rate reflects exactly three records.
	_, err = s.RecordDecision(ctx, record("req-2", "tbl-1", models.OutcomeApproved))
	require.NoError(t, err)
	_, err = s.RecordDecision(ctx, record("req-3", "tbl-1", models.OutcomeRejected))
	require.NoError(t, err)

	score, count, err := s.GetHistoricalScore(ctx, "abc123def4567890", "tbl-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.InDelta(t, 2.0/3.0, score, 1e-9)
}

func TestRecordDecisionValidation(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *models.DecisionRecord
	}{
		{"missing request_id", &models.DecisionRecord{TableID: "t", Outcome: models.OutcomeApproved}},
		{"missing table_id", &models.DecisionRecord{RequestID: "r", Outcome: models.OutcomeApproved}},
		{"invalid outcome", &models.DecisionRecord{RequestID: "r", TableID: "t", Outcome: "MAYBE"}},
		{"modified without actual table", record("r", "t", models.OutcomeModified)},
		{"modified with same actual table", func() *models.DecisionRecord {
			r := record("r", "t", models.OutcomeModified)
			r.ActualTableID = "t"
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RecordDecision(ctx, tt.rec)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestGetHistoricalScoreBelowMinSamples(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.RecordDecision(ctx, record("req-1", "tbl-1", models.OutcomeApproved))
	require.NoError(t, err)

	score, count, err := s.GetHistoricalScore(ctx, "abc123def4567890", "tbl-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9, "below min_samples the score is neutral")
	assert.Equal(t, 1, count)
}

func TestGetHistoricalScoreCachedSentinel(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for _, req := range []string{"r1", "r2", "r3", "r4"} {
		_, err := s.RecordDecision(ctx, record(req, "tbl-1", models.OutcomeApproved))
		require.NoError(t, err)
	}

	score, count, err := s.GetHistoricalScore(ctx, "abc123def4567890", "tbl-1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, 4, count)

	score, count, err = s.GetHistoricalScore(ctx, "abc123def4567890", "tbl-1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, CachedSampleCount, count, "second read answers from cache")
}

func TestRecordDecisionInvalidatesAggregateCache(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for _, req := range []string{"r1", "r2", "r3"} {
		_, err := s.RecordDecision(ctx, record(req, "tbl-1", models.OutcomeApproved))
		require.NoError(t, err)
	}

	// Prime the cache.
	_, _, err := s.GetHistoricalScore(ctx, "abc123def4567890", "tbl-1")
	require.NoError(t, err)

	// A new rejection must be visible on the next read.
	_, err = s.RecordDecision(ctx, record("r4", "tbl-1", models.OutcomeRejected))
	require.NoError(t, err)

	score, count, err := s.GetHistoricalScore(ctx, "abc123def4567890", "tbl-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "read after write bypasses the stale cache entry")
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestGetTopTablesForConcept(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	// tbl-a: 3 approved. tbl-b: 2 approved, 2 rejected. tbl-c: only 2 records.
	for i, spec := range []struct {
		table   string
		outcome models.DecisionOutcome
	}{
		{"tbl-a", models.OutcomeApproved}, {"tbl-a", models.OutcomeApproved}, {"tbl-a", models.OutcomeApproved},
		{"tbl-b", models.OutcomeApproved}, {"tbl-b", models.OutcomeApproved}, {"tbl-b", models.OutcomeRejected}, {"tbl-b", models.OutcomeRejected},
		{"tbl-c", models.OutcomeApproved}, {"tbl-c", models.OutcomeApproved},
	} {
		rec := record("req", spec.table, spec.outcome)
		rec.RequestID = rec.RequestID + "-" + spec.table + "-" + string(rune('0'+i))
		_, err := s.RecordDecision(ctx, rec)
		require.NoError(t, err)
	}

	top, err := s.GetTopTablesForConcept(ctx, "abc123def4567890", 10)
	require.NoError(t, err)
	require.Len(t, top, 2, "tables below 3 samples are excluded")
	assert.Equal(t, "tbl-a", top[0].TableID)
	assert.InDelta(t, 1.0, top[0].ApprovalRate, 1e-9)
	assert.Equal(t, "tbl-b", top[1].TableID)
	assert.InDelta(t, 0.5, top[1].ApprovalRate, 1e-9)
}

func TestConceptHash(t *testing.T) {
	a := &models.Intent{DataNeed: "vendas mensais", TargetProduct: "consignado"}
	b := &models.Intent{TargetProduct: "Consignado", DataNeed: "VENDAS MENSAIS"}
	c := &models.Intent{DataNeed: "saldo", TargetProduct: "consignado"}

	assert.Len(t, ConceptHash(a), 16)
	assert.Equal(t, ConceptHash(a), ConceptHash(b), "case and field order do not matter")
	assert.NotEqual(t, ConceptHash(a), ConceptHash(c))

	// Fields that are not salient must not affect the hash.
	d := &models.Intent{DataNeed: "vendas mensais", TargetProduct: "consignado", OriginalQuery: "x", TimeReference: "2024"}
	assert.Equal(t, ConceptHash(a), ConceptHash(d))
}
