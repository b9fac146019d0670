package feedback

import (
	"context"
	"fmt"

	"github.com/catalogo-ai/catalog-engine/pkg/database"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

type postgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a Postgres-backed decision repository.
func NewPostgresRepository(db *database.DB) Repository {
	return &postgresRepository{db: db}
}

var _ Repository = (*postgresRepository)(nil)

func (r *postgresRepository) Insert(ctx context.Context, rec *models.DecisionRecord) (int64, error) {
	query := `
		INSERT INTO decision_records (
			request_id, concept_hash, domain_id, owner_id, table_id,
			outcome, actual_table_id, confidence_at_decision, use_case, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (request_id, table_id, outcome) DO NOTHING
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		rec.RequestID,
		rec.ConceptHash,
		nullString(rec.DomainID),
		nullString(rec.OwnerID),
		rec.TableID,
		string(rec.Outcome),
		nullString(rec.ActualTableID),
		rec.ConfidenceAtDecision,
		nullString(rec.UseCase),
		rec.CreatedAt,
	).Scan(&id)
	if err == nil {
		return id, nil
	}

	// ON CONFLICT DO NOTHING returns no rows for a duplicate; fetch the
	// original so the caller still gets a stable id.
	existing := `
		SELECT id FROM decision_records
		WHERE request_id = $1 AND table_id = $2 AND outcome = $3`
	if lookupErr := r.db.QueryRow(ctx, existing,
		rec.RequestID, rec.TableID, string(rec.Outcome)).Scan(&id); lookupErr == nil {
		return id, nil
	}

	return 0, fmt.Errorf("failed to insert decision record: %w", err)
}

func (r *postgresRepository) Aggregate(ctx context.Context, conceptHash, tableID string) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'APPROVED'),
			COUNT(*)
		FROM decision_records
		WHERE concept_hash = $1 AND table_id = $2`

	var approved, total int
	if err := r.db.QueryRow(ctx, query, conceptHash, tableID).Scan(&approved, &total); err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate decisions: %w", err)
	}
	return approved, total, nil
}

func (r *postgresRepository) TopTablesForConcept(ctx context.Context, conceptHash string, limit, minSamples int) ([]models.TableApproval, error) {
	query := `
		SELECT
			table_id,
			COUNT(*) FILTER (WHERE outcome = 'APPROVED')::float / COUNT(*) AS approval_rate,
			COUNT(*) AS sample_count
		FROM decision_records
		WHERE concept_hash = $1
		GROUP BY table_id
		HAVING COUNT(*) >= $2
		ORDER BY approval_rate DESC, sample_count DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, conceptHash, minSamples, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tables: %w", err)
	}
	defer rows.Close()

	var out []models.TableApproval
	for rows.Next() {
		var a models.TableApproval
		if err := rows.Scan(&a.TableID, &a.ApprovalRate, &a.SampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan table approval: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table approvals: %w", err)
	}
	return out, nil
}

// nullString returns nil if the string is empty, otherwise the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
