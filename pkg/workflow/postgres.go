package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/catalogo-ai/catalog-engine/pkg/apperrors"
	"github.com/catalogo-ai/catalog-engine/pkg/database"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// ============================================================================
// Postgres repositories
// ============================================================================

type postgresVariableRepository struct {
	db *database.DB
}

// NewPostgresVariableRepository creates a Postgres-backed variable repository.
func NewPostgresVariableRepository(db *database.DB) VariableRepository {
	return &postgresVariableRepository{db: db}
}

var _ VariableRepository = (*postgresVariableRepository)(nil)

func (r *postgresVariableRepository) Create(ctx context.Context, v *models.Variable) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	query := `
		INSERT INTO variables (id, name, description, status, selected_match_id, requester_id, use_case, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		v.ID, v.Name, nullString(v.Description), string(v.Status),
		v.SelectedMatchID, v.RequesterID, nullString(v.UseCase), v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert variable: %w", err)
	}
	return nil
}

func (r *postgresVariableRepository) Get(ctx context.Context, id uuid.UUID) (*models.Variable, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), status, selected_match_id,
		       requester_id, COALESCE(use_case, ''), created_at, updated_at
		FROM variables WHERE id = $1`

	var v models.Variable
	err := r.db.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.Description, (*string)(&v.Status), &v.SelectedMatchID,
		&v.RequesterID, &v.UseCase, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variable: %w", err)
	}
	return &v, nil
}

func (r *postgresVariableRepository) Update(ctx context.Context, v *models.Variable) error {
	query := `
		UPDATE variables
		SET name = $2, description = $3, status = $4, selected_match_id = $5,
		    use_case = $6, updated_at = $7
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		v.ID, v.Name, nullString(v.Description), string(v.Status),
		v.SelectedMatchID, nullString(v.UseCase), v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update variable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

type postgresMatchRepository struct {
	db *database.DB
}

// NewPostgresMatchRepository creates a Postgres-backed match repository.
func NewPostgresMatchRepository(db *database.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

var _ MatchRepository = (*postgresMatchRepository)(nil)

const matchColumns = `id, variable_id, table_id, table_name, COALESCE(domain_id, ''),
	assigned_owner_id, status, is_selected, score, COALESCE(reasoning, ''), created_at, updated_at`

func (r *postgresMatchRepository) Create(ctx context.Context, m *models.WorkflowMatch) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO workflow_matches (id, variable_id, table_id, table_name, domain_id,
			assigned_owner_id, status, is_selected, score, reasoning, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		m.ID, m.VariableID, m.TableID, m.TableName, nullString(m.DomainID),
		m.AssignedOwnerID, string(m.Status), m.IsSelected, m.Score,
		nullString(m.Reasoning), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert workflow match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) Get(ctx context.Context, id uuid.UUID) (*models.WorkflowMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM workflow_matches WHERE id = $1`

	var m models.WorkflowMatch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.VariableID, &m.TableID, &m.TableName, &m.DomainID,
		&m.AssignedOwnerID, (*string)(&m.Status), &m.IsSelected, &m.Score,
		&m.Reasoning, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow match: %w", err)
	}
	return &m, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, m *models.WorkflowMatch) error {
	query := `
		UPDATE workflow_matches
		SET status = $2, is_selected = $3, assigned_owner_id = $4, reasoning = $5, updated_at = $6
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		m.ID, string(m.Status), m.IsSelected, m.AssignedOwnerID,
		nullString(m.Reasoning), m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *postgresMatchRepository) ListByVariable(ctx context.Context, variableID uuid.UUID) ([]models.WorkflowMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM workflow_matches WHERE variable_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, variableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow matches: %w", err)
	}
	defer rows.Close()

	var out []models.WorkflowMatch
	for rows.Next() {
		var m models.WorkflowMatch
		if err := rows.Scan(
			&m.ID, &m.VariableID, &m.TableID, &m.TableName, &m.DomainID,
			&m.AssignedOwnerID, (*string)(&m.Status), &m.IsSelected, &m.Score,
			&m.Reasoning, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow matches: %w", err)
	}
	return out, nil
}

func (r *postgresMatchRepository) ClearSelection(ctx context.Context, variableID, exceptID uuid.UUID) error {
	query := `
		UPDATE workflow_matches SET is_selected = false, updated_at = now()
		WHERE variable_id = $1 AND id <> $2 AND is_selected`
	if _, err := r.db.Exec(ctx, query, variableID, exceptID); err != nil {
		return fmt.Errorf("failed to clear match selection: %w", err)
	}
	return nil
}

type postgresResponseRepository struct {
	db *database.DB
}

// NewPostgresResponseRepository creates a Postgres-backed response repository.
func NewPostgresResponseRepository(db *database.DB) ResponseRepository {
	return &postgresResponseRepository{db: db}
}

var _ ResponseRepository = (*postgresResponseRepository)(nil)

func (r *postgresResponseRepository) InsertOwnerResponse(ctx context.Context, resp *models.OwnerResponse) error {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	query := `
		INSERT INTO owner_responses (id, match_id, response_type, usage_criteria,
			corrected_table_id, delegate_to_id, delegate_area, comment, responder_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, query,
		resp.ID, resp.MatchID, string(resp.ResponseType), nullString(resp.UsageCriteria),
		nullString(resp.CorrectedTableID), nullString(resp.DelegateToID),
		nullString(resp.DelegateArea), nullString(resp.Comment), resp.ResponderID, resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert owner response: %w", err)
	}
	return nil
}

func (r *postgresResponseRepository) InsertRequesterResponse(ctx context.Context, resp *models.RequesterResponse) error {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	query := `
		INSERT INTO requester_responses (id, match_id, response_type, rejection_reason,
			expected_data_description, improvement_suggestions, loop_count, responder_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		resp.ID, resp.MatchID, string(resp.ResponseType), nullString(resp.RejectionReason),
		nullString(resp.ExpectedDataDescription), nullString(resp.ImprovementSuggestions),
		resp.LoopCount, resp.ResponderID, resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert requester response: %w", err)
	}
	return nil
}

func (r *postgresResponseRepository) CountRequesterRejections(ctx context.Context, matchID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM requester_responses
		WHERE match_id = $1 AND response_type LIKE 'REJECT_%'`
	var n int
	if err := r.db.QueryRow(ctx, query, matchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rejections: %w", err)
	}
	return n, nil
}

type postgresInvolvementRepository struct {
	db *database.DB
}

// NewPostgresInvolvementRepository creates a Postgres-backed involvement
// repository.
func NewPostgresInvolvementRepository(db *database.DB) InvolvementRepository {
	return &postgresInvolvementRepository{db: db}
}

var _ InvolvementRepository = (*postgresInvolvementRepository)(nil)

const involvementColumns = `id, variable_id, COALESCE(external_request_number, ''),
	COALESCE(external_system, ''), requester_id, owner_id, expected_completion_date,
	actual_completion_date, COALESCE(created_table_name, ''), COALESCE(created_concept, ''),
	status, reminder_count, last_reminder_at, created_at, updated_at`

func (r *postgresInvolvementRepository) Create(ctx context.Context, inv *models.Involvement) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	// The partial unique index on (variable_id) WHERE status <> 'COMPLETED'
	// enforces the one-open-involvement rule.
	query := `
		INSERT INTO involvements (id, variable_id, external_request_number, external_system,
			requester_id, owner_id, expected_completion_date, actual_completion_date,
			created_table_name, created_concept, status, reminder_count, last_reminder_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.Exec(ctx, query,
		inv.ID, inv.VariableID, nullString(inv.ExternalRequestNumber), nullString(inv.ExternalSystem),
		inv.RequesterID, inv.OwnerID, inv.ExpectedCompletionDate, inv.ActualCompletionDate,
		nullString(inv.CreatedTableName), nullString(inv.CreatedConcept), string(inv.Status),
		inv.ReminderCount, inv.LastReminderAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert involvement: %w", err)
	}
	return nil
}

func (r *postgresInvolvementRepository) Get(ctx context.Context, id uuid.UUID) (*models.Involvement, error) {
	query := `SELECT ` + involvementColumns + ` FROM involvements WHERE id = $1`
	inv, err := scanInvolvement(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return inv, err
}

func (r *postgresInvolvementRepository) Update(ctx context.Context, inv *models.Involvement) error {
	query := `
		UPDATE involvements
		SET external_request_number = $2, external_system = $3, expected_completion_date = $4,
		    actual_completion_date = $5, created_table_name = $6, created_concept = $7,
		    status = $8, reminder_count = $9, last_reminder_at = $10, updated_at = $11
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		inv.ID, nullString(inv.ExternalRequestNumber), nullString(inv.ExternalSystem),
		inv.ExpectedCompletionDate, inv.ActualCompletionDate,
		nullString(inv.CreatedTableName), nullString(inv.CreatedConcept),
		string(inv.Status), inv.ReminderCount, inv.LastReminderAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update involvement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *postgresInvolvementRepository) GetOpenByVariable(ctx context.Context, variableID uuid.UUID) (*models.Involvement, error) {
	query := `SELECT ` + involvementColumns + ` FROM involvements
		WHERE variable_id = $1 AND status <> 'COMPLETED' LIMIT 1`
	inv, err := scanInvolvement(r.db.QueryRow(ctx, query, variableID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

func (r *postgresInvolvementRepository) ListOpen(ctx context.Context) ([]models.Involvement, error) {
	query := `SELECT ` + involvementColumns + ` FROM involvements
		WHERE status <> 'COMPLETED' ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open involvements: %w", err)
	}
	defer rows.Close()

	var out []models.Involvement
	for rows.Next() {
		inv, err := scanInvolvement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating involvements: %w", err)
	}
	return out, nil
}

func scanInvolvement(row pgx.Row) (*models.Involvement, error) {
	var inv models.Involvement
	err := row.Scan(
		&inv.ID, &inv.VariableID, &inv.ExternalRequestNumber, &inv.ExternalSystem,
		&inv.RequesterID, &inv.OwnerID, &inv.ExpectedCompletionDate, &inv.ActualCompletionDate,
		&inv.CreatedTableName, &inv.CreatedConcept, (*string)(&inv.Status),
		&inv.ReminderCount, &inv.LastReminderAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan involvement: %w", err)
	}
	return &inv, nil
}

type postgresHistoryRepository struct {
	db *database.DB
}

// NewPostgresHistoryRepository creates a Postgres-backed history log.
func NewPostgresHistoryRepository(db *database.DB) HistoryRepository {
	return &postgresHistoryRepository{db: db}
}

var _ HistoryRepository = (*postgresHistoryRepository)(nil)

func (r *postgresHistoryRepository) Append(ctx context.Context, h *models.DecisionHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	varCtx, err := json.Marshal(h.VariableContext)
	if err != nil {
		return fmt.Errorf("failed to marshal variable context: %w", err)
	}
	tableCtx, err := json.Marshal(h.TableContext)
	if err != nil {
		return fmt.Errorf("failed to marshal table context: %w", err)
	}
	matchCtx, err := json.Marshal(h.MatchContext)
	if err != nil {
		return fmt.Errorf("failed to marshal match context: %w", err)
	}

	query := `
		INSERT INTO decision_history (id, variable_id, match_id, actor, actor_role,
			prev_match_status, next_match_status, prev_var_status, next_var_status,
			outcome, decision_reason, decision_details,
			variable_context, table_context, match_context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = r.db.Exec(ctx, query,
		h.ID, h.VariableID, h.MatchID, h.Actor, h.ActorRole,
		string(h.PrevMatchStatus), string(h.NextMatchStatus),
		string(h.PrevVarStatus), string(h.NextVarStatus),
		string(h.Outcome), nullString(h.DecisionReason), nullString(h.DecisionDetails),
		varCtx, tableCtx, matchCtx, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append decision history: %w", err)
	}
	return nil
}

// nullString returns nil for an empty string so the column stores NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
