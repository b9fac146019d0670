package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/catalogo-ai/catalog-engine/pkg/apperrors"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// ============================================================================
// In-memory repositories (tests, local development)
// ============================================================================

type memoryVariableRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]models.Variable
}

// NewMemoryVariableRepository creates an in-memory variable repository.
func NewMemoryVariableRepository() VariableRepository {
	return &memoryVariableRepository{byID: make(map[uuid.UUID]models.Variable)}
}

var _ VariableRepository = (*memoryVariableRepository)(nil)

func (r *memoryVariableRepository) Create(_ context.Context, v *models.Variable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if _, ok := r.byID[v.ID]; ok {
		return apperrors.ErrConflict
	}
	r.byID[v.ID] = *v
	return nil
}

func (r *memoryVariableRepository) Get(_ context.Context, id uuid.UUID) (*models.Variable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &v, nil
}

func (r *memoryVariableRepository) Update(_ context.Context, v *models.Variable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[v.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.byID[v.ID] = *v
	return nil
}

type memoryMatchRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]models.WorkflowMatch
}

// NewMemoryMatchRepository creates an in-memory match repository.
func NewMemoryMatchRepository() MatchRepository {
	return &memoryMatchRepository{byID: make(map[uuid.UUID]models.WorkflowMatch)}
}

var _ MatchRepository = (*memoryMatchRepository)(nil)

func (r *memoryMatchRepository) Create(_ context.Context, m *models.WorkflowMatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if _, ok := r.byID[m.ID]; ok {
		return apperrors.ErrConflict
	}
	r.byID[m.ID] = *m
	return nil
}

func (r *memoryMatchRepository) Get(_ context.Context, id uuid.UUID) (*models.WorkflowMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &m, nil
}

func (r *memoryMatchRepository) Update(_ context.Context, m *models.WorkflowMatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.byID[m.ID] = *m
	return nil
}

func (r *memoryMatchRepository) ListByVariable(_ context.Context, variableID uuid.UUID) ([]models.WorkflowMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.WorkflowMatch
	for _, m := range r.byID {
		if m.VariableID == variableID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryMatchRepository) ClearSelection(_ context.Context, variableID, exceptID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.byID {
		if m.VariableID == variableID && id != exceptID && m.IsSelected {
			m.IsSelected = false
			r.byID[id] = m
		}
	}
	return nil
}

type memoryResponseRepository struct {
	mu         sync.RWMutex
	owners     []models.OwnerResponse
	requesters []models.RequesterResponse
}

// NewMemoryResponseRepository creates an in-memory response repository.
func NewMemoryResponseRepository() ResponseRepository {
	return &memoryResponseRepository{}
}

var _ ResponseRepository = (*memoryResponseRepository)(nil)

func (r *memoryResponseRepository) InsertOwnerResponse(_ context.Context, resp *models.OwnerResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	r.owners = append(r.owners, *resp)
	return nil
}

func (r *memoryResponseRepository) InsertRequesterResponse(_ context.Context, resp *models.RequesterResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	r.requesters = append(r.requesters, *resp)
	return nil
}

func (r *memoryResponseRepository) CountRequesterRejections(_ context.Context, matchID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, resp := range r.requesters {
		if resp.MatchID == matchID && resp.ResponseType.IsRejection() {
			n++
		}
	}
	return n, nil
}

type memoryInvolvementRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]models.Involvement
}

// NewMemoryInvolvementRepository creates an in-memory involvement repository.
func NewMemoryInvolvementRepository() InvolvementRepository {
	return &memoryInvolvementRepository{byID: make(map[uuid.UUID]models.Involvement)}
}

var _ InvolvementRepository = (*memoryInvolvementRepository)(nil)

func (r *memoryInvolvementRepository) Create(_ context.Context, inv *models.Involvement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	for _, existing := range r.byID {
		if existing.VariableID == inv.VariableID && existing.Status.IsOpen() {
			return apperrors.ErrConflict
		}
	}
	r.byID[inv.ID] = *inv
	return nil
}

func (r *memoryInvolvementRepository) Get(_ context.Context, id uuid.UUID) (*models.Involvement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &inv, nil
}

func (r *memoryInvolvementRepository) Update(_ context.Context, inv *models.Involvement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inv.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.byID[inv.ID] = *inv
	return nil
}

func (r *memoryInvolvementRepository) GetOpenByVariable(_ context.Context, variableID uuid.UUID) (*models.Involvement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inv := range r.byID {
		if inv.VariableID == variableID && inv.Status.IsOpen() {
			out := inv
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memoryInvolvementRepository) ListOpen(_ context.Context) ([]models.Involvement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Involvement
	for _, inv := range r.byID {
		if inv.Status.IsOpen() {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryHistoryRepository is an in-memory history log, exported so tests can
// inspect the appended rows.
type MemoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []models.DecisionHistory
}

// NewMemoryHistoryRepository creates an in-memory history log.
func NewMemoryHistoryRepository() *MemoryHistoryRepository {
	return &MemoryHistoryRepository{}
}

var _ HistoryRepository = (*MemoryHistoryRepository)(nil)

func (r *MemoryHistoryRepository) Append(_ context.Context, h *models.DecisionHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	r.entries = append(r.entries, *h)
	return nil
}

// Entries returns a copy of the appended history rows.
func (r *MemoryHistoryRepository) Entries() []models.DecisionHistory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.DecisionHistory, len(r.entries))
	copy(out, r.entries)
	return out
}
