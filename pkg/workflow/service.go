package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/apperrors"
	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/feedback"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/notify"
)

// minRejectionReasonLen is the minimum length of a requester rejection reason.
const minRejectionReasonLen = 10

// Service drives the owner/requester validation workflow. Transitions for a
// single match are serialized through a keyed mutex; every applied transition
// appends exactly one decision-history row. Notifications are best-effort.
type Service struct {
	variables    VariableRepository
	matches      MatchRepository
	responses    ResponseRepository
	involvements InvolvementRepository
	history      HistoryRepository
	catalog      *catalog.Store
	feedback     feedback.Store
	notifier     notify.Notifier
	locks        *keyedMutex
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates the workflow service. A nil notifier degrades to no-op.
func NewService(
	variables VariableRepository,
	matches MatchRepository,
	responses ResponseRepository,
	involvements InvolvementRepository,
	history HistoryRepository,
	catalogStore *catalog.Store,
	feedbackStore feedback.Store,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Service{
		variables:    variables,
		matches:      matches,
		responses:    responses,
		involvements: involvements,
		history:      history,
		catalog:      catalogStore,
		feedback:     feedbackStore,
		notifier:     notifier,
		locks:        newKeyedMutex(),
		logger:       logger.Named("workflow"),
		now:          time.Now,
	}
}

// ============================================================================
// Variable and suggestion setup
// ============================================================================

// CreateVariable registers a new requested variable in PENDING state.
func (s *Service) CreateVariable(ctx context.Context, v *models.Variable) error {
	if v.Name == "" || v.RequesterID == "" {
		return fmt.Errorf("%w: variable name and requester_id are required", apperrors.ErrValidation)
	}
	if v.Status == "" {
		v.Status = models.VariableStatusPending
	}
	now := s.now()
	v.CreatedAt, v.UpdatedAt = now, now
	return s.variables.Create(ctx, v)
}

// SuggestMatches records retrieval candidates as SUGGESTED matches for the
// variable and moves it to MATCHED.
func (s *Service) SuggestMatches(ctx context.Context, variableID uuid.UUID, candidates []models.TableMatch) ([]models.WorkflowMatch, error) {
	variable, err := s.variables.Get(ctx, variableID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]models.WorkflowMatch, 0, len(candidates))
	for _, c := range candidates {
		m := models.WorkflowMatch{
			VariableID:      variableID,
			TableID:         c.Table.ID,
			TableName:       c.Table.Name,
			DomainID:        c.Table.DomainID,
			AssignedOwnerID: c.Table.OwnerID,
			Status:          models.MatchStatusSuggested,
			Score:           c.Score,
			Reasoning:       c.Reasoning,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.matches.Create(ctx, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	variable.Status = models.VariableStatusMatched
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================================
// Selection
// ============================================================================

// SelectMatch is the requester picking one suggested match. The match moves
// SUGGESTED → SELECTED → PENDING_OWNER, siblings are deselected, the variable
// enters OWNER_REVIEW and the table owner is notified.
func (s *Service) SelectMatch(ctx context.Context, variableID, matchID uuid.UUID, actorID string) (*models.WorkflowMatch, error) {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.VariableID != variableID {
		return nil, fmt.Errorf("%w: match does not belong to variable", apperrors.ErrValidation)
	}
	if match.Status != models.MatchStatusSuggested {
		return nil, fmt.Errorf("%w: match is %s, expected SUGGESTED", apperrors.ErrConflict, match.Status)
	}

	variable, err := s.variables.Get(ctx, variableID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	prevVar := variable.Status

	// SUGGESTED → SELECTED
	match.Status = models.MatchStatusSelected
	match.IsSelected = true
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}
	if err := s.matches.ClearSelection(ctx, variableID, matchID); err != nil {
		return nil, err
	}

	variable.Status = models.VariableStatusOwnerReview
	variable.SelectedMatchID = &match.ID
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, actorID, "requester",
		models.MatchStatusSuggested, models.MatchStatusSelected,
		prevVar, models.VariableStatusOwnerReview,
		models.HistoryOutcomeNeutral, "requester selected match", "")

	// SELECTED → PENDING_OWNER: dispatch to the table owner.
	match.Status = models.MatchStatusPendingOwner
	match.UpdatedAt = s.now()
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, variable, match, "system", "system",
		models.MatchStatusSelected, models.MatchStatusPendingOwner,
		variable.Status, variable.Status,
		models.HistoryOutcomeNeutral, "dispatched to owner", "")

	s.notify(ctx, notify.Notification{
		UserID:     match.AssignedOwnerID,
		Type:       "owner_review_requested",
		Priority:   notify.PriorityNormal,
		Title:      "Nova validação de dados pendente",
		Message:    fmt.Sprintf("A variável %q aponta para a tabela %s e aguarda sua validação.", variable.Name, match.TableName),
		VariableID: &variable.ID,
	})
	return match, nil
}

// ============================================================================
// Owner response
// ============================================================================

// OwnerResponseInput is one owner answer to a pending match.
type OwnerResponseInput struct {
	ResponseType     models.OwnerResponseType
	UsageCriteria    string
	CorrectedTableID string
	DelegateToID     string
	DelegateArea     string
	Comment          string
	ResponderID      string
}

// OwnerRespond applies an owner answer to a PENDING_OWNER match.
func (s *Service) OwnerRespond(ctx context.Context, matchID uuid.UUID, in OwnerResponseInput) (*models.WorkflowMatch, error) {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	if !models.IsValidOwnerResponseType(in.ResponseType) {
		return nil, fmt.Errorf("%w: unknown owner response type %q", apperrors.ErrValidation, in.ResponseType)
	}

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.MatchStatusPendingOwner {
		return nil, fmt.Errorf("%w: match is %s, expected PENDING_OWNER", apperrors.ErrConflict, match.Status)
	}
	variable, err := s.variables.Get(ctx, match.VariableID)
	if err != nil {
		return nil, err
	}

	// Type-specific validation before any mutation.
	snap := s.catalog.Load()
	switch in.ResponseType {
	case models.OwnerConfirmMatch:
		if in.UsageCriteria == "" {
			return nil, fmt.Errorf("%w: usage criteria are required to confirm a match", apperrors.ErrValidation)
		}
	case models.OwnerCorrectTable:
		if snap.Table(in.CorrectedTableID) == nil {
			return nil, fmt.Errorf("%w: corrected table %q not found in catalog", apperrors.ErrValidation, in.CorrectedTableID)
		}
	case models.OwnerDelegatePerson:
		if snap.Owner(in.DelegateToID) == nil {
			return nil, fmt.Errorf("%w: collaborator %q not found", apperrors.ErrValidation, in.DelegateToID)
		}
	case models.OwnerDelegateArea:
		if snap.Domain(in.DelegateArea) == nil {
			return nil, fmt.Errorf("%w: area %q not found", apperrors.ErrValidation, in.DelegateArea)
		}
	}

	now := s.now()
	if err := s.responses.InsertOwnerResponse(ctx, &models.OwnerResponse{
		MatchID:          matchID,
		ResponseType:     in.ResponseType,
		UsageCriteria:    in.UsageCriteria,
		CorrectedTableID: in.CorrectedTableID,
		DelegateToID:     in.DelegateToID,
		DelegateArea:     in.DelegateArea,
		Comment:          in.Comment,
		ResponderID:      in.ResponderID,
		CreatedAt:        now,
	}); err != nil {
		return nil, err
	}

	switch in.ResponseType {
	case models.OwnerConfirmMatch:
		return s.ownerConfirm(ctx, variable, match, in)
	case models.OwnerCorrectTable:
		return s.ownerCorrectTable(ctx, snap.Table(in.CorrectedTableID), variable, match, in)
	case models.OwnerDataNotExist:
		return s.ownerDataNotExist(ctx, variable, match, in)
	case models.OwnerDelegatePerson:
		return s.ownerDelegatePerson(ctx, variable, match, in)
	default:
		return s.ownerDelegateArea(ctx, variable, match, in)
	}
}

func (s *Service) ownerConfirm(ctx context.Context, variable *models.Variable, match *models.WorkflowMatch, in OwnerResponseInput) (*models.WorkflowMatch, error) {
	now := s.now()
	prevVar := variable.Status

	match.Status = models.MatchStatusPendingRequester
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}
	variable.Status = models.VariableStatusRequesterReview
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, in.ResponderID, "owner",
		models.MatchStatusPendingOwner, models.MatchStatusPendingRequester,
		prevVar, models.VariableStatusRequesterReview,
		models.HistoryOutcomePositive, "owner confirmed match", in.UsageCriteria)

	s.notify(ctx, notify.Notification{
		UserID:     variable.RequesterID,
		Type:       "owner_confirmed",
		Priority:   notify.PriorityNormal,
		Title:      "Dono confirmou a tabela",
		Message:    fmt.Sprintf("A tabela %s foi confirmada para a variável %q. Revise e aprove.", match.TableName, variable.Name),
		VariableID: &variable.ID,
	})
	return match, nil
}

func (s *Service) ownerCorrectTable(ctx context.Context, corrected *models.TableInfo, variable *models.Variable, match *models.WorkflowMatch, in OwnerResponseInput) (*models.WorkflowMatch, error) {
	now := s.now()

	match.Status = models.MatchStatusRedirected
	match.IsSelected = false
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}

	replacement := &models.WorkflowMatch{
		VariableID:      variable.ID,
		TableID:         corrected.ID,
		TableName:       corrected.Name,
		DomainID:        corrected.DomainID,
		AssignedOwnerID: corrected.OwnerID,
		Status:          models.MatchStatusPendingOwner,
		IsSelected:      true,
		Score:           match.Score,
		Reasoning:       fmt.Sprintf("redirecionada pelo dono a partir de %s", match.TableName),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.matches.Create(ctx, replacement); err != nil {
		return nil, err
	}

	variable.SelectedMatchID = &replacement.ID
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, in.ResponderID, "owner",
		models.MatchStatusPendingOwner, models.MatchStatusRedirected,
		variable.Status, variable.Status,
		models.HistoryOutcomeNeutral, "owner redirected to another table",
		fmt.Sprintf("corrected_table_id=%s", corrected.ID))

	s.notify(ctx, notify.Notification{
		UserID:     replacement.AssignedOwnerID,
		Type:       "owner_review_requested",
		Priority:   notify.PriorityNormal,
		Title:      "Validação redirecionada para sua tabela",
		Message:    fmt.Sprintf("A variável %q foi redirecionada para a tabela %s.", variable.Name, replacement.TableName),
		VariableID: &variable.ID,
	})
	return replacement, nil
}

func (s *Service) ownerDataNotExist(ctx context.Context, variable *models.Variable, match *models.WorkflowMatch, in OwnerResponseInput) (*models.WorkflowMatch, error) {
	now := s.now()
	prevVar := variable.Status

	match.Status = models.MatchStatusRejected
	match.IsSelected = false
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}
	variable.Status = models.VariableStatusPendingInvolvement
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	inv := &models.Involvement{
		VariableID:  variable.ID,
		RequesterID: variable.RequesterID,
		OwnerID:     match.AssignedOwnerID,
		Status:      models.InvolvementPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.involvements.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, in.ResponderID, "owner",
		models.MatchStatusPendingOwner, models.MatchStatusRejected,
		prevVar, models.VariableStatusPendingInvolvement,
		models.HistoryOutcomeNegative, "owner: data does not exist", in.Comment)

	s.notify(ctx, notify.Notification{
		UserID:     variable.RequesterID,
		Type:       "data_creation_needed",
		Priority:   notify.PriorityHigh,
		Title:      "Dado inexistente: criação necessária",
		Message:    fmt.Sprintf("O dono informou que o dado da variável %q não existe. Um acionamento foi aberto.", variable.Name),
		VariableID: &variable.ID,
	})
	return match, nil
}

func (s *Service) ownerDelegatePerson(ctx context.Context, variable *models.Variable, match *models.WorkflowMatch, in OwnerResponseInput) (*models.WorkflowMatch, error) {
	now := s.now()
	previousOwner := match.AssignedOwnerID

	match.AssignedOwnerID = in.DelegateToID
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, in.ResponderID, "owner",
		models.MatchStatusPendingOwner, models.MatchStatusPendingOwner,
		variable.Status, variable.Status,
		models.HistoryOutcomeNeutral, "owner delegated to another person",
		fmt.Sprintf("from=%s to=%s", previousOwner, in.DelegateToID))

	s.notify(ctx, notify.Notification{
		UserID:     in.DelegateToID,
		Type:       "owner_review_requested",
		Priority:   notify.PriorityNormal,
		Title:      "Validação delegada a você",
		Message:    fmt.Sprintf("A validação da variável %q (tabela %s) foi delegada a você.", variable.Name, match.TableName),
		VariableID: &variable.ID,
	})
	return match, nil
}

func (s *Service) ownerDelegateArea(ctx context.Context, variable *models.Variable, match *models.WorkflowMatch, in OwnerResponseInput) (*models.WorkflowMatch, error) {
	now := s.now()
	prevVar := variable.Status

	match.Status = models.MatchStatusRedirected
	match.IsSelected = false
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}
	variable.Status = models.VariableStatusMatched
	variable.SelectedMatchID = nil
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, in.ResponderID, "owner",
		models.MatchStatusPendingOwner, models.MatchStatusRedirected,
		prevVar, models.VariableStatusMatched,
		models.HistoryOutcomeNeutral, "owner redirected to another area",
		fmt.Sprintf("area=%s", in.DelegateArea))

	s.notify(ctx, notify.Notification{
		UserID:     variable.RequesterID,
		Type:       "match_redirected",
		Priority:   notify.PriorityNormal,
		Title:      "Validação devolvida para nova seleção",
		Message:    fmt.Sprintf("O dono indicou a área %s para a variável %q. Selecione uma nova candidata.", in.DelegateArea, variable.Name),
		VariableID: &variable.ID,
	})
	return match, nil
}

// ============================================================================
// Requester response
// ============================================================================

// RequesterResponseInput is one requester answer to an owner-confirmed match.
type RequesterResponseInput struct {
	ResponseType            models.RequesterResponseType
	RejectionReason         string
	ExpectedDataDescription string
	ImprovementSuggestions  string
	ResponderID             string
}

// RequesterRespond applies a requester answer to a PENDING_REQUESTER match.
func (s *Service) RequesterRespond(ctx context.Context, matchID uuid.UUID, in RequesterResponseInput) (*models.WorkflowMatch, error) {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	if !models.IsValidRequesterResponseType(in.ResponseType) {
		return nil, fmt.Errorf("%w: unknown requester response type %q", apperrors.ErrValidation, in.ResponseType)
	}

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.MatchStatusPendingRequester {
		return nil, fmt.Errorf("%w: match is %s, expected PENDING_REQUESTER", apperrors.ErrConflict, match.Status)
	}
	variable, err := s.variables.Get(ctx, match.VariableID)
	if err != nil {
		return nil, err
	}

	if in.ResponseType.IsRejection() && len(in.RejectionReason) < minRejectionReasonLen {
		return nil, fmt.Errorf("%w: rejection reason must have at least %d characters", apperrors.ErrValidation, minRejectionReasonLen)
	}

	now := s.now()
	loopCount := 0
	if in.ResponseType.IsRejection() {
		prior, err := s.responses.CountRequesterRejections(ctx, matchID)
		if err != nil {
			return nil, err
		}
		loopCount = prior + 1
	}
	if err := s.responses.InsertRequesterResponse(ctx, &models.RequesterResponse{
		MatchID:                 matchID,
		ResponseType:            in.ResponseType,
		RejectionReason:         in.RejectionReason,
		ExpectedDataDescription: in.ExpectedDataDescription,
		ImprovementSuggestions:  in.ImprovementSuggestions,
		LoopCount:               loopCount,
		ResponderID:             in.ResponderID,
		CreatedAt:               now,
	}); err != nil {
		return nil, err
	}

	if in.ResponseType == models.RequesterApprove {
		return s.requesterApprove(ctx, variable, match, in)
	}
	return s.requesterReject(ctx, variable, match, in, loopCount)
}

func (s *Service) requesterApprove(ctx context.Context, variable *models.Variable, match *models.WorkflowMatch, in RequesterResponseInput) (*models.WorkflowMatch, error) {
	now := s.now()
	prevVar := variable.Status

	match.Status = models.MatchStatusApproved
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}
	variable.Status = models.VariableStatusApproved
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, in.ResponderID, "requester",
		models.MatchStatusPendingRequester, models.MatchStatusApproved,
		prevVar, models.VariableStatusApproved,
		models.HistoryOutcomePositive, "requester approved match", "")

	s.recordApproval(ctx, variable, match)

	s.notify(ctx, notify.Notification{
		UserID:     match.AssignedOwnerID,
		Type:       "match_approved",
		Priority:   notify.PriorityLow,
		Title:      "Validação aprovada",
		Message:    fmt.Sprintf("A variável %q foi aprovada usando a tabela %s.", variable.Name, match.TableName),
		VariableID: &variable.ID,
	})
	return match, nil
}

func (s *Service) requesterReject(ctx context.Context, variable *models.Variable, match *models.WorkflowMatch, in RequesterResponseInput, loopCount int) (*models.WorkflowMatch, error) {
	now := s.now()
	prevVar := variable.Status

	match.Status = models.MatchStatusPendingOwner
	match.UpdatedAt = now
	if err := s.matches.Update(ctx, match); err != nil {
		return nil, err
	}
	variable.Status = models.VariableStatusOwnerReview
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, variable, match, in.ResponderID, "requester",
		models.MatchStatusPendingRequester, models.MatchStatusPendingOwner,
		prevVar, models.VariableStatusOwnerReview,
		models.HistoryOutcomeNegative, "requester rejected: "+string(in.ResponseType),
		fmt.Sprintf("loop_count=%d reason=%s", loopCount, in.RejectionReason))

	s.notify(ctx, notify.Notification{
		UserID:     match.AssignedOwnerID,
		Type:       "match_rejected",
		Priority:   notify.PriorityHigh,
		Title:      "Validação devolvida pelo solicitante",
		Message:    fmt.Sprintf("A variável %q voltou para sua análise: %s", variable.Name, in.RejectionReason),
		VariableID: &variable.ID,
	})
	return match, nil
}

// ConfirmInUse is the requester declaring the approved data in production
// use. The actor must be the case creator.
func (s *Service) ConfirmInUse(ctx context.Context, variableID uuid.UUID, actorID string) (*models.Variable, error) {
	variable, err := s.variables.Get(ctx, variableID)
	if err != nil {
		return nil, err
	}
	if variable.Status != models.VariableStatusApproved {
		return nil, fmt.Errorf("%w: variable is %s, expected APPROVED", apperrors.ErrConflict, variable.Status)
	}
	if actorID != variable.RequesterID {
		return nil, fmt.Errorf("%w: only the case creator can confirm usage", apperrors.ErrValidation)
	}

	variable.Status = models.VariableStatusInUse
	variable.UpdatedAt = s.now()
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	var matchID uuid.UUID
	var match *models.WorkflowMatch
	if variable.SelectedMatchID != nil {
		matchID = *variable.SelectedMatchID
		match, _ = s.matches.Get(ctx, matchID)
	}
	if match == nil {
		match = &models.WorkflowMatch{ID: matchID, VariableID: variableID}
	}
	s.appendHistory(ctx, variable, match, actorID, "requester",
		match.Status, match.Status,
		models.VariableStatusApproved, models.VariableStatusInUse,
		models.HistoryOutcomePositive, "requester confirmed data in use", "")
	return variable, nil
}

// ============================================================================
// Internals
// ============================================================================

// recordApproval feeds the approved pairing back into the learning store.
// Best-effort: a feedback failure never undoes an applied transition.
func (s *Service) recordApproval(ctx context.Context, variable *models.Variable, match *models.WorkflowMatch) {
	if s.feedback == nil {
		return
	}
	intent := models.Intent{DataNeed: variable.Name, TargetProduct: variable.UseCase}
	_, err := s.feedback.RecordDecision(ctx, &models.DecisionRecord{
		RequestID:            "workflow-" + match.ID.String(),
		ConceptHash:          feedback.ConceptHash(&intent),
		DomainID:             match.DomainID,
		OwnerID:              match.AssignedOwnerID,
		TableID:              match.TableID,
		Outcome:              models.OutcomeApproved,
		ConfidenceAtDecision: match.Score,
		UseCase:              variable.UseCase,
	})
	if err != nil {
		s.logger.Warn("failed to record approval feedback",
			zap.String("match_id", match.ID.String()), zap.Error(err))
	}
}

func (s *Service) appendHistory(
	ctx context.Context,
	variable *models.Variable,
	match *models.WorkflowMatch,
	actor, role string,
	prevMatch, nextMatch models.MatchStatus,
	prevVar, nextVar models.VariableStatus,
	outcome models.HistoryOutcome,
	reason, details string,
) {
	h := &models.DecisionHistory{
		VariableID:      variable.ID,
		MatchID:         match.ID,
		Actor:           actor,
		ActorRole:       role,
		PrevMatchStatus: prevMatch,
		NextMatchStatus: nextMatch,
		PrevVarStatus:   prevVar,
		NextVarStatus:   nextVar,
		Outcome:         outcome,
		DecisionReason:  reason,
		DecisionDetails: details,
		VariableContext: map[string]any{
			"name":         variable.Name,
			"requester_id": variable.RequesterID,
			"use_case":     variable.UseCase,
		},
		TableContext: map[string]any{
			"table_id":   match.TableID,
			"table_name": match.TableName,
			"domain_id":  match.DomainID,
		},
		MatchContext: map[string]any{
			"score":             match.Score,
			"is_selected":       match.IsSelected,
			"assigned_owner_id": match.AssignedOwnerID,
		},
		CreatedAt: s.now(),
	}
	if err := s.history.Append(ctx, h); err != nil {
		// The log is the learning corpus; losing a row is worth a loud error
		// but must not fail the applied transition.
		s.logger.Error("failed to append decision history",
			zap.String("match_id", match.ID.String()), zap.Error(err))
	}
}

// notify delivers best-effort: failures are logged, never propagated.
func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Send(ctx, n); err != nil {
		s.logger.Warn("notification failed",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
	}
}
