package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/apperrors"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/notify"
)

// ============================================================================
// Involvement subflow
// ============================================================================

// CreateInvolvementInput registers a data-creation request, usually carrying
// the ticket number of the external demand system.
type CreateInvolvementInput struct {
	VariableID            uuid.UUID
	ExternalRequestNumber string
	ExternalSystem        string
	OwnerID               string
}

// CreateInvolvement opens a data-creation request for a variable in
// PENDING_INVOLVEMENT. At most one open involvement per variable.
func (s *Service) CreateInvolvement(ctx context.Context, in CreateInvolvementInput) (*models.Involvement, error) {
	variable, err := s.variables.Get(ctx, in.VariableID)
	if err != nil {
		return nil, err
	}
	if variable.Status != models.VariableStatusPendingInvolvement {
		return nil, fmt.Errorf("%w: variable is %s, expected PENDING_INVOLVEMENT", apperrors.ErrConflict, variable.Status)
	}
	if existing, err := s.involvements.GetOpenByVariable(ctx, in.VariableID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: variable already has an open involvement", apperrors.ErrConflict)
	}

	now := s.now()
	inv := &models.Involvement{
		VariableID:            in.VariableID,
		ExternalRequestNumber: in.ExternalRequestNumber,
		ExternalSystem:        in.ExternalSystem,
		RequesterID:           variable.RequesterID,
		OwnerID:               in.OwnerID,
		Status:                models.InvolvementPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.involvements.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// SetInvolvementDate is the owner committing to a completion date:
// PENDING → IN_PROGRESS.
func (s *Service) SetInvolvementDate(ctx context.Context, id uuid.UUID, date time.Time) (*models.Involvement, error) {
	inv, err := s.involvements.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransitionTo(models.InvolvementInProgress) {
		return nil, fmt.Errorf("%w: involvement is %s, expected PENDING", apperrors.ErrConflict, inv.Status)
	}
	if date.Before(s.now()) {
		return nil, fmt.Errorf("%w: expected completion date must be in the future", apperrors.ErrValidation)
	}

	inv.Status = models.InvolvementInProgress
	inv.ExpectedCompletionDate = &date
	inv.UpdatedAt = s.now()
	if err := s.involvements.Update(ctx, inv); err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Notification{
		UserID:     inv.RequesterID,
		Type:       "involvement_scheduled",
		Priority:   notify.PriorityNormal,
		Title:      "Criação de dado agendada",
		Message:    fmt.Sprintf("O dono previu a entrega do dado para %s.", date.Format("2006-01-02")),
		VariableID: &inv.VariableID,
	})
	return inv, nil
}

// CompleteInvolvement closes the request with the created table:
// IN_PROGRESS|OVERDUE → COMPLETED. The variable returns to MATCHED so the
// requester can run a fresh selection against the new table.
func (s *Service) CompleteInvolvement(ctx context.Context, id uuid.UUID, createdTableName, createdConcept string) (*models.Involvement, error) {
	inv, err := s.involvements.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransitionTo(models.InvolvementCompleted) {
		return nil, fmt.Errorf("%w: involvement is %s, cannot complete", apperrors.ErrConflict, inv.Status)
	}
	if createdTableName == "" {
		return nil, fmt.Errorf("%w: created table name is required", apperrors.ErrValidation)
	}

	now := s.now()
	inv.Status = models.InvolvementCompleted
	inv.CreatedTableName = createdTableName
	inv.CreatedConcept = createdConcept
	inv.ActualCompletionDate = &now
	inv.UpdatedAt = now
	if err := s.involvements.Update(ctx, inv); err != nil {
		return nil, err
	}

	variable, err := s.variables.Get(ctx, inv.VariableID)
	if err != nil {
		return nil, err
	}
	variable.Status = models.VariableStatusMatched
	variable.UpdatedAt = now
	if err := s.variables.Update(ctx, variable); err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Notification{
		UserID:     inv.RequesterID,
		Type:       "involvement_completed",
		Priority:   notify.PriorityNormal,
		Title:      "Dado criado",
		Message:    fmt.Sprintf("A tabela %s foi criada para a variável. Selecione-a para validação.", createdTableName),
		VariableID: &inv.VariableID,
	})
	return inv, nil
}

// SweepResult summarizes one reminder/expiry pass.
type SweepResult struct {
	Checked       int
	MarkedOverdue int
	Reminders     int
}

// SweepInvolvements marks expired IN_PROGRESS involvements OVERDUE and sends
// at most one reminder per overdue involvement per calendar day.
func (s *Service) SweepInvolvements(ctx context.Context, now time.Time) (SweepResult, error) {
	open, err := s.involvements.ListOpen(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for i := range open {
		inv := &open[i]
		res.Checked++

		if inv.Status == models.InvolvementInProgress &&
			inv.ExpectedCompletionDate != nil &&
			now.After(endOfDay(*inv.ExpectedCompletionDate)) {
			inv.Status = models.InvolvementOverdue
			inv.UpdatedAt = now
			if err := s.involvements.Update(ctx, inv); err != nil {
				s.logger.Warn("failed to mark involvement overdue",
					zap.String("involvement_id", inv.ID.String()), zap.Error(err))
				continue
			}
			res.MarkedOverdue++
		}

		if inv.Status != models.InvolvementOverdue {
			continue
		}
		if inv.LastReminderAt != nil && sameDay(*inv.LastReminderAt, now) {
			continue
		}

		s.notify(ctx, notify.Notification{
			UserID:     inv.OwnerID,
			Type:       "involvement_overdue",
			Priority:   notify.PriorityHigh,
			Title:      "Criação de dado atrasada",
			Message:    fmt.Sprintf("O acionamento %s está atrasado (%d lembretes enviados).", inv.ID, inv.ReminderCount+1),
			VariableID: &inv.VariableID,
		})
		inv.ReminderCount++
		reminderAt := now
		inv.LastReminderAt = &reminderAt
		inv.UpdatedAt = now
		if err := s.involvements.Update(ctx, inv); err != nil {
			s.logger.Warn("failed to record reminder",
				zap.String("involvement_id", inv.ID.String()), zap.Error(err))
			continue
		}
		res.Reminders++
	}
	return res, nil
}

// endOfDay returns the last instant of the date's UTC calendar day, so a due
// date is only overdue once the whole day has passed.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
}
