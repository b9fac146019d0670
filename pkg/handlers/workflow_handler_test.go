package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// seedSelectedHTTP drives a variable to PENDING_OWNER through the HTTP
// surface and returns the variable and the selected match.
func (f *handlerFixture) seedSelectedHTTP(t *testing.T) (models.Variable, models.WorkflowMatch) {
	t.Helper()

	w := f.do(t, http.MethodPost, "/variables", CreateVariableRequest{
		Name:        "vl_vendas_consig",
		RequesterID: "maria",
		UseCase:     "analytical",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var variable models.Variable
	decodeInto(t, w, &variable)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/variables/%s/suggest", variable.ID), SuggestMatchesRequest{
		Candidates: []models.TableMatch{
			{Table: models.TableInfo{ID: "t1", Name: "tb_vendas_consig", DomainID: "vendas", OwnerID: "o1"}, Score: 0.82},
			{Table: models.TableInfo{ID: "t2", Name: "tb_vendas_corrigida", DomainID: "vendas", OwnerID: "o2"}, Score: 0.61},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var suggested []models.WorkflowMatch
	decodeInto(t, w, &suggested)
	require.Len(t, suggested, 2)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/variables/%s/select", variable.ID),
		SelectMatchRequest{MatchID: suggested[0].ID},
		map[string]string{"X-User-Id": "maria"})
	require.Equal(t, http.StatusOK, w.Code)
	var selected models.WorkflowMatch
	decodeInto(t, w, &selected)
	require.Equal(t, models.MatchStatusPendingOwner, selected.Status)

	return variable, selected
}

func TestCreateVariableValidation(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/variables", CreateVariableRequest{Name: "vl_x"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope ErrorEnvelope
	decodeInto(t, w, &envelope)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestWorkflowApprovalRoundTrip(t *testing.T) {
	f := newHandlerFixture(t)
	variable, selected := f.seedSelectedHTTP(t)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/owner-respond", selected.ID),
		OwnerRespondRequest{
			ResponseType:  models.OwnerConfirmMatch,
			UsageCriteria: "usar apenas para análises mensais",
		},
		map[string]string{"X-User-Id": "o1"})
	require.Equal(t, http.StatusOK, w.Code)
	var match models.WorkflowMatch
	decodeInto(t, w, &match)
	assert.Equal(t, models.MatchStatusPendingRequester, match.Status)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/requester-respond", selected.ID),
		RequesterRespondRequest{ResponseType: models.RequesterApprove},
		map[string]string{"X-User-Id": "maria"})
	require.Equal(t, http.StatusOK, w.Code)
	decodeInto(t, w, &match)
	assert.Equal(t, models.MatchStatusApproved, match.Status)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/variables/%s/confirm-use", variable.ID), nil,
		map[string]string{"X-User-Id": "maria"})
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Variable
	decodeInto(t, w, &got)
	assert.Equal(t, models.VariableStatusInUse, got.Status)
}

func TestOwnerRespondWithoutUsageCriteria(t *testing.T) {
	f := newHandlerFixture(t)
	_, selected := f.seedSelectedHTTP(t)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/owner-respond", selected.ID),
		OwnerRespondRequest{ResponseType: models.OwnerConfirmMatch},
		map[string]string{"X-User-Id": "o1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope ErrorEnvelope
	decodeInto(t, w, &envelope)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestRequesterRejectionNeedsReason(t *testing.T) {
	f := newHandlerFixture(t)
	_, selected := f.seedSelectedHTTP(t)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/owner-respond", selected.ID),
		OwnerRespondRequest{ResponseType: models.OwnerConfirmMatch, UsageCriteria: "uso mensal"},
		map[string]string{"X-User-Id": "o1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/requester-respond", selected.ID),
		RequesterRespondRequest{ResponseType: models.RequesterRejectWrongData, RejectionReason: "curta"},
		map[string]string{"X-User-Id": "maria"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelectMatchTwiceConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	variable, selected := f.seedSelectedHTTP(t)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/variables/%s/select", variable.ID),
		SelectMatchRequest{MatchID: selected.ID},
		map[string]string{"X-User-Id": "maria"})
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope ErrorEnvelope
	decodeInto(t, w, &envelope)
	assert.Equal(t, "conflict", envelope.Error.Code)
}

func TestWorkflowPathIDValidation(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/matches/not-a-uuid/owner-respond",
		OwnerRespondRequest{ResponseType: models.OwnerConfirmMatch}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope ErrorEnvelope
	decodeInto(t, w, &envelope)
	assert.Equal(t, "invalid_id", envelope.Error.Code)
}

func TestOwnerRespondUnknownMatch(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/owner-respond", uuid.New()),
		OwnerRespondRequest{ResponseType: models.OwnerConfirmMatch, UsageCriteria: "uso"},
		map[string]string{"X-User-Id": "o1"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmInUseWrongActor(t *testing.T) {
	f := newHandlerFixture(t)
	variable, selected := f.seedSelectedHTTP(t)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/owner-respond", selected.ID),
		OwnerRespondRequest{ResponseType: models.OwnerConfirmMatch, UsageCriteria: "uso mensal"},
		map[string]string{"X-User-Id": "o1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/requester-respond", selected.ID),
		RequesterRespondRequest{ResponseType: models.RequesterApprove},
		map[string]string{"X-User-Id": "maria"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/variables/%s/confirm-use", variable.ID), nil,
		map[string]string{"X-User-Id": "joao"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
