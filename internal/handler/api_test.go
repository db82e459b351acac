package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
)

type listSubmissionsBody struct {
	Submissions []struct {
		ID    uuid.UUID                  `json:"id"`
		Email string                     `json:"email"`
		Data  map[string]json.RawMessage `json:"data"`
	} `json:"submissions"`
	Pagination paginationResponse `json:"pagination"`
}

func TestAPI_RequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/list", nil), "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.EUNAUTHORIZED, decodeBody[JSONError](t, rec).Error.Code)
}

func TestAPI_ListAndGetForms(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanStandard)
	env.seedUser(t, "user_b", domain.PlanStandard)
	form := env.seedForm(t, "user_a")

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/list", nil), "user_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Forms []formResponse `json:"forms"`
	}](t, rec)
	require.Len(t, body.Forms, 1)
	assert.Equal(t, form.ID, body.Forms[0].ID)
	assert.Equal(t, domain.FormTypeWaitlist, body.Forms[0].FormType)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+form.ID.String(), nil), "user_a", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+form.ID.String(), nil), "user_b", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user's form")

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/not-a-uuid", nil), "user_a", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_SubmitAndList(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanFree)
	form := env.seedForm(t, "user_a")

	req := jsonRequest(t, http.MethodPost, "/api/v1/forms/"+form.ID.String()+"/submit", map[string]any{
		"data": map[string]any{"email": "jane@example.com", "name": "Jane"},
	})
	req.Header.Set("User-Agent", "Mozilla/5.0 Chrome/120.0")
	req.Header.Set("CF-IPCountry", "de")
	rec := env.serve(req, "user_a", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	quota, err := env.quota.GetCurrentQuota(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), quota.SubmissionCount)
	assert.Len(t, env.store.Jobs(), 1, "notification job enqueued")

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+form.ID.String()+"/submissions", nil), "user_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[listSubmissionsBody](t, rec)
	require.Len(t, body.Submissions, 1)
	assert.Equal(t, "jane@example.com", body.Submissions[0].Email)
	assert.NotContains(t, body.Submissions[0].Data, domain.MetaKey, "FREE plans never see metadata")
	assert.Equal(t, int64(1), body.Pagination.Total)
	assert.False(t, body.Pagination.HasMore)
}

func TestAPI_Submit_QuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanFree)
	form := env.seedForm(t, "user_a")
	require.NoError(t, env.quota.UpdateQuota(context.Background(), "user_a", domain.QuotaDelta{Submissions: 50}))

	req := jsonRequest(t, http.MethodPost, "/api/v1/forms/"+form.ID.String()+"/submit", map[string]any{
		"data": map[string]any{"name": "Jane"},
	})
	rec := env.serve(req, "user_a", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeBody[JSONError](t, rec)
	assert.Equal(t, string(domain.QuotaReasonSubmissionLimit), resp.Error.Reason)
	assert.Contains(t, resp.Error.Message, "50/50")
	assert.Empty(t, env.store.Jobs())
}

func TestAPI_Submit_Rejects(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanFree)
	env.seedUser(t, "user_b", domain.PlanFree)
	form := env.seedForm(t, "user_a")
	path := "/api/v1/forms/" + form.ID.String() + "/submit"

	t.Run("missing data", func(t *testing.T) {
		rec := env.serve(jsonRequest(t, http.MethodPost, path, map[string]any{}), "user_a", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody[JSONError](t, rec).Error.Fields, "data")
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := env.serve(req, "user_a", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("foreign form", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, path, map[string]any{"data": map[string]any{"a": 1}})
		rec := env.serve(req, "user_b", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAPI_Analytics_PlanGate(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "free", domain.PlanFree)
	env.seedUser(t, "standard", domain.PlanStandard)
	freeForm := env.seedForm(t, "free")
	paidForm := env.seedForm(t, "standard")

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+freeForm.ID.String()+"/analytics", nil), "free", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+paidForm.ID.String()+"/analytics", nil), "standard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	analytics := decodeBody[domain.FormAnalytics](t, rec)
	assert.Len(t, analytics.Daily, domain.DefaultAnalyticsDays)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+paidForm.ID.String()+"/logs?limit=10", nil), "standard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+freeForm.ID.String()+"/logs", nil), "free", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_ListSubmissions_ProFeatures(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "standard", domain.PlanStandard)
	env.seedUser(t, "pro", domain.PlanPro)
	stdForm := env.seedForm(t, "standard")
	proForm := env.seedForm(t, "pro")

	for _, f := range []struct {
		user string
		form *domain.Form
	}{{"standard", stdForm}, {"pro", proForm}} {
		req := jsonRequest(t, http.MethodPost, "/api/v1/forms/"+f.form.ID.String()+"/submit", map[string]any{
			"data": map[string]any{"email": "jane@example.com"},
		})
		require.Equal(t, http.StatusCreated, env.serve(req, f.user, nil).Code)
	}

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+stdForm.ID.String()+"/submissions?since=2024-03-01", nil), "standard", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "date filtering is PRO only")

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+stdForm.ID.String()+"/submissions?since=yesterday", nil), "standard", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+proForm.ID.String()+"/submissions?since=2024-03-01&includeMeta=true", nil), "pro", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[listSubmissionsBody](t, rec)
	require.Len(t, body.Submissions, 1)
	assert.Contains(t, body.Submissions[0].Data, domain.MetaKey)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+proForm.ID.String()+"/submissions?since=2024-03-16", nil), "pro", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[listSubmissionsBody](t, rec).Submissions)
}
