package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
)

func TestDashboard_RequiresUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/quota", nil), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboard_GetQuota(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user_a", domain.PlanFree)
	env.seedForm(t, "user_a")

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/quota", nil), "", user)

	require.Equal(t, http.StatusOK, rec.Code)
	usage := decodeBody[domain.QuotaUsage](t, rec)
	assert.Equal(t, domain.PlanFree, usage.Plan)
	assert.Equal(t, domain.UsageCounter{Used: 1, Limit: 1}, usage.Forms)
	assert.Equal(t, int64(50), usage.Submissions.Limit)
	assert.Equal(t, "2024-03", usage.Period)
}

func TestDashboard_CreateForm(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user_a", domain.PlanFree)

	rec := env.serve(jsonRequest(t, http.MethodPost, "/api/forms", map[string]any{
		"name":                "Contact",
		"formType":            "CONTACT",
		"confirmationEnabled": true,
	}), "", user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Contact", decodeBody[formResponse](t, rec).Name)

	rec = env.serve(jsonRequest(t, http.MethodPost, "/api/forms", map[string]any{"name": "Second"}), "", user)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(domain.QuotaReasonFormLimit), decodeBody[JSONError](t, rec).Error.Reason)
}

func TestDashboard_CreateForm_Validation(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user_a", domain.PlanFree)

	rec := env.serve(jsonRequest(t, http.MethodPost, "/api/forms", map[string]any{
		"formType":       "QUIZ",
		"developerEmail": "not-an-email",
	}), "", user)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody[JSONError](t, rec).Error.Fields
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "formType")
	assert.Contains(t, fields, "developerEmail")
}

func TestDashboard_DeleteForm(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user_a", domain.PlanFree)
	other := env.seedUser(t, "user_b", domain.PlanFree)
	form := env.seedForm(t, "user_a")

	rec := env.serve(httptest.NewRequest(http.MethodDelete, "/api/forms/"+form.ID.String(), nil), "", other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.serve(httptest.NewRequest(http.MethodDelete, "/api/forms/"+form.ID.String(), nil), "", user)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := env.forms.GetByID(context.Background(), form.ID, "user_a")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestDashboard_Campaigns(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user_a", domain.PlanStandard)
	form := env.seedForm(t, "user_a")

	rec := env.serve(jsonRequest(t, http.MethodPost, "/api/campaigns", map[string]any{
		"formId":  form.ID.String(),
		"name":    "Launch",
		"subject": "We are live",
		"content": "Hello!",
	}), "", user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[campaignResponse](t, rec)
	assert.Equal(t, domain.CampaignStatusDraft, created.Status)
	assert.Equal(t, domain.DefaultRecipientCap, created.RecipientLimit)

	at := testNow.Add(24 * time.Hour)
	rec = env.serve(jsonRequest(t, http.MethodPost, "/api/campaigns/"+created.ID.String()+"/schedule", map[string]any{
		"scheduledAt": at,
	}), "", user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scheduled := decodeBody[campaignResponse](t, rec)
	assert.Equal(t, domain.CampaignStatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledAt)
	assert.True(t, at.Equal(*scheduled.ScheduledAt))

	rec = env.serve(jsonRequest(t, http.MethodPost, "/api/campaigns/"+created.ID.String()+"/schedule", map[string]any{
		"scheduledAt": at,
	}), "", user)
	assert.Equal(t, http.StatusConflict, rec.Code, "already scheduled")
}

func TestDashboard_Campaigns_FreePlan(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user_a", domain.PlanFree)
	form := env.seedForm(t, "user_a")

	rec := env.serve(jsonRequest(t, http.MethodPost, "/api/campaigns", map[string]any{
		"formId":  form.ID.String(),
		"name":    "Launch",
		"subject": "We are live",
		"content": "Hello!",
	}), "", user)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(domain.QuotaReasonCampaignsDisabled), decodeBody[JSONError](t, rec).Error.Reason)
}

func TestDashboard_CreateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user_a", domain.PlanFree)

	rec := env.serve(jsonRequest(t, http.MethodPost, "/api/api-keys", map[string]any{"name": "ci"}), "", user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	key := decodeBody[apiKeyResponse](t, rec)
	assert.Equal(t, "ci", key.Name)
	assert.True(t, strings.HasPrefix(key.Key, domain.APIKeyPrefix))

	authed, err := env.apiKeys.Authenticate(context.Background(), key.Key)
	require.NoError(t, err)
	assert.Equal(t, "user_a", authed.UserID)

	rec = env.serve(httptest.NewRequest(http.MethodPost, "/api/api-keys", nil), "", user)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Default", decodeBody[apiKeyResponse](t, rec).Name)
}
