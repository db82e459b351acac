package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
)

func (e *testEnv) seedSentEmail(t *testing.T, userID string) (repository.SentEmail, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	form := e.seedForm(t, userID)
	sub, err := e.submissions.Submit(ctx, domain.SubmitParams{
		FormID: form.ID,
		UserID: userID,
		Data:   map[string]any{"email": "jane@example.com"},
	})
	require.NoError(t, err)
	sent, err := e.store.CreateSentEmail(ctx, repository.CreateSentEmailParams{
		ID:           uuid.New(),
		CampaignID:   uuid.New(),
		RecipientID:  uuid.New(),
		SubmissionID: sub.ID,
		UserID:       userID,
	})
	require.NoError(t, err)
	return sent, sub.ID
}

func TestTracking_Open(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanPro)
	sent, _ := env.seedSentEmail(t, "user_a")

	for i := 0; i < 2; i++ {
		rec := env.serve(httptest.NewRequest(http.MethodGet, "/t/open/"+sent.ID.String(), nil), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
		assert.Equal(t, transparentGIF, rec.Body.Bytes())
	}

	quota, err := env.quota.GetCurrentQuota(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), quota.EmailsOpened, "only the first open counts")

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/t/open/garbage", nil), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "the pixel is always served")
}

// clickPath builds the signed click URL the mailer would embed.
func (e *testEnv) clickPath(id uuid.UUID, target string) string {
	return "/t/click/" + id.String() + "?url=" + url.QueryEscape(target) + "&sig=" + e.signer.Sign(id, target)
}

func TestTracking_Click(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanPro)
	sent, _ := env.seedSentEmail(t, "user_a")
	target := "https://example.com/post?a=1"

	rec := env.serve(httptest.NewRequest(http.MethodGet, env.clickPath(sent.ID, target), nil), "", nil)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, target, rec.Header().Get("Location"))

	quota, err := env.quota.GetCurrentQuota(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), quota.EmailsClicked)
}

func TestTracking_Click_RejectsUnsafeTargets(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	for _, target := range []string{"", "javascript:alert(1)", "/relative", "ftp://example.com/file"} {
		rec := env.serve(httptest.NewRequest(http.MethodGet, env.clickPath(id, target), nil), "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestTracking_Click_NeverRedirectsUnverifiedLinks(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanPro)
	sent, _ := env.seedSentEmail(t, "user_a")
	evil := "https://evil.example/phish"
	unknown := uuid.New()

	tests := []struct {
		name string
		path string
	}{
		{"malformed id", "/t/click/not-a-uuid?url=" + url.QueryEscape(evil)},
		{"unknown id unsigned", "/t/click/" + unknown.String() + "?url=" + url.QueryEscape(evil)},
		{"unknown id signed", env.clickPath(unknown, evil)},
		{"known id unsigned", "/t/click/" + sent.ID.String() + "?url=" + url.QueryEscape(evil)},
		{"known id signed for other target", "/t/click/" + sent.ID.String() + "?url=" + url.QueryEscape(evil) +
			"&sig=" + env.signer.Sign(sent.ID, "https://example.com")},
		{"signature from another email", "/t/click/" + sent.ID.String() + "?url=" + url.QueryEscape(evil) +
			"&sig=" + env.signer.Sign(unknown, evil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.serve(httptest.NewRequest(http.MethodGet, tt.path, nil), "", nil)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Empty(t, rec.Header().Get("Location"))
		})
	}

	quota, err := env.quota.GetCurrentQuota(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Zero(t, quota.EmailsClicked)
}

func TestTracking_Unsubscribe(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "user_a", domain.PlanPro)
	sent, subID := env.seedSentEmail(t, "user_a")

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/unsubscribe/"+sent.ID.String(), nil), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You have been unsubscribed")

	sub, err := env.store.GetSubmission(context.Background(), subID)
	require.NoError(t, err)
	assert.True(t, sub.Unsubscribed)

	rec = env.serve(httptest.NewRequest(http.MethodGet, "/unsubscribe/"+uuid.NewString(), nil), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
