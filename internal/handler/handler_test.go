package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mantlz/mantlz/internal/auth"
	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/repository/mock"
	"github.com/mantlz/mantlz/internal/service"
)

func TestMain(m *testing.M) {
	service.APIKeyBcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

// testEnv wires the real services over the in-memory store.
type testEnv struct {
	store       *mock.Store
	users       service.UserService
	quota       service.QuotaService
	forms       service.FormService
	submissions service.SubmissionService
	campaigns   service.CampaignService
	apiKeys     service.APIKeyService
	tracking    service.TrackingService
	signer      *email.LinkSigner
	mux         *http.ServeMux
}

func passthrough(next http.Handler) http.Handler { return next }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mock.New()
	store.Now = func() time.Time { return testNow }
	clock := domain.FixedClock(testNow)
	logger := discardLogger()

	env := &testEnv{
		store:       store,
		users:       service.NewUserService(store, logger),
		quota:       service.NewQuotaService(store, clock, logger),
		forms:       service.NewFormService(store, clock, logger),
		submissions: service.NewSubmissionService(store, clock, logger),
		campaigns:   service.NewCampaignService(store, clock, logger),
		apiKeys:     service.NewAPIKeyService(store, clock, logger),
		signer:      email.NewLinkSigner("test-tracking-secret"),
		mux:         http.NewServeMux(),
	}
	env.tracking = service.NewTrackingService(store, env.quota, clock, logger)

	validate := NewValidator()
	NewAPIHandler(env.forms, env.submissions, validate, clock, logger).RegisterRoutes(env.mux, passthrough)
	NewDashboardHandler(env.quota, env.forms, env.campaigns, env.apiKeys, validate, logger).RegisterRoutes(env.mux, passthrough)
	NewTrackingHandler(env.tracking, env.signer, logger).RegisterRoutes(env.mux)
	return env
}

func (e *testEnv) seedUser(t *testing.T, id string, plan domain.Plan) *domain.User {
	t.Helper()
	ctx := context.Background()
	_, err := e.users.EnsureUser(ctx, domain.EnsureUserParams{ID: id, Email: id + "@example.com"})
	require.NoError(t, err)
	require.NoError(t, e.users.UpdatePlan(ctx, id, plan))
	user, err := e.users.GetByID(ctx, id)
	require.NoError(t, err)
	return user
}

func (e *testEnv) seedForm(t *testing.T, userID string) *domain.Form {
	t.Helper()
	form, err := e.forms.Create(context.Background(), domain.CreateFormParams{
		UserID:   userID,
		Name:     "Waitlist",
		FormType: domain.FormTypeWaitlist,
	})
	require.NoError(t, err)
	return form
}

// serve runs req through the mux. A non-empty apiKeyUser authenticates the
// request as that user's API key; a non-nil user as a dashboard session.
func (e *testEnv) serve(req *http.Request, apiKeyUser string, user *domain.User) *httptest.ResponseRecorder {
	ctx := req.Context()
	if apiKeyUser != "" {
		ctx = auth.SetAPIKey(ctx, &domain.APIKey{UserID: apiKeyUser})
	}
	if user != nil {
		ctx = auth.SetUser(ctx, user)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
