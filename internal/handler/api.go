package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/auth"
	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/service"
)

// =============================================================================
// Response types
// =============================================================================

type formResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	FormType        domain.FormType `json:"formType"`
	Settings        json.RawMessage `json:"settings,omitempty"`
	SubmissionCount int64           `json:"submissionCount"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toFormResponse(f *domain.Form) formResponse {
	return formResponse{
		ID:              f.ID,
		Name:            f.Name,
		Description:     f.Description,
		FormType:        f.FormType,
		Settings:        f.Settings,
		SubmissionCount: f.SubmissionCount,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

type submissionResponse struct {
	ID        uuid.UUID       `json:"id"`
	FormID    uuid.UUID       `json:"formId"`
	Email     string          `json:"email,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

type paginationResponse struct {
	Total   int64 `json:"total"`
	Limit   int32 `json:"limit"`
	Offset  int32 `json:"offset"`
	HasMore bool  `json:"hasMore"`
}

type notificationLogResponse struct {
	ID           uuid.UUID                 `json:"id"`
	SubmissionID *uuid.UUID                `json:"submissionId,omitempty"`
	Type         domain.NotificationType   `json:"type"`
	Status       domain.NotificationStatus `json:"status"`
	Error        string                    `json:"error,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
}

type submitRequest struct {
	Data map[string]any `json:"data" validate:"required"`
}

// =============================================================================
// APIHandler
// =============================================================================

// APIHandler serves the public, API-key authenticated v1 API.
type APIHandler struct {
	forms       service.FormService
	submissions service.SubmissionService
	validate    *validator.Validate
	clock       domain.Clock
	logger      *slog.Logger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(forms service.FormService, submissions service.SubmissionService, validate *validator.Validate, clock domain.Clock, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		forms:       forms,
		submissions: submissions,
		validate:    validate,
		clock:       clock,
		logger:      logger,
	}
}

// RegisterRoutes registers the v1 routes. mw must authenticate the API key.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux, mw func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/forms/list", mw(http.HandlerFunc(h.ListForms)))
	mux.Handle("GET /api/v1/forms/{id}", mw(http.HandlerFunc(h.GetForm)))
	mux.Handle("GET /api/v1/forms/{id}/submissions", mw(http.HandlerFunc(h.ListSubmissions)))
	mux.Handle("GET /api/v1/forms/{id}/analytics", mw(http.HandlerFunc(h.Analytics)))
	mux.Handle("GET /api/v1/forms/{id}/logs", mw(http.HandlerFunc(h.Logs)))
	mux.Handle("POST /api/v1/forms/{id}/submit", mw(http.HandlerFunc(h.Submit)))
}

// apiKeyUser returns the owner of the request's API key.
func (h *APIHandler) apiKeyUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := auth.GetAPIKey(r.Context())
	if key == nil {
		UnauthorizedResponse(w, r, h.logger)
		return "", false
	}
	return key.UserID, true
}

// ListForms handles GET /api/v1/forms/list.
func (h *APIHandler) ListForms(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.apiKeyUser(w, r)
	if !ok {
		return
	}

	forms, err := h.forms.List(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]formResponse, len(forms))
	for i := range forms {
		out[i] = toFormResponse(&forms[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"forms": out})
}

// GetForm handles GET /api/v1/forms/{id}.
func (h *APIHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	const op = "APIHandler.GetForm"
	userID, ok := h.apiKeyUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	form, err := h.forms.GetByID(r.Context(), id, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toFormResponse(form))
}

// ListSubmissions handles GET /api/v1/forms/{id}/submissions.
//
// Query: limit, offset, since, until, includeMeta.
func (h *APIHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	const op = "APIHandler.ListSubmissions"
	userID, ok := h.apiKeyUser(w, r)
	if !ok {
		return
	}

	params := domain.ListSubmissionsParams{UserID: userID, IncludeMeta: queryBool(r, "includeMeta")}
	var err error
	if params.FormID, err = pathUUID(r, "id", op); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if params.Limit, err = queryInt32(r, "limit", op); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if params.Offset, err = queryInt32(r, "offset", op); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if params.Since, err = queryTime(r, "since", op); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if params.Until, err = queryTime(r, "until", op); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.submissions.List(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	subs := make([]submissionResponse, len(result.Submissions))
	for i, s := range result.Submissions {
		subs[i] = submissionResponse{
			ID:        s.ID,
			FormID:    s.FormID,
			Email:     s.Email,
			Data:      s.Data,
			CreatedAt: s.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"pagination": paginationResponse{
			Total:   result.Total,
			Limit:   result.Limit,
			Offset:  result.Offset,
			HasMore: result.HasMore(),
		},
	})
}

// Analytics handles GET /api/v1/forms/{id}/analytics.
func (h *APIHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	const op = "APIHandler.Analytics"
	userID, ok := h.apiKeyUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	analytics, err := h.forms.Analytics(r.Context(), id, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// Logs handles GET /api/v1/forms/{id}/logs.
func (h *APIHandler) Logs(w http.ResponseWriter, r *http.Request) {
	const op = "APIHandler.Logs"
	userID, ok := h.apiKeyUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	limit, err := queryInt32(r, "limit", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	offset, err := queryInt32(r, "offset", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	logs, err := h.forms.Logs(r.Context(), id, userID, limit, offset)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]notificationLogResponse, len(logs))
	for i, l := range logs {
		out[i] = notificationLogResponse{
			ID:           l.ID,
			SubmissionID: l.SubmissionID,
			Type:         l.Type,
			Status:       l.Status,
			Error:        l.Error,
			CreatedAt:    l.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}

// Submit handles POST /api/v1/forms/{id}/submit.
func (h *APIHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "APIHandler.Submit"
	userID, ok := h.apiKeyUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req submitRequest
	if err := decodeJSON(w, r, h.validate, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	now := h.clock.Now()
	sub, err := h.submissions.Submit(r.Context(), domain.SubmitParams{
		FormID:    id,
		UserID:    userID,
		Data:      req.Data,
		Meta:      domain.MetaFromRequest(r, now),
		RequestAt: now,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      sub.ID,
		"message": "Submission received",
	})
}
