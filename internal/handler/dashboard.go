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
// Request and response types
// =============================================================================

type createFormRequest struct {
	Name                string          `json:"name" validate:"required,max=255"`
	Description         string          `json:"description" validate:"max=1000"`
	FormType            domain.FormType `json:"formType" validate:"omitempty,oneof=CUSTOM FEEDBACK CONTACT WAITLIST SURVEY"`
	Settings            json.RawMessage `json:"settings"`
	ConfirmationEnabled bool            `json:"confirmationEnabled"`
	DeveloperEmail      string          `json:"developerEmail" validate:"omitempty,email"`
}

type createCampaignRequest struct {
	FormID         string `json:"formId" validate:"required,uuid"`
	Name           string `json:"name" validate:"required,max=255"`
	Subject        string `json:"subject" validate:"required,max=255"`
	Content        string `json:"content" validate:"required"`
	RecipientCount int    `json:"recipientCount" validate:"min=0"`
}

type scheduleCampaignRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

type createAPIKeyRequest struct {
	Name string `json:"name" validate:"max=100"`
}

type campaignResponse struct {
	ID             uuid.UUID             `json:"id"`
	FormID         uuid.UUID             `json:"formId"`
	Name           string                `json:"name"`
	Subject        string                `json:"subject"`
	Status         domain.CampaignStatus `json:"status"`
	RecipientLimit int                   `json:"recipientLimit"`
	ScheduledAt    *time.Time            `json:"scheduledAt,omitempty"`
	SentAt         *time.Time            `json:"sentAt,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

func toCampaignResponse(c *domain.Campaign) campaignResponse {
	return campaignResponse{
		ID:             c.ID,
		FormID:         c.FormID,
		Name:           c.Name,
		Subject:        c.Subject,
		Status:         c.Status,
		RecipientLimit: c.RecipientCap(),
		ScheduledAt:    c.ScheduledAt,
		SentAt:         c.SentAt,
		CreatedAt:      c.CreatedAt,
	}
}

type apiKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"` // Only returned once
	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// DashboardHandler
// =============================================================================

// DashboardHandler serves the signed-in dashboard API.
type DashboardHandler struct {
	quota     service.QuotaService
	forms     service.FormService
	campaigns service.CampaignService
	apiKeys   service.APIKeyService
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(
	quota service.QuotaService,
	forms service.FormService,
	campaigns service.CampaignService,
	apiKeys service.APIKeyService,
	validate *validator.Validate,
	logger *slog.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		quota:     quota,
		forms:     forms,
		campaigns: campaigns,
		apiKeys:   apiKeys,
		validate:  validate,
		logger:    logger,
	}
}

// RegisterRoutes registers the dashboard routes. mw must set the user.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux, mw func(http.Handler) http.Handler) {
	mux.Handle("GET /api/quota", mw(http.HandlerFunc(h.GetQuota)))
	mux.Handle("POST /api/forms", mw(http.HandlerFunc(h.CreateForm)))
	mux.Handle("DELETE /api/forms/{id}", mw(http.HandlerFunc(h.DeleteForm)))
	mux.Handle("POST /api/campaigns", mw(http.HandlerFunc(h.CreateCampaign)))
	mux.Handle("POST /api/campaigns/{id}/schedule", mw(http.HandlerFunc(h.ScheduleCampaign)))
	mux.Handle("POST /api/api-keys", mw(http.HandlerFunc(h.CreateAPIKey)))
}

func (h *DashboardHandler) requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return nil, false
	}
	return user, true
}

// GetQuota handles GET /api/quota.
func (h *DashboardHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	usage, err := h.quota.GetUsage(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// CreateForm handles POST /api/forms.
func (h *DashboardHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	const op = "DashboardHandler.CreateForm"
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req createFormRequest
	if err := decodeJSON(w, r, h.validate, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	form, err := h.forms.Create(r.Context(), domain.CreateFormParams{
		UserID:              user.ID,
		Name:                req.Name,
		Description:         req.Description,
		FormType:            req.FormType,
		Settings:            req.Settings,
		ConfirmationEnabled: req.ConfirmationEnabled,
		DeveloperEmail:      req.DeveloperEmail,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFormResponse(form))
}

// DeleteForm handles DELETE /api/forms/{id}.
func (h *DashboardHandler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	const op = "DashboardHandler.DeleteForm"
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.forms.Delete(r.Context(), id, user.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCampaign handles POST /api/campaigns.
func (h *DashboardHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	const op = "DashboardHandler.CreateCampaign"
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req createCampaignRequest
	if err := decodeJSON(w, r, h.validate, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	campaign, err := h.campaigns.Create(r.Context(), domain.CreateCampaignParams{
		UserID:         user.ID,
		FormID:         uuid.MustParse(req.FormID),
		Name:           req.Name,
		Subject:        req.Subject,
		Content:        req.Content,
		RecipientCount: req.RecipientCount,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCampaignResponse(campaign))
}

// ScheduleCampaign handles POST /api/campaigns/{id}/schedule.
func (h *DashboardHandler) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	const op = "DashboardHandler.ScheduleCampaign"
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req scheduleCampaignRequest
	if err := decodeJSON(w, r, h.validate, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	campaign, err := h.campaigns.Schedule(r.Context(), domain.ScheduleCampaignParams{
		ID:          id,
		UserID:      user.ID,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponse(campaign))
}

// CreateAPIKey handles POST /api/api-keys.
func (h *DashboardHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	const op = "DashboardHandler.CreateAPIKey"
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req createAPIKeyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.validate, op, &req); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	key, err := h.apiKeys.Create(r.Context(), user.ID, req.Name)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, apiKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		Key:       key.RawKey,
		CreatedAt: key.CreatedAt,
	})
}
