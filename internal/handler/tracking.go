package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/service"
)

// transparentGIF is a 1x1 transparent GIF.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:sans-serif;max-width:480px;margin:64px auto;text-align:center">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>`))

// TrackingHandler serves the links embedded in campaign emails. These are
// opened by mail clients, so responses never expose errors beyond a status.
type TrackingHandler struct {
	tracking service.TrackingService
	signer   *email.LinkSigner
	logger   *slog.Logger
}

// NewTrackingHandler creates a new TrackingHandler. signer must be the one
// the mailer signs click links with.
func NewTrackingHandler(tracking service.TrackingService, signer *email.LinkSigner, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{
		tracking: tracking,
		signer:   signer,
		logger:   logger,
	}
}

// RegisterRoutes registers the public tracking routes.
func (h *TrackingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /t/open/{id}", h.Open)
	mux.HandleFunc("GET /t/click/{id}", h.Click)
	mux.HandleFunc("GET /unsubscribe/{id}", h.Unsubscribe)
}

// Open handles GET /t/open/{id}. The pixel is returned whatever happens.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	if id, err := uuid.Parse(r.PathValue("id")); err == nil {
		if err := h.tracking.RecordOpen(r.Context(), id); err != nil && domain.ErrorCode(err) != domain.ENOTFOUND {
			h.logger.Warn("failed to record open", "error", err, "sent_email_id", id)
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

// Click handles GET /t/click/{id}?url=&sig=. It redirects only to an
// absolute http(s) target signed for an existing sent email; anything else
// is a 404 so the endpoint cannot be used as an open redirect.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	target, ok := redirectTarget(q.Get("url"))
	if !ok {
		http.Error(w, "Invalid link", http.StatusBadRequest)
		return
	}
	if !h.signer.Verify(id, q.Get("url"), q.Get("sig")) {
		http.NotFound(w, r)
		return
	}

	if err := h.tracking.RecordClick(r.Context(), id); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.NotFound(w, r)
			return
		}
		// The signature already ties the target to this email.
		h.logger.Warn("failed to record click", "error", err, "sent_email_id", id)
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// Unsubscribe handles GET /unsubscribe/{id}.
func (h *TrackingHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.renderUnsubscribe(w, http.StatusNotFound, "Link not found", "This unsubscribe link is not valid.")
		return
	}

	if err := h.tracking.Unsubscribe(r.Context(), id); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			h.renderUnsubscribe(w, http.StatusNotFound, "Link not found", "This unsubscribe link is not valid or has expired.")
			return
		}
		h.logger.Error("failed to unsubscribe", "error", err, "sent_email_id", id)
		h.renderUnsubscribe(w, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		return
	}

	h.renderUnsubscribe(w, http.StatusOK, "You have been unsubscribed", "You will no longer receive these emails.")
}

func (h *TrackingHandler) renderUnsubscribe(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := unsubscribePage.Execute(w, map[string]string{"Title": title, "Message": message}); err != nil {
		h.logger.Error("failed to render unsubscribe page", "error", err)
	}
}

func redirectTarget(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}
