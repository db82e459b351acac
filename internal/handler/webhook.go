// This file implements the Stripe webhook handler for plan changes.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v79"

	"github.com/mantlz/mantlz/internal/billing"
	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing     billing.Service
	userService service.UserService
	logger      *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, userService service.UserService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:     billingService,
		userService: userService,
		logger:      logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are public; Stripe authenticates with the payload signature.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events. Events that
// cannot be matched to a user are acknowledged; a failed plan write returns
// 500 so Stripe retries the delivery.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Verify signature
	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	// Route to event-specific handler
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(r.Context(), event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionChanged(r.Context(), event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(r.Context(), event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	if err != nil && domain.ErrorCode(err) == domain.ENOTFOUND {
		h.logger.Warn("webhook references unknown user", "error", err, "type", event.Type, "id", event.ID)
		err = nil
	}
	if err != nil {
		h.logger.Error("failed to process webhook", "error", err, "type", event.Type, "id", event.ID)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted links the Stripe customer to the user named by the
// session's client reference and applies the purchased plan.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return nil
	}

	if session.Customer == nil || session.ClientReferenceID == "" {
		h.logger.Warn("checkout session missing customer or client reference", "session_id", session.ID)
		return nil
	}

	userID := session.ClientReferenceID
	if err := h.userService.LinkStripeCustomer(ctx, userID, session.Customer.ID); err != nil {
		return err
	}

	if session.Subscription == nil {
		return nil
	}
	sub, err := h.billing.GetSubscription(session.Subscription.ID)
	if err != nil {
		return err
	}
	return h.applyPlan(ctx, userID, sub, "checkout")
}

func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return nil
	}

	user, ok := h.subscriptionUser(ctx, &sub)
	if !ok {
		return nil
	}
	return h.applyPlan(ctx, user.ID, &sub, "changed")
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return nil
	}

	user, ok := h.subscriptionUser(ctx, &sub)
	if !ok {
		return nil
	}
	if err := h.userService.UpdatePlan(ctx, user.ID, domain.PlanFree); err != nil {
		return err
	}

	h.logger.Info("subscription deleted", "user_id", user.ID, "subscription_id", sub.ID)
	return nil
}

func (h *WebhookHandler) subscriptionUser(ctx context.Context, sub *stripe.Subscription) (*domain.User, bool) {
	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return nil, false
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		h.logger.Warn("user not found for subscription event",
			"customer_id", sub.Customer.ID, "subscription_id", sub.ID, "error", err)
		return nil, false
	}
	return user, true
}

func (h *WebhookHandler) applyPlan(ctx context.Context, userID string, sub *stripe.Subscription, action string) error {
	plan, ok := billing.PlanForSubscription(h.billing, sub)
	if !ok {
		h.logger.Warn("subscription has no configured price", "user_id", userID, "subscription_id", sub.ID)
		return nil
	}

	if err := h.userService.UpdatePlan(ctx, userID, plan); err != nil {
		return err
	}

	h.logger.Info("subscription event processed",
		"user_id", userID, "action", action, "status", sub.Status, "plan", plan)
	return nil
}
