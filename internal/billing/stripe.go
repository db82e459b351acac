// Package billing provides the Stripe integration that drives plan changes.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/mantlz/mantlz/internal/domain"
)

// Service defines the Stripe operations used by the webhook handler.
type Service interface {
	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// GetSubscription retrieves a Stripe subscription by ID.
	GetSubscription(subscriptionID string) (*stripe.Subscription, error)

	// PlanForPriceID returns the plan a Stripe price unlocks, or false for
	// prices that are not configured.
	PlanForPriceID(priceID string) (domain.Plan, bool)
}

// PriceConfig holds the Stripe price IDs that map to each paid plan. A plan
// usually has a monthly and a yearly price.
type PriceConfig struct {
	StandardPriceIDs []string
	ProPriceIDs      []string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	priceToPlan   map[string]domain.Plan
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	return &stripeService{
		webhookSecret: webhookSecret,
		priceToPlan:   priceMap(prices),
	}
}

func priceMap(prices PriceConfig) map[string]domain.Plan {
	m := make(map[string]domain.Plan)
	for _, id := range prices.StandardPriceIDs {
		if id != "" {
			m[id] = domain.PlanStandard
		}
	}
	for _, id := range prices.ProPriceIDs {
		if id != "" {
			m[id] = domain.PlanPro
		}
	}
	return m
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return sub, nil
}

func (s *stripeService) PlanForPriceID(priceID string) (domain.Plan, bool) {
	plan, ok := s.priceToPlan[priceID]
	return plan, ok
}

// PlanForSubscription returns the plan unlocked by the first configured
// price on an active subscription. Canceled or unpaid subscriptions fall
// back to FREE.
func PlanForSubscription(svc Service, sub *stripe.Subscription) (domain.Plan, bool) {
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
	default:
		return domain.PlanFree, true
	}
	if sub.Items == nil {
		return "", false
	}
	for _, item := range sub.Items.Data {
		if item.Price == nil {
			continue
		}
		if plan, ok := svc.PlanForPriceID(item.Price.ID); ok {
			return plan, true
		}
	}
	return "", false
}
