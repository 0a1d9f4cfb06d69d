// Package billing creates subscription checkout sessions and consumes the
// payment provider's signed webhook events.
package billing

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/log"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"clipscribe/internal/domain"
	"clipscribe/internal/store"
)

// Config carries provider credentials and the tier-to-price mapping.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	PriceIDs      map[string]string
}

// subscriptionStore records tier changes derived from provider events.
type subscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub store.Subscription) error
}

// Service wraps the Stripe API client.
type Service struct {
	api    *client.API
	cfg    Config
	subs   subscriptionStore
	logger *log.Logger
}

// NewService constructs the billing service. With no secret key configured
// the service stays inert and reports BillingConfigError on use.
func NewService(cfg Config, subs subscriptionStore, logger *log.Logger) *Service {
	s := &Service{cfg: cfg, subs: subs, logger: logger}
	if strings.TrimSpace(cfg.SecretKey) != "" {
		s.api = client.New(cfg.SecretKey, nil)
	}
	return s
}

// Configured reports whether the payment provider is usable.
func (s *Service) Configured() bool {
	return s.api != nil
}

// CreateCheckout opens a subscription checkout session for the tier and
// returns the hosted payment page URL.
func (s *Service) CreateCheckout(ctx context.Context, userID, tier string) (string, error) {
	if !s.Configured() {
		return "", domain.E(domain.KindBillingConfig, "payment provider not configured", nil)
	}

	priceID := s.cfg.PriceIDs[strings.ToLower(strings.TrimSpace(tier))]
	if priceID == "" {
		return "", domain.E(domain.KindInvalidRequest, "unknown subscription tier: "+tier, nil)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(userID),
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", domain.E(domain.KindProvider, "create checkout session", err)
	}

	s.logger.Info("checkout session created", "user", userID, "tier", tier)
	return sess.URL, nil
}

// HandleWebhook verifies the event signature and applies subscription
// changes. Verification failure is the only hard error; persistence issues
// are logged and swallowed so the provider does not retry forever.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if strings.TrimSpace(s.cfg.WebhookSecret) == "" {
		return domain.E(domain.KindBillingConfig, "webhook secret not configured", nil)
	}

	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		return domain.E(domain.KindInvalidRequest, "invalid webhook signature", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return domain.E(domain.KindInvalidRequest, "decode checkout session event", err)
		}
		s.recordSubscription(ctx, sess)
	default:
		s.logger.Debug("ignoring billing event", "type", event.Type)
	}
	return nil
}

// recordSubscription maps a completed checkout back to a user row.
func (s *Service) recordSubscription(ctx context.Context, sess stripe.CheckoutSession) {
	if s.subs == nil || sess.ClientReferenceID == "" {
		return
	}

	tier := s.tierForSession(sess)
	err := s.subs.UpsertSubscription(ctx, store.Subscription{
		UserID: sess.ClientReferenceID,
		Tier:   tier,
		Status: "active",
	})
	if err != nil {
		s.logger.Error("record subscription failed", "user", sess.ClientReferenceID, "error", err)
	}
}

// tierForSession reverses the price mapping; unknown prices keep the tier
// name empty rather than guessing.
func (s *Service) tierForSession(sess stripe.CheckoutSession) string {
	if sess.LineItems == nil || len(sess.LineItems.Data) == 0 {
		return ""
	}
	price := sess.LineItems.Data[0].Price
	if price == nil {
		return ""
	}
	for tier, id := range s.cfg.PriceIDs {
		if id == price.ID {
			return tier
		}
	}
	return ""
}
