package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v79"

	"clipscribe/internal/domain"
	"clipscribe/internal/store"
)

type fakeSubs struct {
	recorded []store.Subscription
	err      error
}

func (f *fakeSubs) UpsertSubscription(_ context.Context, sub store.Subscription) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, sub)
	return nil
}

func testService(cfg Config, subs *fakeSubs) *Service {
	return NewService(cfg, subs, log.New(io.Discard))
}

// signPayload builds a Stripe-Signature header the verifier accepts.
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedSessionEvent(userID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"api_version": %q,
		"data": {"object": {"id": "cs_1", "client_reference_id": %q}}
	}`, stripe.APIVersion, userID))
}

func TestCreateCheckoutUnconfigured(t *testing.T) {
	svc := testService(Config{}, &fakeSubs{})

	_, err := svc.CreateCheckout(context.Background(), "user-1", "pro")
	assert.Equal(t, domain.KindBillingConfig, domain.KindOf(err))
	assert.False(t, svc.Configured())
}

func TestCreateCheckoutUnknownTier(t *testing.T) {
	svc := testService(Config{
		SecretKey: "sk_test_x",
		PriceIDs:  map[string]string{"pro": "price_1"},
	}, &fakeSubs{})

	_, err := svc.CreateCheckout(context.Background(), "user-1", "enterprise")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
}

func TestHandleWebhookWithoutSecret(t *testing.T) {
	svc := testService(Config{SecretKey: "sk_test_x"}, &fakeSubs{})

	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc")
	assert.Equal(t, domain.KindBillingConfig, domain.KindOf(err))
}

func TestHandleWebhookBadSignature(t *testing.T) {
	svc := testService(Config{WebhookSecret: "whsec_test"}, &fakeSubs{})

	payload := completedSessionEvent("user-9")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, "whsec_wrong"))
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
}

func TestHandleWebhookCheckoutCompleted(t *testing.T) {
	subs := &fakeSubs{}
	svc := testService(Config{WebhookSecret: "whsec_test"}, subs)

	payload := completedSessionEvent("user-9")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, "whsec_test"))
	require.NoError(t, err)

	require.Len(t, subs.recorded, 1)
	assert.Equal(t, "user-9", subs.recorded[0].UserID)
	assert.Equal(t, "active", subs.recorded[0].Status)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	subs := &fakeSubs{}
	svc := testService(Config{WebhookSecret: "whsec_test"}, subs)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_2",
		"type": "invoice.paid",
		"api_version": %q,
		"data": {"object": {}}
	}`, stripe.APIVersion))

	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, "whsec_test"))
	require.NoError(t, err)
	assert.Empty(t, subs.recorded)
}

func TestHandleWebhookPersistenceFailureIsSwallowed(t *testing.T) {
	subs := &fakeSubs{err: fmt.Errorf("db down")}
	svc := testService(Config{WebhookSecret: "whsec_test"}, subs)

	payload := completedSessionEvent("user-9")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, "whsec_test"))
	assert.NoError(t, err, "provider must not see persistence failures")
}
