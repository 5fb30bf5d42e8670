package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/billing"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
	"github.com/cygon23/caeerhub-platform-sub002/storage/memory"
)

const testWebhookSecret = "whsec_test_secret"

func newTestProvider(t *testing.T, onGrant func(*billing.GrantEvent)) (*Provider, *entitlement.Service) {
	t.Helper()

	ents, err := entitlement.NewService(memory.New(), entitlement.Config{
		Costs: entitlement.Costs{"roadmap": 3},
	})
	require.NoError(t, err)

	provider, err := NewProvider(Config{
		Config: billing.Config{
			Entitlements: ents,
			Packs: map[string]billing.CreditPack{
				"starter": {DisplayName: "Starter", Credits: 20, AmountCents: 500, Currency: "usd"},
			},
			OnGrant: onGrant,
		},
		StripeAPIKey:        "sk_test_123",
		StripeWebhookSecret: testWebhookSecret,
	})
	require.NoError(t, err)

	return provider, ents
}

// signPayload builds a Stripe-Signature header for a payload.
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(eventType, sessionID, userID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": %q,
		"created": %d,
		"data": {
			"object": {
				"id": %q,
				"object": "checkout.session",
				"payment_status": %q,
				"metadata": {
					"user_id": %q,
					"pack": "starter",
					"credits": "20"
				}
			}
		}
	}`, eventType, time.Now().Unix(), sessionID, paymentStatus, userID))
}

func postWebhook(provider *Provider, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsNonPost(t *testing.T) {
	provider, _ := newTestProvider(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	provider, _ := newTestProvider(t, nil)

	payload := checkoutEvent("checkout.session.completed", "cs_1", "u1", "paid")
	rec := postWebhook(provider, payload, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	provider, _ := newTestProvider(t, nil)

	payload := checkoutEvent("checkout.session.completed", "cs_1", "u1", "paid")
	rec := postWebhook(provider, payload, signPayload(payload, "whsec_wrong", time.Now()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookGrantsCredits(t *testing.T) {
	var granted *billing.GrantEvent
	provider, ents := newTestProvider(t, func(e *billing.GrantEvent) { granted = e })

	payload := checkoutEvent("checkout.session.completed", "cs_100", "u1", "paid")
	rec := postWebhook(provider, payload, signPayload(payload, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	balance, err := ents.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, balance)

	require.NotNil(t, granted, "onGrant callback not invoked")
	assert.Equal(t, "u1", granted.UserID)
	assert.Equal(t, "starter", granted.Pack)
	assert.Equal(t, 20, granted.Credits)
	assert.Equal(t, "cs_100", granted.ReferenceID)

	txns, err := ents.GetTransactions(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 20, txns[0].Delta)
	assert.Equal(t, "cs_100", txns[0].ReferenceID)
}

func TestWebhookReplayDoesNotDoubleGrant(t *testing.T) {
	provider, ents := newTestProvider(t, nil)

	payload := checkoutEvent("checkout.session.completed", "cs_replay", "u1", "paid")
	sig := signPayload(payload, testWebhookSecret, time.Now())

	for i := 0; i < 3; i++ {
		rec := postWebhook(provider, payload, sig)
		assert.Equal(t, http.StatusOK, rec.Code, "delivery %d", i)
	}

	balance, err := ents.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, balance, "replays must credit at most once")
}

func TestWebhookIgnoresUnpaidSession(t *testing.T) {
	provider, ents := newTestProvider(t, nil)

	payload := checkoutEvent("checkout.session.completed", "cs_unpaid", "u1", "unpaid")
	rec := postWebhook(provider, payload, signPayload(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	balance, err := ents.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestWebhookAsyncPaymentSucceeded(t *testing.T) {
	provider, ents := newTestProvider(t, nil)

	payload := checkoutEvent("checkout.session.async_payment_succeeded", "cs_async", "u1", "paid")
	rec := postWebhook(provider, payload, signPayload(payload, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	balance, err := ents.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, balance)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	provider, ents := newTestProvider(t, nil)

	payload := []byte(fmt.Sprintf(`{"id": "evt_2", "type": "invoice.paid", "created": %d, "data": {"object": {}}}`, time.Now().Unix()))
	rec := postWebhook(provider, payload, signPayload(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	balance, err := ents.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestWebhookMissingUserID(t *testing.T) {
	provider, _ := newTestProvider(t, nil)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"created": %d,
		"data": {"object": {"id": "cs_nouser", "object": "checkout.session", "payment_status": "paid", "metadata": {}}}
	}`, time.Now().Unix()))
	rec := postWebhook(provider, payload, signPayload(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookNotConfigured(t *testing.T) {
	ents, err := entitlement.NewService(memory.New(), entitlement.Config{
		Costs: entitlement.Costs{"roadmap": 3},
	})
	require.NoError(t, err)

	provider, err := NewProvider(Config{
		Config: billing.Config{
			Entitlements: ents,
			Packs:        map[string]billing.CreditPack{"starter": {Credits: 20, AmountCents: 500}},
		},
		StripeAPIKey: "sk_test_123",
	})
	require.NoError(t, err)

	payload := checkoutEvent("checkout.session.completed", "cs_1", "u1", "paid")
	rec := postWebhook(provider, payload, signPayload(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewProviderValidation(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)

	ents, err := entitlement.NewService(memory.New(), entitlement.Config{
		Costs: entitlement.Costs{"roadmap": 3},
	})
	require.NoError(t, err)

	_, err = NewProvider(Config{
		Config: billing.Config{
			Entitlements: ents,
			Packs:        map[string]billing.CreditPack{"starter": {Credits: 20}},
		},
	})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)
}
