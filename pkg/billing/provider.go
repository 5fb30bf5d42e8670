// Package billing defines the provider-agnostic surface for selling credit
// packs. Purchases arrive as webhooks and land in the entitlement ledger as
// grants keyed by the provider's payment reference, so replayed webhooks
// never double-credit.
package billing

import (
	"context"
	"net/http"
)

// Provider is the generic interface any payment backend must implement.
type Provider interface {
	// Name returns the provider name (e.g., "stripe").
	Name() string

	// WebhookHandler returns the HTTP handler that processes payment
	// events. The implementation handles validation, parsing and the
	// credit grant internally.
	WebhookHandler() http.Handler

	// CheckoutURL creates a hosted checkout session for a credit pack and
	// returns its URL.
	CheckoutURL(ctx context.Context, userID, pack, successURL, cancelURL string) (string, error)
}

// CreditPack describes one purchasable credit bundle.
type CreditPack struct {
	// DisplayName is shown on the hosted checkout page.
	DisplayName string

	// Credits is the number of credits granted on successful payment.
	Credits int

	// AmountCents is the price in the smallest currency unit.
	AmountCents int64

	// Currency is the ISO currency code (e.g., "usd", "tzs").
	Currency string
}
