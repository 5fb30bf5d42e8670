package stripe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/billing"
)

// CheckoutURL creates a Stripe Checkout Session for a one-time credit pack
// purchase and returns its URL. The session carries user_id, pack and
// credits in metadata so the webhook handler can credit the purchase without
// any further lookups.
func (p *Provider) CheckoutURL(ctx context.Context, userID, pack, successURL, cancelURL string) (string, error) {
	startTime := time.Now()

	def, ok := p.packs[pack]
	if !ok {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "pack_not_found")
		return "", fmt.Errorf("%w: %s", billing.ErrPackNotConfigured, pack)
	}

	currency := def.Currency
	if currency == "" {
		currency = "usd"
	}
	name := def.DisplayName
	if name == "" {
		name = fmt.Sprintf("Credit Pack: %s", pack)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
					UnitAmount: stripe.Int64(def.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}

	// The webhook handler reads these back; the session is the only channel
	// between checkout and the credit grant.
	params.Metadata = map[string]string{
		"user_id": userID,
		"pack":    pack,
		"credits": strconv.Itoa(def.Credits),
	}
	params.ClientReferenceID = stripe.String(userID)

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))

	return session.URL, nil
}
