package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/billing"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/billing/internal"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

// handleWebhook processes incoming Stripe webhook events.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return p.handleCheckoutCompleted(ctx, event)
	default:
		// Unknown event type; acknowledge and ignore.
		return nil
	}
}

// handleCheckoutCompleted credits a finished one-time payment. The session
// ID is the grant reference, so Stripe's webhook retries and duplicate
// deliveries credit at most once.
func (p *Provider) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// Async payment methods fire completed before the money moves; the
		// async_payment_succeeded event follows once paid.
		return nil
	}

	userID := ""
	pack := ""
	credits := 0
	if session.Metadata != nil {
		userID = session.Metadata["user_id"]
		pack = session.Metadata["pack"]
		credits, _ = strconv.Atoi(session.Metadata["credits"])
	}
	if userID == "" {
		return fmt.Errorf("metadata.user_id missing on checkout session %s", session.ID)
	}
	if credits <= 0 {
		if def, ok := p.packs[pack]; ok {
			credits = def.Credits
		}
	}
	if credits <= 0 {
		return fmt.Errorf("cannot determine credits for checkout session %s", session.ID)
	}

	result, err := p.ents.Grant(ctx, &entitlement.GrantRequest{
		UserID:      userID,
		Amount:      credits,
		ReferenceID: session.ID,
		Metadata: map[string]string{
			"provider": providerName,
			"pack":     pack,
		},
	})
	if errors.Is(err, entitlement.ErrDuplicateReference) {
		// Replayed webhook; the purchase is already credited.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to grant credits: %w", err)
	}

	p.metrics.RecordGrant(providerName, pack, credits)

	if p.onGrant != nil {
		p.onGrant(&billing.GrantEvent{
			UserID:         userID,
			Pack:           pack,
			Credits:        credits,
			NewBalance:     result.NewBalance,
			Provider:       providerName,
			EventType:      string(event.Type),
			ReferenceID:    session.ID,
			EventTimestamp: time.Unix(event.Created, 0).UTC(),
		})
	}

	return nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
