// Package stripe implements the billing.Provider interface for Stripe
// Checkout one-time payments.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/billing"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/billing/internal"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBody           = 256 * 1024
)

// Config extends billing.Config with Stripe-specific options.
type Config struct {
	billing.Config // Base config (Entitlements, Packs, etc.)

	// StripeAPIKey is the secret API key used for outbound calls.
	StripeAPIKey string

	// StripeWebhookSecret is the endpoint signing secret (whsec_...).
	StripeWebhookSecret string
}

// Provider implements the billing.Provider interface for Stripe.
type Provider struct {
	ents          *entitlement.Service
	packs         map[string]billing.CreditPack
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	stripeClient  *stripe.Client
	onGrant       func(*billing.GrantEvent)
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Entitlements == nil || len(config.Packs) == 0 {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: httpClient,
	})

	webhookSecret := config.StripeWebhookSecret
	if webhookSecret == "" {
		webhookSecret = config.WebhookSecret
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		ents:          config.Entitlements,
		packs:         config.Packs,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: []byte(strings.TrimSpace(webhookSecret)),
		stripeClient: stripe.NewClient(apiKey, stripe.WithBackends(&stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		})),
		onGrant: config.OnGrant,
		metrics: metrics,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// Pack returns the configured pack for a key.
func (p *Provider) Pack(key string) (billing.CreditPack, bool) {
	pack, ok := p.packs[key]
	return pack, ok
}
