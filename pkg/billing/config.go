package billing

import (
	"net/http"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

// Config defines the standard configuration all providers accept.
type Config struct {
	// Entitlements is the credit ledger purchases are granted into
	// (required).
	Entitlements *entitlement.Service

	// Packs maps pack keys (e.g., "starter", "pro") to their definitions
	// (required).
	Packs map[string]CreditPack

	// WebhookSecret is used to verify incoming webhook requests.
	WebhookSecret string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with a 10s timeout is used.
	HTTPClient *http.Client

	// OnGrant is an optional callback invoked after a purchase has been
	// credited. Use it for notifications or audit logging.
	OnGrant func(event *GrantEvent)

	// Metrics is an optional metrics collector. If nil, metrics are
	// silently ignored.
	Metrics Metrics
}
