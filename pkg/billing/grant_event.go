package billing

import "time"

// GrantEvent describes a purchase that has been credited to the ledger.
// It is passed to Config.OnGrant after the grant has committed.
type GrantEvent struct {
	// UserID is the internal user identifier.
	UserID string

	// Pack is the purchased pack key.
	Pack string

	// Credits is the number of credits granted.
	Credits int

	// NewBalance is the balance after the grant.
	NewBalance int

	// Provider is the billing provider name ("stripe").
	Provider string

	// EventType is the provider-specific event type
	// (e.g. "checkout.session.completed").
	EventType string

	// ReferenceID is the provider payment reference used for grant
	// deduplication.
	ReferenceID string

	// EventTimestamp is when the event occurred (from the provider).
	EventTimestamp time.Time
}
