// Package entitlement implements credit-based feature metering: a
// side-effect-free pre-flight gate plus an atomic commit path that debits
// credits, appends a ledger transaction and persists the generated artifact
// in one storage operation.
package entitlement

import (
	"encoding/json"
	"time"
)

// Entitlement is the per-user credit record. CreditsAvailable never goes
// negative: debits only apply through the conditional Deduct operation.
type Entitlement struct {
	UserID           string
	CreditsAvailable int
	PlanTier         string

	// UsageCounts tracks lifetime successful generations per feature key.
	UsageCounts map[string]int

	// UsageLimits caps generations per feature key. A missing key means
	// unlimited.
	UsageLimits map[string]int

	UpdatedAt time.Time
}

// CreditCheck is the result of the pre-flight gate. It is an optimistic hint
// only; the authoritative balance check happens atomically at commit time.
type CreditCheck struct {
	CanUse           bool   `json:"can_use"`
	Reason           string `json:"reason,omitempty"`
	CreditsAvailable int    `json:"credits_available"`
	CreditsRequired  int    `json:"credits_required"`
	UsageCount       int    `json:"usage_count"`
	UsageLimit       *int   `json:"usage_limit,omitempty"`
}

// Transaction is an append-only ledger record. Delta is negative for
// generation costs and positive for grants/refills.
type Transaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Feature     string            `json:"feature"`
	Delta       int               `json:"delta"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Artifact is a persisted generation result. Source records whether the
// payload came from the AI provider or the deterministic fallback so callers
// can disclose which one the user got.
type Artifact struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Feature   string          `json:"feature"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeductRequest is the atomic commit: conditional debit, transaction append,
// usage-count increment and (when Artifact is set) artifact persistence,
// all-or-nothing.
type DeductRequest struct {
	UserID      string
	Feature     string
	Amount      int
	ReferenceID string
	Metadata    map[string]string

	// Artifact, when non-nil, is persisted in the same storage transaction
	// as the debit. If persistence fails the debit must not commit.
	Artifact *Artifact
}

// DeductResult reports the outcome of a committed debit.
type DeductResult struct {
	NewBalance    int
	TransactionID string
}

// GrantRequest credits a user (purchase, refill, signup bonus).
// ReferenceID, when set, deduplicates grants: a second grant with the same
// reference returns ErrDuplicateReference.
type GrantRequest struct {
	UserID      string
	Feature     string
	Amount      int
	ReferenceID string
	Metadata    map[string]string
}

// GrantResult reports the outcome of a committed grant.
type GrantResult struct {
	NewBalance    int
	TransactionID string
}
