package entitlement

import "context"

// Store defines the persistence interface for entitlements, the credit
// ledger and generated artifacts. All methods use concrete types from this
// package to avoid import cycles.
type Store interface {
	// GetEntitlement retrieves a user's entitlement record.
	// Returns ErrEntitlementNotFound when none exists.
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)

	// SetEntitlement creates or replaces a user's entitlement record.
	SetEntitlement(ctx context.Context, ent *Entitlement) error

	// Deduct atomically performs the commit described on DeductRequest.
	// The debit is conditional (credits_available >= amount checked inside
	// the same transaction) so concurrent commits cannot double-debit.
	// Returns ErrInsufficientCredits, ErrUsageLimitExceeded or
	// ErrEntitlementNotFound without any partial effect.
	Deduct(ctx context.Context, req *DeductRequest) (*DeductResult, error)

	// Grant atomically credits the user and appends a positive transaction.
	// Creates the entitlement record if missing. Returns
	// ErrDuplicateReference when req.ReferenceID was already granted.
	Grant(ctx context.Context, req *GrantRequest) (*GrantResult, error)

	// GetTransactions returns the newest transactions first, at most limit.
	GetTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)

	// SaveArtifact persists an artifact outside the debit path (used for
	// fallback results, which never debit credits).
	SaveArtifact(ctx context.Context, artifact *Artifact) error

	// GetArtifact returns the latest artifact for a user/feature pair.
	// Returns ErrArtifactNotFound when none exists.
	GetArtifact(ctx context.Context, userID, feature string) (*Artifact, error)
}
