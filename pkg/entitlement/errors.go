package entitlement

import "errors"

var (
	// ErrInsufficientCredits is returned by Deduct when the conditional
	// debit fails because the balance is below the requested amount.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUsageLimitExceeded is returned when a per-feature usage cap would
	// be exceeded.
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")

	// ErrEntitlementNotFound is returned when the user has no record.
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrArtifactNotFound is returned when no artifact exists for the
	// user/feature pair.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrDuplicateReference is returned when a grant reuses a reference ID.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnknownFeature is returned when no cost is configured for a
	// feature key.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrStorageUnavailable is returned when storage is unavailable.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
