package genai

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFeature is returned for feature keys the pipeline does not
	// recognize.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrMissingInput is returned when the request lacks the input payload
	// for its feature.
	ErrMissingInput = errors.New("missing input payload")
)

// InsufficientCreditsError is a terminal rejection from the entitlement
// gate. It is raised before any external spend, or at commit time when a
// concurrent request won the race for the last credits.
type InsufficientCreditsError struct {
	Feature   FeatureKey
	Required  int
	Available int
	Reason    string
}

func (e *InsufficientCreditsError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("insufficient credits for %s: need %d, have %d", e.Feature, e.Required, e.Available)
}

// MalformedResponseError means the provider responded but its output was
// not parseable JSON. Treated like a provider failure: the fallback
// generator substitutes a valid result.
type MalformedResponseError struct {
	Cause error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Cause)
}

func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// IncompleteResponseError means the parsed JSON was missing a required
// top-level field, or a required array was empty.
type IncompleteResponseError struct {
	Field string
}

func (e *IncompleteResponseError) Error() string {
	return fmt.Sprintf("incomplete model response: missing or empty field %q", e.Field)
}

// PersistenceError means a valid result was produced but the ledger commit
// failed. The credit ledger is left unmodified: no debit without a
// persisted deliverable.
type PersistenceError struct {
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist generation: %v", e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
