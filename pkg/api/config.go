package api

import (
	"fmt"
	"net/http"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/genai"
)

// Config holds configuration for the generation API handler.
type Config struct {
	// Pipeline runs generation requests (required).
	Pipeline *genai.Pipeline

	// Entitlements serves the balance and artifact endpoints (required).
	Entitlements *entitlement.Service

	// GetUserID extracts the authenticated user ID from a request
	// (required). A return of "" produces a 401.
	GetUserID func(*http.Request) string

	// TransactionLimit caps the ledger entries included in a credits
	// response (default: 20).
	TransactionLimit int

	// Logger is used for structured logging (default: NoopLogger).
	Logger genai.Logger
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if c.Entitlements == nil {
		return fmt.Errorf("entitlement service is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	return nil
}

// NewHandler creates a new generation API handler.
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.TransactionLimit <= 0 {
		config.TransactionLimit = 20
	}
	if config.Logger == nil {
		config.Logger = &genai.NoopLogger{}
	}
	return &Handler{config: config}, nil
}

// FromHeader returns a GetUserID function that extracts the user ID from a
// header.
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetUserID function that extracts the user ID from
// the request context.
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}
