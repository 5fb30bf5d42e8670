// Package echo provides Echo middleware for pre-flight entitlement checks.
package echo

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

// ContextKey is the Echo context key under which the middleware stores the
// *entitlement.CreditCheck for downstream handlers.
const ContextKey = "CreditCheck"

// UserIDExtractor extracts the user ID from an Echo context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c echo.Context) string

// FeatureExtractor extracts the feature key from an Echo context.
// For example: "roadmap", "career-suggestions", "interview-feedback".
type FeatureExtractor func(c echo.Context) string

// Config holds middleware configuration.
type Config struct {
	// Entitlements is the entitlement service (required).
	Entitlements *entitlement.Service

	// GetUserID extracts the user ID from the context (required).
	GetUserID UserIDExtractor

	// GetFeature extracts the feature key from the context (required).
	GetFeature FeatureExtractor

	// RejectedStatusCode is the HTTP status returned when the check fails
	// (default: 429 Too Many Requests).
	RejectedStatusCode int

	// OnRejected is called when the user cannot use the feature.
	// If nil, a default JSON response is written.
	OnRejected func(c echo.Context, check *entitlement.CreditCheck) error

	// OnUnauthorized is called when the user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error.
	OnError func(c echo.Context, err error) error
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Middleware creates an Echo middleware that rejects requests the user has
// no credits for. The check is an optimistic hint: the pipeline re-checks
// atomically at commit time, so passing this gate never guarantees a debit
// will succeed.
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Entitlements == nil {
		panic("careerhub/echo: Config.Entitlements is required")
	}
	if cfg.GetUserID == nil {
		panic("careerhub/echo: Config.GetUserID is required")
	}
	if cfg.GetFeature == nil {
		panic("careerhub/echo: Config.GetFeature is required")
	}
	if cfg.RejectedStatusCode == 0 {
		cfg.RejectedStatusCode = http.StatusTooManyRequests
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, errorEnvelope{Error: "user not authenticated"})
			}

			feature := cfg.GetFeature(c)
			check, err := cfg.Entitlements.CanUseFeature(c.Request().Context(), userID, feature)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, errorEnvelope{Error: "entitlement check failed"})
			}

			if !check.CanUse {
				c.Response().Header().Set("X-Credits-Available", fmt.Sprintf("%d", check.CreditsAvailable))
				c.Response().Header().Set("X-Credits-Required", fmt.Sprintf("%d", check.CreditsRequired))
				if cfg.OnRejected != nil {
					return cfg.OnRejected(c, check)
				}
				return c.JSON(cfg.RejectedStatusCode, errorEnvelope{Error: check.Reason})
			}

			c.Set(ContextKey, check)
			return next(c)
		}
	}
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets the user ID from Echo
// context values, as set by auth middleware via c.Set("UserID", "...").
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets the user ID from a header.
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets the user ID from a route
// parameter.
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// Convenience extractors for Feature

// FixedFeature returns a FeatureExtractor that always returns a fixed
// feature key.
func FixedFeature(feature string) FeatureExtractor {
	return func(echo.Context) string {
		return feature
	}
}

// FeatureFromParam returns a FeatureExtractor that gets the feature key from
// a route parameter.
func FeatureFromParam(paramName string) FeatureExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
