// Package gin provides Gin middleware for pre-flight entitlement checks.
package gin

import (
	"fmt"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

// ContextKey is the Gin context key under which the middleware stores the
// *entitlement.CreditCheck for downstream handlers.
const ContextKey = "CreditCheck"

// UserIDExtractor extracts the user ID from a Gin context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c *gongin.Context) string

// FeatureExtractor extracts the feature key from a Gin context.
// For example: "roadmap", "career-suggestions", "interview-feedback".
type FeatureExtractor func(c *gongin.Context) string

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
	OnRejected func(c *gongin.Context, check *entitlement.CreditCheck)

	// OnUnauthorized is called when the user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error.
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that rejects requests the user has no
// credits for. The check is an optimistic hint: the pipeline re-checks
// atomically at commit time, so passing this gate never guarantees a debit
// will succeed.
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.Entitlements == nil {
		panic("careerhub/gin: Config.Entitlements is required")
	}
	if cfg.GetUserID == nil {
		panic("careerhub/gin: Config.GetUserID is required")
	}
	if cfg.GetFeature == nil {
		panic("careerhub/gin: Config.GetFeature is required")
	}
	if cfg.RejectedStatusCode == 0 {
		cfg.RejectedStatusCode = http.StatusTooManyRequests
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"success": false, "error": "user not authenticated"})
			}
			c.Abort()
			return
		}

		feature := cfg.GetFeature(c)
		check, err := cfg.Entitlements.CanUseFeature(c.Request.Context(), userID, feature)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"success": false, "error": "entitlement check failed"})
			}
			c.Abort()
			return
		}

		if !check.CanUse {
			c.Header("X-Credits-Available", fmt.Sprintf("%d", check.CreditsAvailable))
			c.Header("X-Credits-Required", fmt.Sprintf("%d", check.CreditsRequired))
			if cfg.OnRejected != nil {
				cfg.OnRejected(c, check)
			} else {
				c.JSON(cfg.RejectedStatusCode, gongin.H{"success": false, "error": check.Reason})
			}
			c.Abort()
			return
		}

		c.Set(ContextKey, check)
		c.Next()
	}
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets the user ID from Gin
// context values, as set by auth middleware via c.Set("UserID", "...").
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets the user ID from a header.
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets the user ID from a route
// parameter.
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// Convenience extractors for Feature

// FixedFeature returns a FeatureExtractor that always returns a fixed
// feature key.
func FixedFeature(feature string) FeatureExtractor {
	return func(*gongin.Context) string {
		return feature
	}
}

// FeatureFromParam returns a FeatureExtractor that gets the feature key from
// a route parameter.
func FeatureFromParam(paramName string) FeatureExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}
