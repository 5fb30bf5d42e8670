package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is missing required configuration
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when a webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrPackNotConfigured is returned when a pack key is not found in Config.Packs
	ErrPackNotConfigured = errors.New("credit pack not configured")
)
