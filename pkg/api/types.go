package api

import (
	"encoding/json"
	"time"
)

// Envelope is the uniform JSON response wrapper. Error responses carry
// Success=false and a message; success responses embed the payload.
type Envelope struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// GenerateResponse is the payload for a completed generation request.
type GenerateResponse struct {
	Feature string      `json:"feature"`
	Source  string      `json:"source"`
	Result  interface{} `json:"result"`
	Credits CreditState `json:"credits"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// CreditState reports the ledger effect of a generation.
type CreditState struct {
	Debited       bool   `json:"debited"`
	NewBalance    int    `json:"new_balance"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// TokenUsage carries provider-reported token counts.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CreditsResponse is the payload for the credit balance endpoint.
type CreditsResponse struct {
	UserID       string             `json:"user_id"`
	Balance      int                `json:"balance"`
	PlanTier     string             `json:"plan_tier,omitempty"`
	UsageCounts  map[string]int     `json:"usage_counts,omitempty"`
	Transactions []TransactionEntry `json:"transactions,omitempty"`
}

// TransactionEntry is one ledger entry in a credits response.
type TransactionEntry struct {
	ID          string    `json:"id"`
	Feature     string    `json:"feature,omitempty"`
	Delta       int       `json:"delta"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactResponse is the payload for the stored artifact endpoint.
type ArtifactResponse struct {
	Feature   string          `json:"feature"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
