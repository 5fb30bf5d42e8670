package llm

import "fmt"

// ProviderError is returned when the provider call fails after retries are
// exhausted. StatusCode is 0 for network-level failures.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("llm provider: %s", e.Message)
	}
	return fmt.Sprintf("llm provider: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the failure is transient (network error or 5xx).
// Non-transient errors (4xx, auth failures) must not be retried.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}
