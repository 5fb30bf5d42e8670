package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/llm"
)

func successBody(text string) string {
	payload := map[string]interface{}{
		"model": "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": text}},
		},
		"usage": map[string]int{
			"prompt_tokens":     12,
			"completion_tokens": 34,
			"total_tokens":      46,
		},
	}
	out, _ := json.Marshal(payload)
	return string(out)
}

func newClient(t *testing.T, baseURL string) *llm.Client {
	t.Helper()
	client, err := llm.NewClient(llm.Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Retry:   llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	if _, err := llm.NewClient(llm.Config{}); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := llm.NewClient(llm.Config{APIKey: "   "}); err == nil {
		t.Error("expected error for blank api key")
	}

	client, err := llm.NewClient(llm.Config{APIKey: "k", Model: "custom-model"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != "custom-model" {
		t.Errorf("model = %q, want custom-model", client.Model())
	}
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(successBody(`{"answer": 42}`)))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	completion, err := client.Complete(context.Background(), &llm.CompletionRequest{
		Prompt:       "say something",
		JSONResponse: true,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if completion.Text != `{"answer": 42}` {
		t.Errorf("text = %q", completion.Text)
	}
	if completion.Usage.PromptTokens != 12 || completion.Usage.CompletionTokens != 34 {
		t.Errorf("usage = %+v", completion.Usage)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if format, ok := sent["response_format"].(map[string]interface{}); !ok || format["type"] != "json_object" {
		t.Errorf("response_format missing or wrong: %v", sent["response_format"])
	}
}

func TestCompleteRetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "overloaded"}}`))
			return
		}
		_, _ = w.Write([]byte(successBody("recovered")))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	completion, err := client.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete failed after retry: %v", err)
	}
	if completion.Text != "recovered" {
		t.Errorf("text = %q", completion.Text)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("server hit %d times, want 2", calls)
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid model", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	_, err := client.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})

	var providerErr *llm.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", providerErr.StatusCode)
	}
	if providerErr.Message != "invalid model" {
		t.Errorf("message = %q, want provider-reported message", providerErr.Message)
	}
	if providerErr.Temporary() {
		t.Error("4xx must not be temporary")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server hit %d times, want 1 (no retry)", calls)
	}
}

func TestCompleteExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	_, err := client.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})

	var providerErr *llm.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", providerErr.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("server hit %d times, want 3 (all attempts)", calls)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model": "gpt-4o-mini", "choices": []}`))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	_, err := client.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})

	var providerErr *llm.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestCompleteRequiresPrompt(t *testing.T) {
	client := newClient(t, "http://localhost:0")
	if _, err := client.Complete(context.Background(), &llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty prompt")
	}
	if _, err := client.Complete(context.Background(), nil); err == nil {
		t.Error("expected error for nil request")
	}
}
