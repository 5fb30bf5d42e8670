package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/api"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/genai"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/llm"
	"github.com/cygon23/caeerhub-platform-sub002/storage/memory"
)

const roadmapCompletion = `{
	"personality_summary": "Focused and practical.",
	"roadmap": {
		"phases": [
			{"name": "Learn", "duration": "6 months", "focus": "basics", "milestones": ["course"]},
			{"name": "Practice", "duration": "1 year", "focus": "projects", "milestones": ["portfolio"]},
			{"name": "Work", "duration": "2 years", "focus": "career", "milestones": ["job"]}
		]
	}
}`

type stubCompleter struct {
	text string
	err  error
}

func (s *stubCompleter) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{
		Text:  s.text,
		Model: "test-model",
		Usage: llm.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

func newTestHandler(t *testing.T, completer llm.Completer) (*api.Handler, *entitlement.Service) {
	t.Helper()

	ents, err := entitlement.NewService(memory.New(), entitlement.Config{
		Costs: entitlement.Costs{
			"roadmap":            3,
			"career-suggestions": 2,
			"interview-feedback": 2,
			"practice-questions": 1,
			"academic-plan":      2,
		},
	})
	require.NoError(t, err)

	pipeline, err := genai.New(genai.Config{Entitlements: ents, Client: completer})
	require.NoError(t, err)

	handler, err := api.NewHandler(api.Config{
		Pipeline:     pipeline,
		Entitlements: ents,
		GetUserID:    api.FromHeader("X-User-ID"),
	})
	require.NoError(t, err)

	return handler, ents
}

func doRequest(handler *api.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	if body == "" {
		body = "{}"
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (api.Envelope, map[string]interface{}) {
	t.Helper()
	var envelope api.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	data := map[string]interface{}{}
	if envelope.Data != nil {
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &data))
	}
	return envelope, data
}

func seedUser(t *testing.T, ents *entitlement.Service, userID string, credits int) {
	t.Helper()
	err := ents.SetEntitlement(context.Background(), &entitlement.Entitlement{
		UserID:           userID,
		CreditsAvailable: credits,
	})
	require.NoError(t, err)
}

func TestGenerateRequiresUser(t *testing.T) {
	handler, _ := newTestHandler(t, &stubCompleter{text: roadmapCompletion})

	rec := doRequest(handler, http.MethodPost, "/generate/roadmap", "", `{"career_goal": "Nurse"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	envelope, _ := decodeEnvelope(t, rec)
	assert.False(t, envelope.Success)
	assert.Equal(t, "user not authenticated", envelope.Error)
}

func TestGenerateRejectsLongUserID(t *testing.T) {
	handler, _ := newTestHandler(t, &stubCompleter{text: roadmapCompletion})

	rec := doRequest(handler, http.MethodPost, "/generate/roadmap", strings.Repeat("x", 300), `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope, _ := decodeEnvelope(t, rec)
	assert.Equal(t, "invalid user ID format", envelope.Error)
}

func TestGenerateUnknownFeature(t *testing.T) {
	handler, _ := newTestHandler(t, &stubCompleter{text: roadmapCompletion})

	rec := doRequest(handler, http.MethodPost, "/generate/horoscope", "u1", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope, _ := decodeEnvelope(t, rec)
	assert.Contains(t, envelope.Error, "unknown feature")
}

func TestGenerateInvalidBody(t *testing.T) {
	handler, ents := newTestHandler(t, &stubCompleter{text: roadmapCompletion})
	seedUser(t, ents, "u1", 10)

	rec := doRequest(handler, http.MethodPost, "/generate/roadmap", "u1", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope, _ := decodeEnvelope(t, rec)
	assert.Contains(t, envelope.Error, "invalid request body")
}

func TestGenerateInsufficientCredits(t *testing.T) {
	handler, _ := newTestHandler(t, &stubCompleter{text: roadmapCompletion})

	rec := doRequest(handler, http.MethodPost, "/generate/roadmap", "broke-user", `{"career_goal": "Pilot"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	envelope, _ := decodeEnvelope(t, rec)
	assert.False(t, envelope.Success)
	assert.Contains(t, envelope.Error, "insufficient credits")
}

func TestGenerateSuccess(t *testing.T) {
	handler, ents := newTestHandler(t, &stubCompleter{text: roadmapCompletion})
	seedUser(t, ents, "u1", 10)

	rec := doRequest(handler, http.MethodPost, "/generate/roadmap", "u1",
		`{"career_goal": "Software Engineer", "education_level": "university"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	envelope, data := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, "roadmap", data["feature"])
	assert.Equal(t, "ai", data["source"])

	credits, ok := data["credits"].(map[string]interface{})
	require.True(t, ok, "missing credits block")
	assert.Equal(t, true, credits["debited"])
	assert.Equal(t, float64(7), credits["new_balance"])
	assert.NotEmpty(t, credits["transaction_id"])

	result, ok := data["result"].(map[string]interface{})
	require.True(t, ok, "missing result payload")
	assert.NotEmpty(t, result["personality_summary"])
}

func TestGenerateFallbackResponse(t *testing.T) {
	handler, ents := newTestHandler(t, &stubCompleter{
		err: &llm.ProviderError{StatusCode: 503, Message: "overloaded"},
	})
	seedUser(t, ents, "u1", 10)

	rec := doRequest(handler, http.MethodPost, "/generate/roadmap", "u1", `{"career_goal": "Nurse"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	envelope, data := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, "fallback", data["source"])

	credits := data["credits"].(map[string]interface{})
	assert.Equal(t, false, credits["debited"])

	balance, err := ents.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestGetCredits(t *testing.T) {
	handler, ents := newTestHandler(t, &stubCompleter{text: roadmapCompletion})
	seedUser(t, ents, "u1", 10)

	// One debit so the ledger is non-empty.
	rec := doRequest(handler, http.MethodPost, "/generate/roadmap", "u1", `{"career_goal": "Pilot"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/credits", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	envelope, data := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, "u1", data["user_id"])
	assert.Equal(t, float64(7), data["balance"])

	txns, ok := data["transactions"].([]interface{})
	require.True(t, ok, "missing transactions")
	require.Len(t, txns, 1)
	entry := txns[0].(map[string]interface{})
	assert.Equal(t, "roadmap", entry["feature"])
	assert.Equal(t, float64(-3), entry["delta"])
}

func TestGetCreditsUnknownUser(t *testing.T) {
	handler, _ := newTestHandler(t, &stubCompleter{text: roadmapCompletion})

	rec := doRequest(handler, http.MethodGet, "/credits", "stranger", "")
	require.Equal(t, http.StatusOK, rec.Code)

	envelope, data := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, float64(0), data["balance"])
}

func TestGetArtifact(t *testing.T) {
	handler, ents := newTestHandler(t, &stubCompleter{text: roadmapCompletion})
	seedUser(t, ents, "u1", 10)

	rec := doRequest(handler, http.MethodGet, "/artifacts/roadmap", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	envelope, _ := decodeEnvelope(t, rec)
	assert.Equal(t, "no artifact found", envelope.Error)

	rec = doRequest(handler, http.MethodPost, "/generate/roadmap", "u1", `{"career_goal": "Pilot"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/artifacts/roadmap", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	envelope, data := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, "roadmap", data["feature"])
	assert.Equal(t, "ai", data["source"])
	assert.NotNil(t, data["payload"])
}

func TestNewHandlerValidation(t *testing.T) {
	_, err := api.NewHandler(api.Config{})
	assert.Error(t, err)
}
