// Package api exposes the generation pipeline and credit ledger over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/genai"
)

const maxUserIDLen = 255

// Handler provides the generation and credit inspection endpoints.
type Handler struct {
	config Config
}

// Routes mounts the API endpoints on a chi router:
//
//	POST /generate/{feature}
//	GET  /credits
//	GET  /artifacts/{feature}
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate/{feature}", h.Generate)
	r.Get("/credits", h.GetCredits)
	r.Get("/artifacts/{feature}", h.GetArtifact)
	return r
}

// Generate runs the full pipeline for one feature request.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	feature := genai.FeatureKey(chi.URLParam(r, "feature"))
	if !feature.Valid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown feature: %s", feature))
		return
	}

	req, err := decodeRequest(r, userID, feature)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.config.Pipeline.Generate(r.Context(), req)
	if err != nil {
		h.writeGenerateError(w, feature, err)
		return
	}

	resp := GenerateResponse{
		Feature: string(feature),
		Source:  string(outcome.Result.Source),
		Result:  resultPayload(outcome.Result),
		Credits: CreditState{
			Debited:       outcome.Debited,
			NewBalance:    outcome.NewBalance,
			TransactionID: outcome.TransactionID,
		},
	}
	if outcome.PromptTokens > 0 || outcome.CompletionTokens > 0 {
		resp.Usage = &TokenUsage{
			PromptTokens:     outcome.PromptTokens,
			CompletionTokens: outcome.CompletionTokens,
		}
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: resp})
}

// GetCredits returns the user's balance and recent ledger entries.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	resp := CreditsResponse{UserID: userID}

	ent, err := h.config.Entitlements.GetEntitlement(r.Context(), userID)
	switch {
	case err == nil:
		resp.Balance = ent.CreditsAvailable
		resp.PlanTier = ent.PlanTier
		resp.UsageCounts = ent.UsageCounts
	case errors.Is(err, entitlement.ErrEntitlementNotFound):
		// No record yet; report a zero balance.
	default:
		h.config.Logger.Error("failed to get entitlement",
			genai.Field{Key: "userId", Value: userID},
			genai.Field{Key: "error", Value: err.Error()},
		)
		h.writeError(w, http.StatusInternalServerError, "failed to load credit balance")
		return
	}

	txns, err := h.config.Entitlements.GetTransactions(r.Context(), userID, h.config.TransactionLimit)
	if err != nil {
		h.config.Logger.Error("failed to get transactions",
			genai.Field{Key: "userId", Value: userID},
			genai.Field{Key: "error", Value: err.Error()},
		)
		h.writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	for _, txn := range txns {
		resp.Transactions = append(resp.Transactions, TransactionEntry{
			ID:          txn.ID,
			Feature:     txn.Feature,
			Delta:       txn.Delta,
			ReferenceID: txn.ReferenceID,
			CreatedAt:   txn.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: resp})
}

// GetArtifact returns the latest stored artifact for a feature.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	feature := genai.FeatureKey(chi.URLParam(r, "feature"))
	if !feature.Valid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown feature: %s", feature))
		return
	}

	artifact, err := h.config.Entitlements.GetArtifact(r.Context(), userID, string(feature))
	if errors.Is(err, entitlement.ErrArtifactNotFound) {
		h.writeError(w, http.StatusNotFound, "no artifact found")
		return
	}
	if err != nil {
		h.config.Logger.Error("failed to get artifact",
			genai.Field{Key: "userId", Value: userID},
			genai.Field{Key: "feature", Value: string(feature)},
			genai.Field{Key: "error", Value: err.Error()},
		)
		h.writeError(w, http.StatusInternalServerError, "failed to load artifact")
		return
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: ArtifactResponse{
		Feature:   artifact.Feature,
		Source:    artifact.Source,
		Payload:   artifact.Payload,
		CreatedAt: artifact.CreatedAt,
	}})
}

// decodeRequest binds the request body to the feature's input type.
func decodeRequest(r *http.Request, userID string, feature genai.FeatureKey) (*genai.Request, error) {
	req := &genai.Request{UserID: userID, Feature: feature}

	dec := json.NewDecoder(r.Body)
	var err error
	switch feature {
	case genai.FeatureRoadmap:
		req.Roadmap = &genai.RoadmapInput{}
		err = dec.Decode(req.Roadmap)
	case genai.FeatureCareerSuggestions:
		req.Suggestions = &genai.CareerSuggestionsInput{}
		err = dec.Decode(req.Suggestions)
	case genai.FeatureInterviewFeedback:
		req.Interview = &genai.InterviewFeedbackInput{}
		err = dec.Decode(req.Interview)
	case genai.FeaturePracticeQuestions:
		req.Practice = &genai.PracticeQuestionsInput{}
		err = dec.Decode(req.Practice)
	case genai.FeatureAcademicPlan:
		req.Academic = &genai.AcademicPlanInput{}
		err = dec.Decode(req.Academic)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid request body: %v", err)
	}
	return req, nil
}

// resultPayload unwraps the typed payload from the tagged union so the
// response body carries the feature's shape directly.
func resultPayload(result *genai.Result) interface{} {
	switch {
	case result.Roadmap != nil:
		return result.Roadmap
	case result.Suggestions != nil:
		return result.Suggestions
	case result.Interview != nil:
		return result.Interview
	case result.Practice != nil:
		return result.Practice
	case result.Academic != nil:
		return result.Academic
	}
	return nil
}

func (h *Handler) writeGenerateError(w http.ResponseWriter, feature genai.FeatureKey, err error) {
	var insufficient *genai.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		h.writeError(w, http.StatusTooManyRequests, insufficient.Reason)
		return
	}
	if errors.Is(err, genai.ErrMissingInput) || errors.Is(err, genai.ErrUnknownFeature) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.config.Logger.Error("generation failed",
		genai.Field{Key: "feature", Value: string(feature)},
		genai.Field{Key: "error", Value: err.Error()},
	)
	h.writeError(w, http.StatusInternalServerError, "generation failed")
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := h.config.GetUserID(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "user not authenticated")
		return "", false
	}
	if len(userID) > maxUserIDLen {
		h.writeError(w, http.StatusBadRequest, "invalid user ID format")
		return "", false
	}
	return userID, true
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, Envelope{Success: false, Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Response already committed; nothing left to do.
		_ = err
	}
}
