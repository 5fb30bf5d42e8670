package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/llm"
)

// Config holds pipeline configuration.
type Config struct {
	// Entitlements is the credit gate and ledger (required).
	Entitlements *entitlement.Service

	// Client issues completion calls (required).
	Client llm.Completer

	// Options overrides sampling parameters per feature
	// (default: DefaultOptions).
	Options map[FeatureKey]GenerateOptions

	// Logger is used for structured logging (default: NoopLogger).
	Logger Logger

	// Metrics tracks pipeline operations (default: NoopMetrics).
	Metrics Metrics
}

// Pipeline orchestrates one generation request at a time:
// gate -> prompt -> provider -> validate -> commit, with the deterministic
// fallback substituted on provider or validation failure (no debit).
type Pipeline struct {
	ents    *entitlement.Service
	client  llm.Completer
	options map[FeatureKey]GenerateOptions
	logger  Logger
	metrics Metrics

	// group collapses concurrent identical requests (same user, feature
	// and input) into a single provider call and a single debit.
	group singleflight.Group
}

// DefaultOptions returns the sampling parameters used per feature when none
// are configured. Scoring features run colder than creative ones.
func DefaultOptions() map[FeatureKey]GenerateOptions {
	return map[FeatureKey]GenerateOptions{
		FeatureRoadmap:           {Temperature: 0.7, MaxTokens: 2048},
		FeatureCareerSuggestions: {Temperature: 0.7, MaxTokens: 1536},
		FeatureInterviewFeedback: {Temperature: 0.3, MaxTokens: 1024},
		FeaturePracticeQuestions: {Temperature: 0.5, MaxTokens: 1536},
		FeatureAcademicPlan:      {Temperature: 0.5, MaxTokens: 1536},
	}
}

// New creates a new generation pipeline.
func New(config Config) (*Pipeline, error) {
	if config.Entitlements == nil {
		return nil, fmt.Errorf("entitlement service is required")
	}
	if config.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if config.Options == nil {
		config.Options = DefaultOptions()
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Pipeline{
		ents:    config.Entitlements,
		client:  config.Client,
		options: config.Options,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Generate runs the full pipeline for one request. Terminal failures are
// *InsufficientCreditsError (gate or commit-time rejection) and
// *PersistenceError (valid result, failed commit; ledger unmodified).
// Provider and validation failures do not fail the call: the fallback
// result is returned with Source set to SourceFallback and no debit.
func (p *Pipeline) Generate(ctx context.Context, req *Request) (*Outcome, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if !req.Feature.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, req.Feature)
	}

	// Building the prompt first also validates input presence, and the
	// prompt hash keys request deduplication below.
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	// Pre-flight gate: fail fast before any external spend. This check is
	// an optimistic hint; the commit re-checks atomically.
	check, err := p.ents.CanUseFeature(ctx, req.UserID, string(req.Feature))
	if err != nil {
		return nil, fmt.Errorf("entitlement check failed: %w", err)
	}
	if !check.CanUse {
		p.logger.Info("generation rejected by entitlement gate",
			Field{Key: "userId", Value: req.UserID},
			Field{Key: "feature", Value: string(req.Feature)},
			Field{Key: "reason", Value: check.Reason},
		)
		return nil, &InsufficientCreditsError{
			Feature:   req.Feature,
			Required:  check.CreditsRequired,
			Available: check.CreditsAvailable,
			Reason:    check.Reason,
		}
	}

	key := req.UserID + ":" + string(req.Feature) + ":" + promptHash(prompt)
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		return p.run(ctx, req, prompt)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

// run executes the provider call, validation and commit for one deduplicated
// request.
func (p *Pipeline) run(ctx context.Context, req *Request, prompt string) (*Outcome, error) {
	start := time.Now()
	opts := p.options[req.Feature]

	completion, err := p.client.Complete(ctx, &llm.CompletionRequest{
		Prompt:       prompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
		JSONResponse: true,
	})
	if err != nil {
		p.logger.Warn("provider call failed, using fallback",
			Field{Key: "userId", Value: req.UserID},
			Field{Key: "feature", Value: string(req.Feature)},
			Field{Key: "error", Value: err.Error()},
		)
		return p.fallback(ctx, req, "provider_error", err, start)
	}

	result, err := ParseAndValidate(req.Feature, completion.Text)
	if err != nil {
		trigger := "malformed_response"
		var incomplete *IncompleteResponseError
		if errors.As(err, &incomplete) {
			trigger = "incomplete_response"
		}
		p.logger.Warn("model response failed validation, using fallback",
			Field{Key: "userId", Value: req.UserID},
			Field{Key: "feature", Value: string(req.Feature)},
			Field{Key: "trigger", Value: trigger},
			Field{Key: "error", Value: err.Error()},
		)
		return p.fallback(ctx, req, trigger, err, start)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, &PersistenceError{Cause: err}
	}

	// Commit: conditional debit, ledger append and artifact persistence in
	// one storage transaction. A concurrent request may have drained the
	// balance since the pre-flight check; that surfaces here as a
	// rejection, never a double debit.
	deduction, err := p.ents.Deduct(ctx, &entitlement.DeductRequest{
		UserID:  req.UserID,
		Feature: string(req.Feature),
		Metadata: map[string]string{
			"model":             completion.Model,
			"prompt_tokens":     strconv.Itoa(completion.Usage.PromptTokens),
			"completion_tokens": strconv.Itoa(completion.Usage.CompletionTokens),
		},
		Artifact: &entitlement.Artifact{
			UserID:  req.UserID,
			Feature: string(req.Feature),
			Source:  string(SourceAI),
			Payload: payload,
		},
	})
	if err != nil {
		p.metrics.RecordDebit(string(req.Feature), 0, false)
		p.metrics.RecordGeneration(string(req.Feature), string(SourceAI), time.Since(start), err)
		if errors.Is(err, entitlement.ErrInsufficientCredits) ||
			errors.Is(err, entitlement.ErrUsageLimitExceeded) ||
			errors.Is(err, entitlement.ErrEntitlementNotFound) {
			return nil, &InsufficientCreditsError{
				Feature: req.Feature,
				Reason:  fmt.Sprintf("rejected at commit time: %v", err),
			}
		}
		return nil, &PersistenceError{Cause: err}
	}

	cost, _ := p.ents.Cost(string(req.Feature))
	p.metrics.RecordDebit(string(req.Feature), cost, true)
	p.metrics.RecordTokens(string(req.Feature), completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	p.metrics.RecordGeneration(string(req.Feature), string(SourceAI), time.Since(start), nil)

	p.logger.Info("generation committed",
		Field{Key: "userId", Value: req.UserID},
		Field{Key: "feature", Value: string(req.Feature)},
		Field{Key: "transactionId", Value: deduction.TransactionID},
		Field{Key: "newBalance", Value: deduction.NewBalance},
	)

	return &Outcome{
		Result:           result,
		Debited:          true,
		NewBalance:       deduction.NewBalance,
		TransactionID:    deduction.TransactionID,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}

// fallback substitutes the deterministic offline result. The artifact is
// persisted with its fallback flag so UI layers can disclose it, but a
// persistence failure here is not fatal: the caller still gets a result,
// and no credits were spent. cause is the provider or validation error that
// triggered the substitution.
func (p *Pipeline) fallback(ctx context.Context, req *Request, trigger string, cause error, start time.Time) (*Outcome, error) {
	result, err := GenerateFallback(req)
	if err != nil {
		return nil, err
	}

	p.metrics.RecordFallback(string(req.Feature), trigger)
	p.metrics.RecordGeneration(string(req.Feature), string(SourceFallback), time.Since(start), cause)

	if payload, marshalErr := json.Marshal(result); marshalErr == nil {
		saveErr := p.ents.SaveArtifact(ctx, &entitlement.Artifact{
			UserID:  req.UserID,
			Feature: string(req.Feature),
			Source:  string(SourceFallback),
			Payload: payload,
		})
		if saveErr != nil {
			p.logger.Warn("failed to persist fallback artifact",
				Field{Key: "userId", Value: req.UserID},
				Field{Key: "feature", Value: string(req.Feature)},
				Field{Key: "error", Value: saveErr.Error()},
			)
		}
	}

	return &Outcome{
		Result:     result,
		Debited:    false,
		NewBalance: -1,
	}, nil
}

func promptHash(prompt string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	return strconv.FormatUint(h.Sum64(), 16)
}
