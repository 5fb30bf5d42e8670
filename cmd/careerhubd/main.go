// Command careerhubd serves the AI generation pipeline, credit ledger and
// billing webhook over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/api"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/billing"
	stripebilling "github.com/cygon23/caeerhub-platform-sub002/pkg/billing/stripe"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/genai"
	zerologadapter "github.com/cygon23/caeerhub-platform-sub002/pkg/genai/logger/zerolog"
	prommetrics "github.com/cygon23/caeerhub-platform-sub002/pkg/genai/metrics/prometheus"
	"github.com/cygon23/caeerhub-platform-sub002/pkg/llm"
	"github.com/cygon23/caeerhub-platform-sub002/storage/memory"
	"github.com/cygon23/caeerhub-platform-sub002/storage/postgres"
	redisstore "github.com/cygon23/caeerhub-platform-sub002/storage/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := newLogger()

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := newStore(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ents, err := entitlement.NewService(store, entitlement.Config{
		Costs: entitlement.Costs{
			string(genai.FeatureRoadmap):           3,
			string(genai.FeatureCareerSuggestions): 2,
			string(genai.FeatureInterviewFeedback): 2,
			string(genai.FeaturePracticeQuestions): 1,
			string(genai.FeatureAcademicPlan):      2,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create entitlement service: %w", err)
	}

	client, err := llm.NewClient(llm.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
	})
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	breaker := llm.NewBreaker(client, llm.BreakerConfig{
		OnStateChange: func(state llm.BreakerState) {
			logger.Warn().Str("state", string(state)).Msg("llm breaker state changed")
		},
	})

	pipeline, err := genai.New(genai.Config{
		Entitlements: ents,
		Client:       breaker,
		Logger:       zerologadapter.NewLogger(logger),
		Metrics:      prommetrics.DefaultMetrics("careerhub"),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	handler, err := api.NewHandler(api.Config{
		Pipeline:     pipeline,
		Entitlements: ents,
		GetUserID:    api.FromHeader("X-User-ID"),
		Logger:       zerologadapter.NewLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create api handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(2 * time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/v1", handler.Routes())

	if provider, err := newBillingProvider(ents, logger); err != nil {
		return err
	} else if provider != nil {
		r.Handle("/webhooks/stripe", provider.WebhookHandler())
		logger.Info().Str("provider", provider.Name()).Msg("billing webhook mounted")
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}

	return nil
}

// newStore selects the storage backend from STORAGE (memory, postgres,
// redis; default memory).
func newStore(ctx context.Context, logger zerolog.Logger) (entitlement.Store, func(), error) {
	backend := strings.ToLower(os.Getenv("STORAGE"))

	switch backend {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			ConnectionString: os.Getenv("DATABASE_URL"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		logger.Info().Str("storage", "postgres").Msg("storage ready")
		return store, store.Close, nil

	case "redis":
		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			addr = "localhost:6379"
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		store, err := redisstore.New(client, redisstore.DefaultConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("redis unreachable: %w", err)
		}
		logger.Info().Str("storage", "redis").Str("addr", addr).Msg("storage ready")
		return store, func() { _ = store.Close() }, nil

	case "", "memory":
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORAGE backend: %s", backend)
	}
}

// newBillingProvider builds the Stripe provider when keys are configured.
// Returns nil when billing is disabled.
func newBillingProvider(ents *entitlement.Service, logger zerolog.Logger) (billing.Provider, error) {
	apiKey := os.Getenv("STRIPE_API_KEY")
	if apiKey == "" {
		logger.Info().Msg("STRIPE_API_KEY not set; billing disabled")
		return nil, nil
	}

	provider, err := stripebilling.NewProvider(stripebilling.Config{
		Config: billing.Config{
			Entitlements: ents,
			Packs: map[string]billing.CreditPack{
				"starter": {DisplayName: "Starter Pack (20 credits)", Credits: 20, AmountCents: 500, Currency: "usd"},
				"plus":    {DisplayName: "Plus Pack (60 credits)", Credits: 60, AmountCents: 1200, Currency: "usd"},
				"pro":     {DisplayName: "Pro Pack (150 credits)", Credits: 150, AmountCents: 2500, Currency: "usd"},
			},
			OnGrant: func(event *billing.GrantEvent) {
				logger.Info().
					Str("userId", event.UserID).
					Str("pack", event.Pack).
					Int("credits", event.Credits).
					Int("newBalance", event.NewBalance).
					Msg("credits purchased")
			},
		},
		StripeAPIKey:        apiKey,
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe provider: %w", err)
	}
	return provider, nil
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}

	var logger zerolog.Logger
	if os.Getenv("LOG_FORMAT") == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
