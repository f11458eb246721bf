package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"

	"github.com/woodpecker023/woo-ai-chatbot/api"
	"github.com/woodpecker023/woo-ai-chatbot/db"
	"github.com/woodpecker023/woo-ai-chatbot/internal/chat"
	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
	"github.com/woodpecker023/woo-ai-chatbot/internal/database"
	"github.com/woodpecker023/woo-ai-chatbot/internal/intent"
	"github.com/woodpecker023/woo-ai-chatbot/internal/knowledge"
	"github.com/woodpecker023/woo-ai-chatbot/internal/llm"
	"github.com/woodpecker023/woo-ai-chatbot/internal/observability"
	"github.com/woodpecker023/woo-ai-chatbot/internal/session"
	"github.com/woodpecker023/woo-ai-chatbot/internal/tenant"
	"github.com/woodpecker023/woo-ai-chatbot/internal/usage"
)

// Provider-call rate limits. Applied client-side so a burst of concurrent
// turns queues instead of tripping provider quotas.
const (
	providerRequestsPerSecond = 8
	providerBurst             = 16
)

// Setup builds the full service. The returned App owns its resources; call
// Close to release them.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	// Tracing must be registered before genkit.Init so generation spans
	// land on an exporting provider.
	otelShutdown, err := observability.Setup(ctx, cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.cleanups = append(a.cleanups, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	})

	if err := db.Migrate(cfg.Postgres.DSN()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.DBPool = pool
	a.cleanups = append(a.cleanups, pool.Close)

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai provider")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	limiter := rate.NewLimiter(rate.Limit(providerRequestsPerSecond), providerBurst)
	completer, err := llm.NewClient(g, limiter, time.Duration(cfg.ProviderTimeoutSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	classifier, err := intent.NewClassifier(completer, cfg.ClassifierModel, logger)
	if err != nil {
		return nil, fmt.Errorf("creating classifier: %w", err)
	}

	retriever, err := knowledge.NewRetriever(pool, embedder, cfg.Retrieval, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	dispatcher, err := chat.NewDispatcher(retriever, logger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	engine, err := chat.NewEngine(
		completer,
		classifier,
		session.NewStore(pool, logger),
		usage.NewGate(pool),
		dispatcher,
		knowledge.NewDemandRecorder(pool),
		chat.DefineTools(g),
		cfg,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.Engine = engine

	server, err := api.NewServer(api.ServerConfig{
		Logger: logger,
		Engine: engine,
		Stores: tenant.NewRepo(pool),
		DB:     pool,
	})
	if err != nil {
		return nil, fmt.Errorf("creating http server: %w", err)
	}
	a.Server = server

	return a, nil
}
