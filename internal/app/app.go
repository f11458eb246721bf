// Package app owns construction and teardown of the service: database,
// model provider, retrieval, orchestration, and the HTTP surface.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woodpecker023/woo-ai-chatbot/api"
	"github.com/woodpecker023/woo-ai-chatbot/internal/chat"
	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
)

// App holds the wired service. Construct with Setup; release with Close.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DBPool *pgxpool.Pool
	Genkit *genkit.Genkit
	Engine *chat.Engine
	Server *api.Server

	// cleanups run in reverse registration order on Close.
	cleanups []func()
}

// Close releases everything Setup initialized. Safe to call on a partially
// constructed App after a Setup failure.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
