// Package app wires the application together: configuration, database,
// Genkit, and every docbase component, in dependency order. The cmd
// package builds an App and hands its parts to the HTTP server.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbase/docbase/internal/chat"
	"github.com/docbase/docbase/internal/config"
	"github.com/docbase/docbase/internal/indexer"
	"github.com/docbase/docbase/internal/ledger"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/objstore"
	"github.com/docbase/docbase/internal/store"
	"github.com/docbase/docbase/internal/vector"
)

// App is the application container. Fields are populated by Setup in
// dependency order and torn down in reverse by Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Pool    *pgxpool.Pool
	Store   *store.Store
	Vectors *vector.Store
	Blobs   *objstore.Store // nil when object storage is not configured
	Ledger  *ledger.Ledger
	Indexer *indexer.Indexer
	Engine  *chat.Engine

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// Close releases all resources. Safe to call on a partially built App.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}
	return nil
}
