package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbase/docbase/db"
	"github.com/docbase/docbase/internal/chat"
	"github.com/docbase/docbase/internal/config"
	"github.com/docbase/docbase/internal/indexer"
	"github.com/docbase/docbase/internal/ledger"
	"github.com/docbase/docbase/internal/loader"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/objstore"
	"github.com/docbase/docbase/internal/observability"
	"github.com/docbase/docbase/internal/security"
	"github.com/docbase/docbase/internal/splitter"
	"github.com/docbase/docbase/internal/store"
	"github.com/docbase/docbase/internal/vector"
)

// Setup builds the full application. The returned App owns every resource;
// call Close to release them. On a setup error everything already built is
// torn down before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing registers with Genkit's TracerProvider, so it goes first.
	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: "docbase",
		}, logger)
		if err != nil {
			return nil, err
		}
		a.otelShutdown = shutdown
	}

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey}))
	if a.Genkit == nil {
		return nil, errors.New("initializing genkit")
	}
	a.Embedder = googlegenai.GoogleAIEmbedder(a.Genkit, cfg.EmbedderModel)
	if a.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	a.Store, err = store.New(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Vectors, err = vector.New(vector.NewPGQuerier(pool), a.Embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Ledger, err = ledger.New(a.Store, logger)
	if err != nil {
		return nil, err
	}

	var fetcher loader.ObjectFetcher = disabledFetcher{}
	var blobs indexer.Blobs
	if cfg.ObjectStore.Endpoint != "" {
		a.Blobs, err = objstore.New(ctx, objstore.Config{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Bucket:    cfg.ObjectStore.Bucket,
			UseSSL:    cfg.ObjectStore.UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		fetcher = a.Blobs
		blobs = a.Blobs
	}

	validator := security.NewHTTP()
	if cfg.AllowLoopback {
		validator = security.NewHTTPAllowLoopback()
	}
	factory, err := loader.NewFactory(validator, fetcher, cfg.CrawlConcurrency, logger)
	if err != nil {
		return nil, err
	}
	split, err := splitter.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	webhook := indexer.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, logger)

	a.Indexer, err = indexer.New(a.Store, a.Vectors, a.Ledger, factory, split, blobs, webhook, logger)
	if err != nil {
		return nil, err
	}

	counter, err := chat.NewTokenizer()
	if err != nil {
		return nil, err
	}
	a.Engine, err = chat.New(chat.Config{
		Genkit:    a.Genkit,
		ModelName: cfg.ModelName,
		Searcher:  a.Vectors,
		Credits:   a.Ledger,
		Projects:  a.Store,
		Counter:   counter,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	_, a.cancel = context.WithCancel(ctx)
	return a, nil
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// disabledFetcher stands in when no object store is configured. FILES
// documents then fail at fetch time with a clear error instead of a nil
// dereference.
type disabledFetcher struct{}

func (disabledFetcher) Fetch(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("object storage is not configured")
}
