// Package api is the HTTP surface: JSON endpoints for tenants, projects,
// documents, and conversations, plus an SSE endpoint for streamed chat
// turns. Handlers depend on narrow consumer interfaces so every route is
// testable with in-memory fakes.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/docbase/docbase/internal/log"
)

// ServerConfig carries the dependencies for the API server. Store-backed
// fields accept interfaces satisfied by *store.Store, *ledger.Ledger,
// *vector.Store, *indexer.Indexer, and *chat.Engine.
type ServerConfig struct {
	Logger log.Logger

	Projects      ProjectStore
	Documents     DocumentStore
	Conversations ConversationStore

	Engine ChatEngine
	Ingest Ingestor

	ProjectQuotas ProjectQuotas
	ChatQuotas    ChatQuotas

	Vectors NamespacePurger
	Blobs   PrefixPurger // optional: nil disables blob cleanup
	DB      Pinger       // optional: nil disables the readiness DB ping
}

// Server is the JSON/SSE HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer builds the route table and middleware stack. ctx bounds
// background indexing jobs and is typically canceled on shutdown.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Logger == nil:
		return nil, errors.New("logger is required")
	case cfg.Projects == nil || cfg.Documents == nil || cfg.Conversations == nil:
		return nil, errors.New("store is required")
	case cfg.Engine == nil:
		return nil, errors.New("chat engine is required")
	case cfg.Ingest == nil:
		return nil, errors.New("indexer is required")
	case cfg.ProjectQuotas == nil || cfg.ChatQuotas == nil:
		return nil, errors.New("ledger is required")
	case cfg.Vectors == nil:
		return nil, errors.New("vector store is required")
	}

	ph := &projectHandler{
		store:   cfg.Projects,
		quotas:  cfg.ProjectQuotas,
		vectors: cfg.Vectors,
		blobs:   cfg.Blobs,
		logger:  cfg.Logger,
	}
	dh := &documentHandler{
		store:  cfg.Documents,
		ingest: cfg.Ingest,
		jobs:   ctx,
		logger: cfg.Logger,
	}
	ch := &chatHandler{
		engine:   cfg.Engine,
		convs:    cfg.Conversations,
		projects: cfg.Projects,
		quotas:   cfg.ChatQuotas,
		logger:   cfg.Logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/orgs", ph.createOrg)
	mux.HandleFunc("GET /api/v1/orgs/{id}", ph.getOrg)

	mux.HandleFunc("POST /api/v1/projects", ph.createProject)
	mux.HandleFunc("GET /api/v1/projects", ph.listProjects)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", ph.deleteProject)

	mux.HandleFunc("POST /api/v1/documents", dh.createDocument)
	mux.HandleFunc("GET /api/v1/documents", dh.listDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", dh.getDocument)
	mux.HandleFunc("POST /api/v1/documents/{id}/reindex", dh.reindexDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.deleteDocument)

	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("GET /api/v1/conversations", ch.listConversations)
	mux.HandleFunc("GET /api/v1/conversations/{id}", ch.getConversation)
	mux.HandleFunc("POST /api/v1/conversations/{id}/summarize", ch.summarizeConversation)
	mux.HandleFunc("POST /api/v1/messages/{id}/feedback", ch.setFeedback)

	// Middleware stack, outermost first: Recovery -> Logging -> Routes.
	var handler http.Handler = mux
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	// Health probes stay outside the middleware stack so probe traffic
	// never shows up in request logs.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(cfg.Logger))
	topMux.HandleFunc("GET /ready", readiness(cfg.DB, cfg.Logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
