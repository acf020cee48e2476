// Package testutil provides shared test infrastructure: deterministic
// model and embedder mocks, a throwaway PostgreSQL container, and small
// helpers, following the pattern of net/http/httptest.
package testutil

import (
	"context"
	"log/slog"
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

// DiscardLogger returns a slog.Logger that discards all output. log.Logger
// is a type alias for *slog.Logger, so this is interchangeable with
// log.NewNop().
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewGenkit initializes a plugin-free Genkit instance for registering mock
// models and embedders.
func NewGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()
	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("genkit.Init returned nil")
	}
	return g
}
