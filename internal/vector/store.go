// Package vector stores and searches embedded document chunks in
// PostgreSQL with pgvector. Every operation is scoped to a namespace (one
// per project), so tenants never see each other's chunks.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docbase/docbase/internal/loader"
	"github.com/docbase/docbase/internal/log"
)

const (
	// DefaultTopK is the default similarity search result count.
	DefaultTopK = 4

	// embedBatchSize bounds how many chunks go into one embedding request.
	embedBatchSize = 32

	// searchTimeout caps vector search queries so a slow index cannot
	// stall a chat turn.
	searchTimeout = 10 * time.Second
)

// Result is one similarity search hit with its decoded chunk metadata.
type Result struct {
	Content  string
	Metadata loader.Metadata
	Distance float64
}

// Store manages embedded chunks. It owns embedding generation on both the
// write path (Upsert) and the read path (Search).
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a vector store over the given querier and embedder.
func New(queries Querier, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if queries == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{queries: queries, embedder: embedder, logger: logger}, nil
}

// Upsert embeds the chunks and inserts them under the namespace. Chunks of
// a re-indexed document must be deleted first via DeleteDocument; Upsert
// itself only appends.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []loader.Document) error {
	if len(chunks) == 0 {
		return nil
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		embeddings, err := s.embed(ctx, batch)
		if err != nil {
			return err
		}

		args := make([]InsertChunkParams, len(batch))
		for i, chunk := range batch {
			metadataJSON, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling chunk metadata: %w", err)
			}
			vec := pgvector.NewVector(embeddings[i])
			args[i] = InsertChunkParams{
				ID:         uuid.NewString(),
				Namespace:  namespace,
				DocumentID: chunk.Metadata.DocumentID,
				Content:    chunk.PageContent,
				Embedding:  &vec,
				Metadata:   metadataJSON,
			}
		}
		if err := s.queries.InsertChunks(ctx, args); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
	}

	s.logger.Debug("chunks upserted", "namespace", namespace, "count", len(chunks))
	return nil
}

// Search embeds the query and returns the topK closest chunks in the
// namespace. topK values below 1 fall back to DefaultTopK.
func (s *Store) Search(ctx context.Context, namespace, query string, topK int) ([]Result, error) {
	if topK < 1 {
		topK = DefaultTopK
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embeddings, err := s.embed(queryCtx, []loader.Document{{PageContent: query}})
	if err != nil {
		return nil, err
	}
	queryEmbedding := pgvector.NewVector(embeddings[0])

	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		Namespace:      namespace,
		QueryEmbedding: &queryEmbedding,
		ResultLimit:    int32(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var md loader.Metadata
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &md); err != nil {
				return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
			}
		}
		results = append(results, Result{
			Content:  row.Content,
			Metadata: md,
			Distance: row.Distance,
		})
	}
	return results, nil
}

// DeleteDocument removes every chunk of one document in the namespace and
// reports how many were removed. Called before re-indexing and on document
// deletion; zero rows is fine for documents that never finished indexing.
func (s *Store) DeleteDocument(ctx context.Context, namespace, documentID string) (int64, error) {
	removed, err := s.queries.DeleteDocumentChunks(ctx, namespace, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting document vectors: %w", err)
	}
	s.logger.Debug("document vectors deleted", "namespace", namespace, "document_id", documentID, "removed", removed)
	return removed, nil
}

// DeleteNamespace removes every chunk in the namespace. Called when a
// project is deleted.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := s.queries.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("deleting namespace vectors: %w", err)
	}
	return nil
}

// embed generates one embedding per document in order.
func (s *Store) embed(ctx context.Context, docs []loader.Document) ([][]float32, error) {
	input := make([]*ai.Document, len(docs))
	for i, doc := range docs {
		input[i] = ai.DocumentFromText(doc.PageContent, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d inputs", len(resp.Embeddings), len(docs))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		out[i] = emb.Embedding
	}
	return out, nil
}
