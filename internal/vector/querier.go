package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// InsertChunkParams holds one chunk row.
type InsertChunkParams struct {
	ID         string
	Namespace  string
	DocumentID string
	Content    string
	Embedding  *pgvector.Vector
	Metadata   []byte
}

// SearchChunksParams holds a namespace-scoped similarity search.
type SearchChunksParams struct {
	Namespace      string
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
}

// SearchChunksRow is one similarity search hit. Distance is cosine
// distance, smaller is closer.
type SearchChunksRow struct {
	ID       string
	Content  string
	Metadata []byte
	Distance float64
}

// Querier defines the database operations the vector store needs. Defined
// by the consumer so tests can substitute an in-memory implementation.
type Querier interface {
	// InsertChunks inserts chunk rows in one round trip.
	InsertChunks(ctx context.Context, args []InsertChunkParams) error

	// SearchChunks performs namespace-scoped vector search.
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error)

	// DeleteDocumentChunks removes every chunk of one document within a
	// namespace, returning the number of rows removed.
	DeleteDocumentChunks(ctx context.Context, namespace, documentID string) (int64, error)

	// DeleteNamespace removes every chunk in a namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// PGQuerier implements Querier against PostgreSQL with pgvector.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a Querier over the given pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

const insertChunk = `
INSERT INTO chunks (id, namespace, document_id, content, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (q *PGQuerier) InsertChunks(ctx context.Context, args []InsertChunkParams) error {
	batch := &pgx.Batch{}
	for _, arg := range args {
		batch.Queue(insertChunk, arg.ID, arg.Namespace, arg.DocumentID, arg.Content, arg.Embedding, arg.Metadata)
	}
	results := q.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range args {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}
	return nil
}

const searchChunks = `
SELECT id, content, metadata, embedding <=> $2 AS distance
FROM chunks
WHERE namespace = $1
ORDER BY embedding <=> $2
LIMIT $3
`

func (q *PGQuerier) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	rows, err := q.pool.Query(ctx, searchChunks, arg.Namespace, arg.QueryEmbedding, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var out []SearchChunksRow
	for rows.Next() {
		var row SearchChunksRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const deleteDocumentChunks = `
DELETE FROM chunks WHERE namespace = $1 AND document_id = $2
`

func (q *PGQuerier) DeleteDocumentChunks(ctx context.Context, namespace, documentID string) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteDocumentChunks, namespace, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting document chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteNamespace = `
DELETE FROM chunks WHERE namespace = $1
`

func (q *PGQuerier) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := q.pool.Exec(ctx, deleteNamespace, namespace); err != nil {
		return fmt.Errorf("deleting namespace chunks: %w", err)
	}
	return nil
}
