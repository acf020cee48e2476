package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateDocument inserts a new document in PENDING state.
func (s *Store) CreateDocument(ctx context.Context, projectID, docType, source string, details []byte) (*Document, error) {
	d := &Document{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      docType,
		Source:    source,
		Details:   details,
		Status:    StatusPending,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, project_id, type, source, details, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		d.ID, projectID, docType, source, details, StatusPending,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	return d, nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, type, source, details, status, size_bytes, created_at, updated_at
		FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.ProjectID, &d.Type, &d.Source, &d.Details, &d.Status,
		&d.SizeBytes, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return d, nil
}

// ListDocuments returns a project's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, type, source, details, status, size_bytes, created_at, updated_at
		FROM documents WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Type, &d.Source, &d.Details,
			&d.Status, &d.SizeBytes, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDocumentStatus records a status transition.
func (s *Store) SetDocumentStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("setting document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return nil
}

// SetDocumentSize records the document's extracted byte size.
func (s *Store) SetDocumentSize(ctx context.Context, id string, sizeBytes int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET size_bytes = $2, updated_at = now() WHERE id = $1`, id, sizeBytes)
	if err != nil {
		return fmt.Errorf("setting document size: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes the row. Vector and blob cleanup belong to the
// caller, which knows the namespace and object keys.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return nil
}
