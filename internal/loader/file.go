package loader

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/docbase/docbase/internal/log"
)

// ObjectFetcher reads uploaded file content from object storage. Satisfied
// by objstore.Store; defined here so tests can stub storage without minio.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

// FileLoader reads pre-extracted text for uploaded files from object
// storage, one document per key.
type FileLoader struct {
	fetcher ObjectFetcher
	details *FileDetails
	logger  log.Logger
}

// NewFileLoader creates a loader over uploaded file objects.
func NewFileLoader(fetcher ObjectFetcher, details *FileDetails, logger log.Logger) (*FileLoader, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("object fetcher is required")
	}
	if details == nil || len(details.Keys) == 0 {
		return nil, fmt.Errorf("%w: no object keys", ErrBadDetails)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &FileLoader{fetcher: fetcher, details: details, logger: logger}, nil
}

// Load fetches every object sequentially. A missing or unreadable object
// fails the whole load: partial ingestion would silently index an
// incomplete document set.
func (l *FileLoader) Load(ctx context.Context) (*Result, error) {
	docs := make([]Document, 0, len(l.details.Keys))
	for _, key := range l.details.Keys {
		content, err := l.fetchOne(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("fetching object %q: %w", key, err)
		}
		docs = append(docs, Document{
			PageContent: content,
			Metadata: Metadata{
				Source: key,
				Title:  path.Base(key),
				Size:   int64(len(content)),
				Type:   TypeFiles,
			},
		})
	}
	l.logger.Debug("files loaded", "count", len(docs))
	return &Result{Documents: docs}, nil
}

func (l *FileLoader) fetchOne(ctx context.Context, key string) (string, error) {
	rc, err := l.fetcher.Fetch(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading object: %w", err)
	}
	return string(data), nil
}
