// Package indexer orchestrates document ingestion: load, split, embed,
// store, and the status bookkeeping around it.
//
// An indexing run is atomic per document. A run that fails after a partial
// vector upsert purges the document's vectors before flipping the status,
// so a document is either fully indexed or not indexed at all.
package indexer

import (
	"context"
	"fmt"

	"github.com/docbase/docbase/internal/loader"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/store"
)

// Documents is the slice of the relational store the indexer needs.
// Satisfied by *store.Store.
type Documents interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	GetProject(ctx context.Context, id string) (*store.Project, error)
	SetDocumentStatus(ctx context.Context, id, status string) error
	SetDocumentSize(ctx context.Context, id string, sizeBytes int64) error
	DeleteDocument(ctx context.Context, id string) error
}

// Vectors is the vector store surface the indexer needs. Satisfied by
// *vector.Store.
type Vectors interface {
	Upsert(ctx context.Context, namespace string, chunks []loader.Document) error
	DeleteDocument(ctx context.Context, namespace, documentID string) (int64, error)
}

// Quotas is the ledger surface the indexer needs. Satisfied by
// *ledger.Ledger.
type Quotas interface {
	GateDocumentBytes(ctx context.Context, orgID string, addBytes int64) (bool, error)
	CommitDocumentBytes(ctx context.Context, orgID, projectID string, delta int64) error
	MaxCrawlPages(ctx context.Context, orgID string) (int, error)
}

// Blobs deletes uploaded file objects. Satisfied by *objstore.Store.
type Blobs interface {
	Delete(ctx context.Context, key string) error
}

// Loaders builds a loader for a document. Satisfied by *loader.Factory.
type Loaders interface {
	ForRequest(req loader.Request) (loader.Loader, error)
}

// Splitter chunks loaded documents. Satisfied by *splitter.Splitter.
type Splitter interface {
	SplitDocuments(docs []loader.Document) []loader.Document
}

// Indexer runs the ingestion pipeline for one document at a time.
type Indexer struct {
	docs     Documents
	vectors  Vectors
	quotas   Quotas
	loaders  Loaders
	splitter Splitter
	blobs    Blobs
	webhook  *Webhook
	logger   log.Logger
}

// New creates an Indexer. blobs and webhook may be nil to disable blob
// cleanup and event emission.
func New(docs Documents, vectors Vectors, quotas Quotas, loaders Loaders, split Splitter, blobs Blobs, webhook *Webhook, logger log.Logger) (*Indexer, error) {
	if docs == nil || vectors == nil || quotas == nil || loaders == nil || split == nil {
		return nil, fmt.Errorf("docs, vectors, quotas, loaders and splitter are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Indexer{
		docs:     docs,
		vectors:  vectors,
		quotas:   quotas,
		loaders:  loaders,
		splitter: split,
		blobs:    blobs,
		webhook:  webhook,
		logger:   logger,
	}, nil
}

// Result summarizes a successful indexing run.
type Result struct {
	Chunks  int
	Bytes   int64
	Stopped bool
}

// Index runs the full pipeline for one document: fetch, size gate, chunk,
// embed, store, and commit the byte accounting. Status transitions and the
// webhook event record the outcome either way.
func (ix *Indexer) Index(ctx context.Context, documentID string) (*Result, error) {
	doc, err := ix.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	project, err := ix.docs.GetProject(ctx, doc.ProjectID)
	if err != nil {
		return nil, err
	}

	if err := ix.docs.SetDocumentStatus(ctx, doc.ID, store.StatusFetching); err != nil {
		return nil, err
	}

	loaded, err := ix.fetch(ctx, project, doc)
	if err != nil {
		ix.fail(ctx, doc, store.StatusFetchingFailed, err)
		return nil, fmt.Errorf("fetching document %q: %w", doc.ID, err)
	}
	if err := ix.docs.SetDocumentStatus(ctx, doc.ID, store.StatusFetchDone); err != nil {
		return nil, err
	}

	var totalBytes int64
	for _, d := range loaded.Documents {
		totalBytes += d.Metadata.Size
	}
	if err := ix.docs.SetDocumentSize(ctx, doc.ID, totalBytes); err != nil {
		return nil, err
	}

	// Re-indexing replaces the old bytes, so the quota gate sees only the
	// growth.
	delta := totalBytes - doc.SizeBytes
	ok, err := ix.quotas.GateDocumentBytes(ctx, project.OrgID, delta)
	if err != nil {
		ix.fail(ctx, doc, store.StatusFailed, err)
		return nil, err
	}
	if !ok {
		sizeErr := fmt.Errorf("document of %d bytes exceeds the plan's storage limit", totalBytes)
		ix.fail(ctx, doc, store.StatusSizeLimitExceeded, sizeErr)
		return nil, sizeErr
	}

	if err := ix.docs.SetDocumentStatus(ctx, doc.ID, store.StatusIndexing); err != nil {
		return nil, err
	}

	for i := range loaded.Documents {
		md := &loaded.Documents[i].Metadata
		md.ProjectID = doc.ProjectID
		md.DocumentID = doc.ID
		md.Type = loader.DocType(doc.Type)
	}
	chunks := ix.splitter.SplitDocuments(loaded.Documents)

	namespace := doc.ProjectID

	// Stale vectors from a previous run go first, so a re-index can never
	// mix chunk generations.
	if _, err := ix.vectors.DeleteDocument(ctx, namespace, doc.ID); err != nil {
		ix.fail(ctx, doc, store.StatusFailed, err)
		return nil, err
	}

	if err := ix.vectors.Upsert(ctx, namespace, chunks); err != nil {
		// Purge whatever the failed upsert left behind.
		if _, purgeErr := ix.vectors.DeleteDocument(ctx, namespace, doc.ID); purgeErr != nil {
			ix.logger.Error("purging partial vectors failed", "document_id", doc.ID, "error", purgeErr)
		}
		ix.fail(ctx, doc, store.StatusFailed, err)
		return nil, fmt.Errorf("indexing document %q: %w", doc.ID, err)
	}

	if err := ix.quotas.CommitDocumentBytes(ctx, project.OrgID, doc.ProjectID, delta); err != nil {
		return nil, err
	}
	if err := ix.docs.SetDocumentStatus(ctx, doc.ID, store.StatusSuccess); err != nil {
		return nil, err
	}

	ix.webhook.Emit(ctx, WebhookEvent{DocumentID: doc.ID, Title: title(doc, loaded)})
	ix.logger.Info("document indexed",
		"document_id", doc.ID, "project_id", doc.ProjectID,
		"chunks", len(chunks), "bytes", totalBytes, "stopped", loaded.Stopped)

	return &Result{Chunks: len(chunks), Bytes: totalBytes, Stopped: loaded.Stopped}, nil
}

// Delete removes a document entirely: vectors, accounting, then the row.
func (ix *Indexer) Delete(ctx context.Context, documentID string) error {
	doc, err := ix.docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	project, err := ix.docs.GetProject(ctx, doc.ProjectID)
	if err != nil {
		return err
	}

	if _, err := ix.vectors.DeleteDocument(ctx, doc.ProjectID, doc.ID); err != nil {
		return err
	}
	if doc.SizeBytes > 0 {
		if err := ix.quotas.CommitDocumentBytes(ctx, project.OrgID, doc.ProjectID, -doc.SizeBytes); err != nil {
			return err
		}
	}

	if ix.blobs != nil && loader.DocType(doc.Type) == loader.TypeFiles {
		if details, err := loader.DecodeFileDetails(doc.Details); err == nil {
			for _, key := range details.Keys {
				if err := ix.blobs.Delete(ctx, key); err != nil {
					ix.logger.Warn("deleting uploaded blob", "key", key, "error", err)
				}
			}
		}
	}

	return ix.docs.DeleteDocument(ctx, doc.ID)
}

func (ix *Indexer) fetch(ctx context.Context, project *store.Project, doc *store.Document) (*loader.Result, error) {
	maxPages, err := ix.quotas.MaxCrawlPages(ctx, project.OrgID)
	if err != nil {
		return nil, err
	}

	l, err := ix.loaders.ForRequest(loader.Request{
		Type:          loader.DocType(doc.Type),
		Name:          doc.Source,
		URL:           doc.Source,
		Details:       doc.Details,
		MaxCrawlPages: maxPages,
	})
	if err != nil {
		return nil, err
	}
	return l.Load(ctx)
}

// fail flips the document into a failure status and emits the webhook
// event carrying the error.
func (ix *Indexer) fail(ctx context.Context, doc *store.Document, status string, cause error) {
	if err := ix.docs.SetDocumentStatus(ctx, doc.ID, status); err != nil {
		ix.logger.Error("setting failure status", "document_id", doc.ID, "status", status, "error", err)
	}
	ix.webhook.Emit(ctx, WebhookEvent{DocumentID: doc.ID, Title: doc.Source, Error: cause.Error()})
	ix.logger.Warn("indexing failed", "document_id", doc.ID, "status", status, "error", cause)
}

func title(doc *store.Document, loaded *loader.Result) string {
	if len(loaded.Documents) > 0 && loaded.Documents[0].Metadata.Title != "" {
		return loaded.Documents[0].Metadata.Title
	}
	return doc.Source
}
