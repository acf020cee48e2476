package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/docbase/docbase/internal/indexer"
	"github.com/docbase/docbase/internal/loader"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/store"
)

// DocumentStore is the persistence surface the document handlers need.
// Satisfied by *store.Store.
type DocumentStore interface {
	CreateDocument(ctx context.Context, projectID, docType, source string, details []byte) (*store.Document, error)
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	ListDocuments(ctx context.Context, projectID string) ([]store.Document, error)
}

// Ingestor runs the ingestion pipeline. Satisfied by *indexer.Indexer.
type Ingestor interface {
	Index(ctx context.Context, documentID string) (*indexer.Result, error)
	Delete(ctx context.Context, documentID string) error
}

type documentHandler struct {
	store  DocumentStore
	ingest Ingestor
	// jobs outlives individual requests so background indexing survives
	// the client disconnecting. Canceled on server shutdown.
	jobs   context.Context
	logger log.Logger
}

type documentItem struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDocumentItem(d *store.Document) documentItem {
	return documentItem{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		Type:      d.Type,
		Source:    d.Source,
		Status:    d.Status,
		SizeBytes: d.SizeBytes,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// validateDetails decodes the details payload against the declared type so
// malformed requests fail here with a 400 instead of asynchronously.
func validateDetails(docType loader.DocType, source string, details []byte) error {
	switch docType {
	case loader.TypeURL:
		if source == "" {
			return errors.New("source URL is required")
		}
		_, err := loader.DecodeWebDetails(details)
		return err
	case loader.TypeText:
		_, err := loader.DecodeTextDetails(details)
		return err
	case loader.TypeFiles:
		_, err := loader.DecodeFileDetails(details)
		return err
	case loader.TypeNotion:
		_, err := loader.DecodeNotionDetails(details)
		return err
	case loader.TypeConfluence:
		_, err := loader.DecodeConfluenceDetails(details)
		return err
	default:
		return loader.ErrUnsupportedType
	}
}

func (h *documentHandler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string          `json:"projectId"`
		Type      string          `json:"type"`
		Source    string          `json:"source"`
		Details   json.RawMessage `json:"details"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.ProjectID == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "projectId and type are required", h.logger)
		return
	}
	if err := validateDetails(loader.DocType(req.Type), req.Source, req.Details); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_details", err.Error(), h.logger)
		return
	}

	doc, err := h.store.CreateDocument(r.Context(), req.ProjectID, req.Type, req.Source, req.Details)
	if err != nil {
		h.logger.Error("creating document", "project_id", req.ProjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create document", h.logger)
		return
	}

	h.indexAsync(doc.ID)
	writeJSON(w, http.StatusAccepted, toDocumentItem(doc), h.logger)
}

func (h *documentHandler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found", h.logger)
			return
		}
		h.logger.Error("getting document", "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get document", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentItem(doc), h.logger)
}

func (h *documentHandler) listDocuments(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "missing_project", "projectId query parameter is required", h.logger)
		return
	}
	docs, err := h.store.ListDocuments(r.Context(), projectID)
	if err != nil {
		h.logger.Error("listing documents", "project_id", projectID, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list documents", h.logger)
		return
	}
	items := make([]documentItem, len(docs))
	for i := range docs {
		items[i] = toDocumentItem(&docs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": items}, h.logger)
}

// reindexDocument re-runs ingestion for an existing document. Content is
// re-fetched from the source; only the byte delta counts against quota.
func (h *documentHandler) reindexDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found", h.logger)
			return
		}
		h.logger.Error("getting document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get document", h.logger)
		return
	}

	h.indexAsync(doc.ID)
	writeJSON(w, http.StatusAccepted, toDocumentItem(doc), h.logger)
}

func (h *documentHandler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ingest.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found", h.logger)
			return
		}
		h.logger.Error("deleting document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete document", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// indexAsync runs the pipeline in the background. Failures land on the
// document status row and the completion webhook, not on this response.
func (h *documentHandler) indexAsync(documentID string) {
	go func() {
		if _, err := h.ingest.Index(h.jobs, documentID); err != nil {
			h.logger.Warn("background indexing failed", "document_id", documentID, "error", err)
		}
	}()
}
