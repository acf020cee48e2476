// Package loader turns heterogeneous content sources into normalized
// documents ready for chunking and indexing.
//
// Each source type (URL, plain text, uploaded files, Notion, Confluence) has
// one Loader implementation. Loaders are selected by a factory keyed on the
// document's type, so indexing call sites never branch on source type.
//
// A loader owns fetching and text extraction only. Chunking, embedding and
// persistence belong to the splitter and indexer packages.
package loader

import (
	"context"
	"errors"
)

// DocType identifies the source type of an ingestible document.
type DocType string

// Supported source types.
const (
	TypeURL        DocType = "URL"
	TypeText       DocType = "TEXT"
	TypeFiles      DocType = "FILES"
	TypeNotion     DocType = "NOTION"
	TypeConfluence DocType = "CONFLUENCE"
)

// Sentinel errors for loader construction and execution.
var (
	// ErrUnsupportedType indicates no loader exists for the document type.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrBadDetails indicates the document's details payload failed to
	// decode or validate for its declared type.
	ErrBadDetails = errors.New("invalid document details")

	// ErrMissingCredentials indicates a loader requires credentials that
	// are absent or empty. This is a configuration error, never silent
	// success.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Metadata describes where a document's content came from.
//
// Size is the raw UTF-8 byte length of the extracted text. Document usage
// accounting works in bytes; chat usage accounting works in BPE tokens. The
// two measures are kept apart on purpose.
type Metadata struct {
	Source     string  `json:"source"`
	Title      string  `json:"title,omitempty"`
	Size       int64   `json:"size"`
	Type       DocType `json:"type,omitempty"`
	ProjectID  string  `json:"projectId,omitempty"`
	DocumentID string  `json:"documentId,omitempty"`

	// Line provenance, filled in by the splitter.
	LineFrom int `json:"lineFrom,omitempty"`
	LineTo   int `json:"lineTo,omitempty"`
}

// Document is one unit of loaded content. It is transient: produced by a
// loader, consumed by the splitter, then embedded and stored. Lifetime is a
// single indexing run.
type Document struct {
	PageContent string
	Metadata    Metadata
}

// Result is the outcome of a load. Stopped is set by the crawling loader
// when the plan's page cap cut the crawl short, so callers can warn the
// user that not everything was fetched.
type Result struct {
	Documents []Document
	Stopped   bool
}

// Loader is the capability interface implemented once per source type.
type Loader interface {
	Load(ctx context.Context) (*Result, error)
}
