package loader

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Details payloads are a tagged union keyed by the document type. The raw
// JSON stored on a document row is decoded and validated here, at the loader
// boundary, so nothing downstream handles untyped blobs.

// WebDetails configures the URL loader.
type WebDetails struct {
	// CrawlAll enables crawl mode: same-origin links discovered on the
	// root page are fetched too.
	CrawlAll bool `json:"crawlAll,omitempty"`

	// SkipPaths filters crawled paths. A pattern is either an exact path
	// or a prefix wildcard ending in "*" (e.g. "/about/*").
	SkipPaths []string `json:"skipPaths,omitempty"`
}

// TextDetails carries pasted text content. The document row's source field
// holds the title; the body lives here.
type TextDetails struct {
	Content string `json:"content"`
}

// FileDetails configures the file loader. Keys are object storage keys
// holding raw text already extracted from the uploaded files upstream.
type FileDetails struct {
	Keys []string `json:"keys"`
}

// NotionDetails configures the Notion loader.
type NotionDetails struct {
	AccessToken string `json:"accessToken"`

	// SkipPages lists page IDs excluded from the sync.
	SkipPages []string `json:"skipPages,omitempty"`
}

// ConfluenceDetails configures the Confluence loader.
type ConfluenceDetails struct {
	Email    string   `json:"email"`
	APIToken string   `json:"apiToken"`
	BaseURL  string   `json:"baseUrl"`
	Spaces   []string `json:"spaces"`
}

// DecodeWebDetails decodes and validates URL loader details.
// A nil or empty payload is valid and yields single-page mode defaults.
func DecodeWebDetails(raw []byte) (*WebDetails, error) {
	d := &WebDetails{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadDetails, err)
		}
	}
	for _, p := range d.SkipPaths {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("%w: skip path %q must start with /", ErrBadDetails, p)
		}
	}
	return d, nil
}

// DecodeTextDetails decodes and validates text loader details.
func DecodeTextDetails(raw []byte) (*TextDetails, error) {
	d := &TextDetails{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDetails, err)
	}
	if d.Content == "" {
		return nil, fmt.Errorf("%w: no text content", ErrBadDetails)
	}
	return d, nil
}

// DecodeFileDetails decodes and validates file loader details.
func DecodeFileDetails(raw []byte) (*FileDetails, error) {
	d := &FileDetails{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDetails, err)
	}
	if len(d.Keys) == 0 {
		return nil, fmt.Errorf("%w: no object keys", ErrBadDetails)
	}
	return d, nil
}

// DecodeNotionDetails decodes and validates Notion loader details.
func DecodeNotionDetails(raw []byte) (*NotionDetails, error) {
	d := &NotionDetails{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDetails, err)
	}
	if d.AccessToken == "" {
		return nil, fmt.Errorf("%w: notion access token", ErrMissingCredentials)
	}
	return d, nil
}

// DecodeConfluenceDetails decodes and validates Confluence loader details.
// At least one full credential set is required; an empty credential set is a
// configuration error, not an empty load.
func DecodeConfluenceDetails(raw []byte) (*ConfluenceDetails, error) {
	d := &ConfluenceDetails{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDetails, err)
	}
	if d.Email == "" || d.APIToken == "" {
		return nil, fmt.Errorf("%w: confluence email and api token", ErrMissingCredentials)
	}
	if d.BaseURL == "" {
		return nil, fmt.Errorf("%w: confluence base url", ErrBadDetails)
	}
	if _, err := url.ParseRequestURI(d.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: confluence base url: %w", ErrBadDetails, err)
	}
	if len(d.Spaces) == 0 {
		return nil, fmt.Errorf("%w: no confluence spaces selected", ErrBadDetails)
	}
	return d, nil
}
