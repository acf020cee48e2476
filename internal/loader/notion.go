package loader

import (
	"context"
	"fmt"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/notion"
	"github.com/docbase/docbase/internal/security"
)

// NotionLoader syncs every page the integration token can see, minus the
// pages the user excluded.
type NotionLoader struct {
	client    *notion.Client
	skipPages map[string]struct{}
	logger    log.Logger
}

// NewNotionLoader creates a loader over a Notion workspace.
func NewNotionLoader(details *NotionDetails, validator *security.HTTP, logger log.Logger) (*NotionLoader, error) {
	if details == nil || details.AccessToken == "" {
		return nil, fmt.Errorf("%w: notion access token", ErrMissingCredentials)
	}
	client, err := notion.New(details.AccessToken, validator, logger)
	if err != nil {
		return nil, fmt.Errorf("creating notion client: %w", err)
	}
	skip := make(map[string]struct{}, len(details.SkipPages))
	for _, id := range details.SkipPages {
		skip[id] = struct{}{}
	}
	return &NotionLoader{client: client, skipPages: skip, logger: logger}, nil
}

// Load lists all accessible pages and fetches each page's block tree. Pages
// whose content cannot be fetched are skipped with a warning rather than
// failing the sync; a single revoked page should not block the workspace.
func (l *NotionLoader) Load(ctx context.Context) (*Result, error) {
	pages, err := l.client.Search(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing notion pages: %w", err)
	}

	var docs []Document
	for i := range pages {
		page := &pages[i]
		if _, skip := l.skipPages[page.ID]; skip {
			continue
		}
		// Databases carry a title but no block content worth indexing.
		if page.Object != "page" {
			continue
		}

		blocks, err := l.client.BlockChildren(ctx, page.ID)
		if err != nil {
			l.logger.Warn("skipping unreadable notion page", "page_id", page.ID, "error", err)
			continue
		}
		text := notion.ExtractText(blocks)
		if text == "" {
			continue
		}

		title := notion.PageTitle(page)
		docs = append(docs, Document{
			PageContent: text,
			Metadata: Metadata{
				Source: page.URL,
				Title:  title,
				Size:   int64(len(text)),
				Type:   TypeNotion,
			},
		})
	}

	l.logger.Debug("notion workspace loaded", "pages", len(docs))
	return &Result{Documents: docs}, nil
}
