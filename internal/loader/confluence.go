package loader

import (
	"context"
	"fmt"

	"github.com/docbase/docbase/internal/confluence"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/security"
)

// ConfluenceLoader syncs the pages of the selected Confluence spaces.
type ConfluenceLoader struct {
	client *confluence.Client
	spaces []string
	logger log.Logger
}

// NewConfluenceLoader creates a loader over one or more Confluence spaces.
func NewConfluenceLoader(details *ConfluenceDetails, validator *security.HTTP, logger log.Logger) (*ConfluenceLoader, error) {
	if details == nil {
		return nil, fmt.Errorf("%w: confluence details", ErrBadDetails)
	}
	client, err := confluence.New(details.BaseURL, details.Email, details.APIToken, validator, logger)
	if err != nil {
		return nil, fmt.Errorf("creating confluence client: %w", err)
	}
	if len(details.Spaces) == 0 {
		return nil, fmt.Errorf("%w: no confluence spaces selected", ErrBadDetails)
	}
	return &ConfluenceLoader{client: client, spaces: details.Spaces, logger: logger}, nil
}

// Load fetches every page of every selected space. A failing space fails the
// load; partial space syncs would leave the project silently missing content
// the user asked for.
func (l *ConfluenceLoader) Load(ctx context.Context) (*Result, error) {
	var docs []Document
	for _, space := range l.spaces {
		pages, err := l.client.SpacePages(ctx, space)
		if err != nil {
			return nil, fmt.Errorf("loading confluence space %q: %w", space, err)
		}
		for _, page := range pages {
			if page.Text == "" {
				continue
			}
			docs = append(docs, Document{
				PageContent: page.Text,
				Metadata: Metadata{
					Source: page.URL,
					Title:  page.Title,
					Size:   int64(len(page.Text)),
					Type:   TypeConfluence,
				},
			})
		}
	}
	l.logger.Debug("confluence spaces loaded", "spaces", len(l.spaces), "pages", len(docs))
	return &Result{Documents: docs}, nil
}
