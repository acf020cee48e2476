// Package notion is a lightweight Notion API client covering the three
// calls the Notion loader needs: workspace search, block children and text
// extraction. Tenant access tokens come from the document's details payload,
// so a Client is cheap and constructed per load.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/security"
)

const (
	// DefaultBaseURL is the Notion API origin. Overridable for tests.
	DefaultBaseURL = "https://api.notion.com"

	// APIVersion is the Notion-Version header value.
	APIVersion = "2022-06-28"
)

// Client is a minimal Notion API client.
type Client struct {
	baseURL    string
	token      string
	validator  *security.HTTP
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Notion client for the given integration token.
func New(token string, validator *security.HTTP, logger log.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("notion token is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("http validator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		validator:  validator,
		httpClient: validator.Client(),
		logger:     logger,
	}, nil
}

// WithBaseURL overrides the API origin. For tests against stub servers.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// Search returns all pages and databases reachable by the integration.
// Pagination is handled internally.
func (c *Client) Search(ctx context.Context, query string) ([]Page, error) {
	var all []Page
	cursor := ""

	for {
		req := SearchRequest{
			Query:    query,
			PageSize: 100, // Notion API maximum
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		var resp SearchResponse
		if err := c.do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		for _, raw := range resp.Results {
			var page Page
			if err := json.Unmarshal(raw, &page); err != nil {
				c.logger.Warn("skipping unparseable search result", "error", err)
				continue
			}
			if page.Object != "page" && page.Object != "database" {
				continue
			}
			all = append(all, page)
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	c.logger.Debug("notion search completed", "query", query, "result_count", len(all))
	return all, nil
}

// BlockChildren retrieves all child blocks of the given block, recursing
// into nested blocks. Pagination is handled internally.
func (c *Client) BlockChildren(ctx context.Context, blockID string) ([]Block, error) {
	var all []Block
	cursor := ""

	for {
		path := fmt.Sprintf("/v1/blocks/%s/children", blockID)
		if cursor != "" {
			path += "?start_cursor=" + cursor
		}

		var resp BlockChildrenResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("block children failed: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	var flattened []Block
	for _, block := range all {
		flattened = append(flattened, block)
		if block.HasChildren {
			children, err := c.BlockChildren(ctx, block.ID)
			if err != nil {
				c.logger.Warn("skipping nested blocks", "block_id", block.ID, "error", err)
				continue
			}
			flattened = append(flattened, children...)
		}
	}
	return flattened, nil
}

// do executes one API request with auth headers and security validation.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	url := c.baseURL + path
	if err := c.validator.ValidateURL(url); err != nil {
		return fmt.Errorf("security validation failed: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.validator.MaxResponseSize()))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notion API error (status %d): %s", resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response: %w", err)
		}
	}
	return nil
}

// PageTitle extracts a human-readable title from a page or database object.
func PageTitle(p *Page) string {
	if len(p.Title) > 0 {
		return joinRichText(p.Title)
	}
	for _, prop := range p.Properties {
		if prop.Type == "title" && len(prop.Title) > 0 {
			return joinRichText(prop.Title)
		}
	}
	return "Untitled"
}

// ExtractText flattens blocks into plain text, one block per line.
func ExtractText(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		text := blockText(&b)
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func blockText(b *Block) string {
	for _, tb := range []*TextBlock{
		b.Paragraph, b.Heading1, b.Heading2, b.Heading3,
		b.BulletedListItem, b.NumberedListItem, b.Code, b.Quote,
		b.Callout, b.ToDo,
	} {
		if tb != nil {
			return joinRichText(tb.RichText)
		}
	}
	return ""
}

func joinRichText(parts []RichText) string {
	var sb strings.Builder
	for _, rt := range parts {
		sb.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(sb.String())
}
