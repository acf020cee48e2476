// Package confluence is a minimal Confluence Cloud REST client covering the
// one call the Confluence loader needs: listing the pages of a space with
// their storage-format bodies. Tenant credentials come from the document's
// details payload, so a Client is cheap and constructed per load.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/security"
)

// pageLimit is the page size for content listing requests.
const pageLimit = 25

// Page is one Confluence page with its extracted plain text.
type Page struct {
	ID    string
	Title string
	URL   string
	Text  string
}

// contentResponse mirrors the /rest/api/content listing payload.
type contentResponse struct {
	Results []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Body  struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
		Links struct {
			WebUI string `json:"webui"`
		} `json:"_links"`
	} `json:"results"`
	Size int `json:"size"`
}

// Client is a minimal Confluence Cloud API client using basic auth
// (account email + API token).
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	validator  *security.HTTP
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Confluence client. baseURL is the site origin, e.g.
// "https://acme.atlassian.net".
func New(baseURL, email, apiToken string, validator *security.HTTP, logger log.Logger) (*Client, error) {
	if email == "" || apiToken == "" {
		return nil, fmt.Errorf("confluence credentials are required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("confluence base URL is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("http validator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		validator:  validator,
		httpClient: validator.Client(),
		logger:     logger,
	}, nil
}

// SpacePages lists every page of a space, paging through the content API
// and flattening each page's storage-format body to plain text.
func (c *Client) SpacePages(ctx context.Context, spaceKey string) ([]Page, error) {
	var pages []Page
	start := 0

	for {
		endpoint := fmt.Sprintf("%s/wiki/rest/api/content?%s", c.baseURL, url.Values{
			"spaceKey": {spaceKey},
			"type":     {"page"},
			"expand":   {"body.storage"},
			"start":    {fmt.Sprint(start)},
			"limit":    {fmt.Sprint(pageLimit)},
		}.Encode())

		var resp contentResponse
		if err := c.get(ctx, endpoint, &resp); err != nil {
			return nil, fmt.Errorf("listing space %q: %w", spaceKey, err)
		}

		for _, r := range resp.Results {
			pages = append(pages, Page{
				ID:    r.ID,
				Title: r.Title,
				URL:   c.baseURL + "/wiki" + r.Links.WebUI,
				Text:  storageToText(r.Body.Storage.Value),
			})
		}

		if len(resp.Results) < pageLimit {
			break
		}
		start += pageLimit
	}

	c.logger.Debug("confluence space loaded", "space", spaceKey, "page_count", len(pages))
	return pages, nil
}

func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	if err := c.validator.ValidateURL(endpoint); err != nil {
		return fmt.Errorf("security validation failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.validator.MaxResponseSize()))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("confluence API error (status %d): %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	return nil
}

// storageToText flattens Confluence storage-format HTML to plain text.
// Unparseable bodies fall back to the raw value rather than dropping
// content silently.
func storageToText(storage string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(storage))
	if err != nil {
		return strings.TrimSpace(storage)
	}
	var sb strings.Builder
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, td, pre").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	})
	if sb.Len() == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.TrimSpace(sb.String())
}
