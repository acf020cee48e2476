package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/security"
)

// DefaultCrawlConcurrency bounds parallel page fetches in crawl mode.
const DefaultCrawlConcurrency = 5

// WebLoader fetches a single page, or in crawl mode the page plus every
// same-origin page it links to, up to the plan's page cap.
type WebLoader struct {
	rawURL      string
	details     *WebDetails
	maxPages    int
	concurrency int
	validator   *security.HTTP
	httpClient  *http.Client
	logger      log.Logger
}

// WebOption configures a WebLoader.
type WebOption func(*WebLoader)

// WithCrawlConcurrency overrides the parallel fetch bound.
func WithCrawlConcurrency(n int) WebOption {
	return func(l *WebLoader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// NewWebLoader creates a loader for a web page. maxPages is the caller's
// plan cap on crawled pages; it is ignored in single-page mode.
func NewWebLoader(rawURL string, details *WebDetails, maxPages int, validator *security.HTTP, logger log.Logger, opts ...WebOption) (*WebLoader, error) {
	if validator == nil {
		return nil, fmt.Errorf("http validator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := validator.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDetails, err)
	}
	if details == nil {
		details = &WebDetails{}
	}
	if maxPages < 1 {
		maxPages = 1
	}
	l := &WebLoader{
		rawURL:      rawURL,
		details:     details,
		maxPages:    maxPages,
		concurrency: DefaultCrawlConcurrency,
		validator:   validator,
		httpClient:  validator.Client(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load fetches the root page, and in crawl mode the same-origin pages it
// links to. Crawled documents preserve link discovery order regardless of
// fetch completion order, so re-indexing the same site yields the same
// chunk layout.
func (l *WebLoader) Load(ctx context.Context) (*Result, error) {
	root, links, err := l.fetchPage(ctx, l.rawURL, l.details.CrawlAll)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", l.rawURL, err)
	}

	result := &Result{Documents: []Document{*root}}
	if !l.details.CrawlAll {
		return result, nil
	}

	targets, stopped := l.selectTargets(links)
	result.Stopped = stopped
	if len(targets) == 0 {
		return result, nil
	}

	docs := make([]*Document, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, target := range targets {
		g.Go(func() error {
			doc, _, err := l.fetchPage(gctx, target, false)
			if err != nil {
				// Broken links are normal on real sites; log and move on.
				l.logger.Warn("skipping unreachable page", "url", target, "error", err)
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if doc != nil {
			result.Documents = append(result.Documents, *doc)
		}
	}
	l.logger.Debug("crawl finished", "url", l.rawURL, "pages", len(result.Documents), "stopped", result.Stopped)
	return result, nil
}

// selectTargets filters discovered links through the skip patterns and the
// page cap. The root page always counts against the cap.
func (l *WebLoader) selectTargets(links []string) (targets []string, stopped bool) {
	matcher := newSkipMatcher(l.details.SkipPaths)
	budget := l.maxPages - 1

	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil || matcher.Skip(u.Path) {
			continue
		}
		if len(targets) >= budget {
			stopped = true
			break
		}
		targets = append(targets, link)
	}
	return targets, stopped
}

// fetchPage fetches one page and extracts its readable text. When
// collectLinks is set it also returns the page's same-origin links,
// deduplicated, in first-appearance order.
func (l *WebLoader) fetchPage(ctx context.Context, pageURL string, collectLinks bool) (*Document, []string, error) {
	if err := l.validator.ValidateURL(pageURL); err != nil {
		return nil, nil, fmt.Errorf("security validation failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "docbase-bot/1.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, l.validator.MaxResponseSize())
	utf8Body, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding response charset: %w", err)
	}
	body, err := io.ReadAll(utf8Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing page url: %w", err)
	}

	title, text := extractReadable(body, parsedURL)
	if text == "" {
		return nil, nil, fmt.Errorf("no readable content")
	}

	doc := &Document{
		PageContent: text,
		Metadata: Metadata{
			Source: pageURL,
			Title:  title,
			Size:   int64(len(text)),
			Type:   TypeURL,
		},
	}

	var links []string
	if collectLinks {
		links = sameOriginLinks(body, parsedURL)
	}
	return doc, links, nil
}

// extractReadable pulls the main article content out of an HTML page,
// falling back to the whole body text when readability finds no article.
func extractReadable(body []byte, pageURL *url.URL) (title, text string) {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.Title, normalizeWhitespace(article.TextContent)
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", ""
	}
	gq.Find("script, style, noscript").Remove()
	title = strings.TrimSpace(gq.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(gq.Find("title").First().Text())
	}
	return title, normalizeWhitespace(gq.Find("body").Text())
}

// sameOriginLinks extracts href targets on the page's own origin, excluding
// the page itself, deduplicated in document order.
func sameOriginLinks(body []byte, pageURL *url.URL) []string {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{canonical(pageURL): {}}
	var links []string
	gq.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved, err := pageURL.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host != pageURL.Host {
			return
		}
		key := canonical(resolved)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	})
	return links
}

// canonical strips the fragment so anchor variants of a page collapse to
// one crawl target.
func canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}

// normalizeWhitespace collapses runs of blank lines and trims each line, so
// extracted page text chunks cleanly.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	// Trim a trailing blank line left by the loop.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
