// Package security validates outbound HTTP requests made on behalf of
// tenants. Loaders fetch attacker-controllable URLs (crawl targets,
// Confluence base URLs), so every outbound request goes through an HTTP
// validator that rejects internal networks and metadata services.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	// maxRedirects bounds redirect chains on outbound fetches.
	maxRedirects = 3

	// DefaultMaxResponseSize bounds the bytes read from a fetched page.
	DefaultMaxResponseSize = 5 * 1024 * 1024 // 5MB
)

// HTTP validates outbound request targets to prevent SSRF.
type HTTP struct {
	maxResponseSize int64
	allowedSchemes  []string

	// allowLoopback permits loopback targets. Only enabled in tests and
	// local development against stub servers.
	allowLoopback bool
}

// NewHTTP creates a validator with production defaults.
func NewHTTP() *HTTP {
	return &HTTP{
		maxResponseSize: DefaultMaxResponseSize,
		allowedSchemes:  []string{"http", "https"},
	}
}

// NewHTTPAllowLoopback creates a validator that accepts loopback targets.
// For tests and local development only.
func NewHTTPAllowLoopback() *HTTP {
	v := NewHTTP()
	v.allowLoopback = true
	return v
}

// MaxResponseSize returns the response size limit for fetched content.
func (v *HTTP) MaxResponseSize() int64 {
	return v.maxResponseSize
}

// ValidateURL checks scheme, hostname and resolved IP ranges.
func (v *HTTP) ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(v.allowedSchemes, scheme) {
		return fmt.Errorf("disallowed scheme %q (only http/https allowed)", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("missing hostname in %q", rawURL)
	}

	if v.allowLoopback && isLoopbackHostname(hostname) {
		return nil
	}

	if isDangerousHostname(hostname) {
		return fmt.Errorf("access to internal hosts or metadata services is not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", hostname, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("access to internal network address %s is not allowed", ip)
		}
	}
	return nil
}

// Client returns an HTTP client that re-validates every redirect hop.
func (v *HTTP) Client() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if err := v.ValidateURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect to unsafe URL: %w", err)
			}
			return nil
		},
	}
}

func isLoopbackHostname(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

func isDangerousHostname(hostname string) bool {
	hostname = strings.ToLower(hostname)

	local := []string{"localhost", "127.0.0.1", "::1", "0.0.0.0"}
	if slices.Contains(local, hostname) {
		return true
	}

	// Cloud metadata endpoints.
	metadata := []string{
		"169.254.169.254",
		"metadata.google.internal",
		"metadata.goog",
	}
	if slices.Contains(metadata, hostname) {
		return true
	}

	return strings.HasSuffix(hostname, ".localhost") ||
		strings.HasSuffix(hostname, ".internal") ||
		strings.HasSuffix(hostname, ".local")
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
