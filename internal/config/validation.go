package config

import (
	"fmt"
	"net/url"
)

// Validate checks everything the serve command needs before startup.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: set DOCBASE_DATABASE_URL", ErrMissingDatabaseURL)
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set DOCBASE_GEMINI_API_KEY", ErrMissingAPIKey)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d for chunk size %d", ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.CrawlConcurrency < 1 || c.CrawlConcurrency > 32 {
		return fmt.Errorf("%w: %d (must be 1-32)", ErrInvalidConcurrency, c.CrawlConcurrency)
	}
	if c.WebhookURL != "" {
		if _, err := url.ParseRequestURI(c.WebhookURL); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
		}
	}
	return nil
}
