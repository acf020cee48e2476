package loader

import (
	"fmt"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/security"
)

// Request carries everything the factory needs to pick and configure a
// loader for one document. Details is the raw tagged-union payload from the
// document row; it is decoded here, once, against the declared type.
type Request struct {
	Type    DocType
	Name    string
	URL     string
	Content string
	Details []byte

	// MaxCrawlPages is the caller's plan cap on crawled pages.
	MaxCrawlPages int
}

// Factory builds loaders from document rows. It holds the shared
// dependencies so indexing call sites pass only per-document data.
type Factory struct {
	validator   *security.HTTP
	fetcher     ObjectFetcher
	concurrency int
	logger      log.Logger
}

// NewFactory creates a loader factory. concurrency bounds crawl-mode
// parallel fetches; zero means the default.
func NewFactory(validator *security.HTTP, fetcher ObjectFetcher, concurrency int, logger log.Logger) (*Factory, error) {
	if validator == nil {
		return nil, fmt.Errorf("http validator is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("object fetcher is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if concurrency <= 0 {
		concurrency = DefaultCrawlConcurrency
	}
	return &Factory{validator: validator, fetcher: fetcher, concurrency: concurrency, logger: logger}, nil
}

// ForRequest selects and configures the loader for the request's document
// type. Unknown types return ErrUnsupportedType.
func (f *Factory) ForRequest(req Request) (Loader, error) {
	switch req.Type {
	case TypeURL:
		details, err := DecodeWebDetails(req.Details)
		if err != nil {
			return nil, err
		}
		return NewWebLoader(req.URL, details, req.MaxCrawlPages, f.validator, f.logger,
			WithCrawlConcurrency(f.concurrency))

	case TypeText:
		if req.Content != "" {
			return NewTextLoader(req.Name, req.Content), nil
		}
		details, err := DecodeTextDetails(req.Details)
		if err != nil {
			return nil, err
		}
		return NewTextLoader(req.Name, details.Content), nil

	case TypeFiles:
		details, err := DecodeFileDetails(req.Details)
		if err != nil {
			return nil, err
		}
		return NewFileLoader(f.fetcher, details, f.logger)

	case TypeNotion:
		details, err := DecodeNotionDetails(req.Details)
		if err != nil {
			return nil, err
		}
		return NewNotionLoader(details, f.validator, f.logger)

	case TypeConfluence:
		details, err := DecodeConfluenceDetails(req.Details)
		if err != nil {
			return nil, err
		}
		return NewConfluenceLoader(details, f.validator, f.logger)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, req.Type)
	}
}
