// Package splitter implements recursive character-based chunking of long
// text into overlapping segments bounded by a target size.
//
// The algorithm walks an ordered list of separators from coarse to fine
// (paragraph, line, space, character). Pieces smaller than the chunk size
// are merged back together with a sliding overlap window; pieces still too
// large recurse into the next-finer separator.
package splitter

import (
	"fmt"
	"strings"

	"github.com/docbase/docbase/internal/loader"
)

// Defaults used by the indexing pipeline.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// defaultSeparators orders split points from coarse to fine. The empty
// string means "split into individual characters" and guarantees progress
// for pathological inputs with no natural break points.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter chunks text. It is stateless after construction and safe for
// concurrent use.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// New creates a Splitter. Overlap must be strictly smaller than the chunk
// size; anything else is a configuration error and fails fast.
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", chunkOverlap, chunkSize)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}, nil
}

// SplitText splits text into chunks of at most the configured size, each
// trimmed of surrounding whitespace. Empty chunks are never emitted. A
// single atomic unit longer than the chunk size (no finer separator left)
// is returned as-is rather than truncated.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// Pick the first separator present in the text; the empty-string
	// separator always matches.
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitOn(text, separator)

	var chunks []string
	var pending []string
	for _, piece := range splits {
		if len(piece) < s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending, separator)...)
			pending = nil
		}
		if len(next) == 0 {
			// No finer separator: the unit is atomic, keep it whole.
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, next)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending, separator)...)
	}
	return chunks
}

// merge greedily joins small pieces into chunks up to chunkSize, carrying at
// most chunkOverlap trailing bytes of context into the next chunk by not
// fully draining the window when it slides.
func (s *Splitter) merge(splits []string, separator string) []string {
	sepLen := len(separator)

	var chunks []string
	var window []string
	total := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		if chunk := strings.TrimSpace(strings.Join(window, separator)); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, piece := range splits {
		pieceLen := len(piece)
		joinLen := 0
		if len(window) > 0 {
			joinLen = sepLen
		}

		if total+pieceLen+joinLen > s.chunkSize && len(window) > 0 {
			flush()
			// Slide: drop from the front until the retained tail fits
			// the overlap budget and leaves room for the new piece.
			for total > s.chunkOverlap ||
				(total+pieceLen+joinLen > s.chunkSize && total > 0) {
				total -= len(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += pieceLen
		if len(window) > 1 {
			total += sepLen
		}
	}
	flush()
	return chunks
}

// splitOn splits text on separator, keeping non-empty pieces only. The
// empty separator splits into individual characters.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.Split(text, separator)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitDocuments chunks each document's content, producing one document per
// chunk. The source title, when present, is prepended to every chunk so each
// chunk carries its context; chunk metadata copies the source metadata plus
// the start/end line numbers the chunk came from.
func (s *Splitter) SplitDocuments(docs []loader.Document) []loader.Document {
	var out []loader.Document
	for _, doc := range docs {
		text := doc.PageContent
		searchFrom := 0
		prevLines := 1

		for _, chunk := range s.SplitText(text) {
			idx := strings.Index(text[searchFrom:], chunk)
			var lineFrom, lineTo int
			if idx >= 0 {
				start := searchFrom + idx
				lineFrom = prevLines + strings.Count(text[searchFrom:start], "\n")
				lineTo = lineFrom + strings.Count(chunk, "\n")
				// Overlapping chunks share content; advance past the
				// chunk start only, so the next search still finds an
				// overlapping chunk.
				searchFrom = start
				prevLines = lineFrom
			}

			content := chunk
			if title := doc.Metadata.Title; title != "" {
				content = title + "\n\n" + chunk
			}

			meta := doc.Metadata
			meta.LineFrom = lineFrom
			meta.LineTo = lineTo
			out = append(out, loader.Document{
				PageContent: content,
				Metadata:    meta,
			})
		}
	}
	return out
}
