package chat

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts BPE tokens with the cl100k_base encoding. Chat usage is
// accounted in tokens; document usage is accounted in raw bytes elsewhere,
// and the two never mix.
//
// Tokenizer is safe for concurrent use.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenizer loads the cl100k_base encoding.
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("loading cl100k_base encoding: %w", err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// RuneCounter approximates token counts as runes/4, for environments where
// the BPE files are unavailable. Good enough for tests, never for billing.
type RuneCounter struct{}

// Count returns a rough token estimate.
func (RuneCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return n/4 + 1
}
