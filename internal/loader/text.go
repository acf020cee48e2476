package loader

import "context"

// TextLoader wraps user-pasted text as a single document. The content never
// leaves the process, so there is nothing to fetch and Load cannot fail.
type TextLoader struct {
	title   string
	content string
}

// NewTextLoader creates a loader for pasted plain text.
func NewTextLoader(title, content string) *TextLoader {
	return &TextLoader{title: title, content: content}
}

// Load wraps the text in one document attributed to its own title.
func (l *TextLoader) Load(_ context.Context) (*Result, error) {
	return &Result{
		Documents: []Document{{
			PageContent: l.content,
			Metadata: Metadata{
				Source: l.title,
				Title:  l.title,
				Size:   int64(len(l.content)),
				Type:   TypeText,
			},
		}},
	}, nil
}
