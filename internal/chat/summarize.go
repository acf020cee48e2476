package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docbase/docbase/internal/store"
)

// summaryPayload is the strict JSON shape the summarization prompt
// demands.
type summaryPayload struct {
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment"`
}

// Summarize generates and persists a summary with sentiment for a
// conversation. It runs only when the project has summaries enabled AND an
// org credit is available; otherwise it is a silent no-op. A successful
// run consumes one credit and one project message.
func (e *Engine) Summarize(ctx context.Context, convs Conversations, orgID, conversationID string) error {
	conv, err := convs.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	project, err := e.projects.GetProject(ctx, conv.ProjectID)
	if err != nil {
		return err
	}
	if !project.SummaryEnabled {
		return nil
	}

	ok, err := e.credits.ConsumeChatCredit(ctx, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	payload, err := e.summarize(ctx, conv)
	if err != nil {
		if refundErr := e.credits.RefundChatCredit(ctx, orgID); refundErr != nil {
			e.logger.Error("refunding credit after summary failure", "org_id", orgID, "error", refundErr)
		}
		return err
	}

	if err := convs.SetConversationSummary(ctx, conv.ID, payload.Summary, payload.Sentiment); err != nil {
		return err
	}
	if err := e.credits.RecordChatMessage(ctx, conv.ProjectID); err != nil {
		e.logger.Error("recording summary usage", "project_id", conv.ProjectID, "error", err)
	}
	e.logger.Debug("conversation summarized", "conversation_id", conv.ID, "sentiment", payload.Sentiment)
	return nil
}

func (e *Engine) summarize(ctx context.Context, conv *store.Conversation) (*summaryPayload, error) {
	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.model),
		ai.WithPrompt(summaryPrompt(conv)),
		ai.WithConfig(map[string]any{"temperature": 0.1}),
	)
	if err != nil {
		return nil, fmt.Errorf("generating summary: %w", err)
	}

	payload := &summaryPayload{}
	raw := extractJSON(resp.Text())
	if err := json.Unmarshal([]byte(raw), payload); err != nil {
		return nil, fmt.Errorf("summary is not valid JSON: %w", err)
	}
	if payload.Summary == "" {
		return nil, fmt.Errorf("summary is empty")
	}
	switch payload.Sentiment {
	case store.RatingPositive, store.RatingNeutral, store.RatingNegative:
	default:
		return nil, fmt.Errorf("invalid sentiment %q", payload.Sentiment)
	}
	return payload, nil
}

// extractJSON strips markdown code fences and surrounding prose that
// models sometimes wrap around a JSON response.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return text
}
