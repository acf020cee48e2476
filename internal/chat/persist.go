package chat

import (
	"context"
	"fmt"

	"github.com/docbase/docbase/internal/store"
)

// Conversations is the store surface persistence needs. Satisfied by
// *store.Store.
type Conversations interface {
	CreateConversation(ctx context.Context, projectID string, turn store.Turn) (*store.Conversation, error)
	AppendTurn(ctx context.Context, conversationID string, turn store.Turn) (*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	SetConversationSummary(ctx context.Context, id, summary, rating string) error
}

// Persist records a completed turn. An empty conversation ID starts a new
// conversation seeded with the question; otherwise the turn is appended.
// Token charges to the conversation and the project happen atomically
// inside the store. Returns the conversation with its ordered messages.
func Persist(ctx context.Context, convs Conversations, req Request, result *Result) (*store.Conversation, error) {
	turn := store.Turn{
		Question: req.Question,
		Answer:   result.Answer,
		Sources:  result.Sources,
		Tokens:   result.Tokens,
	}

	if req.ConversationID == "" {
		conv, err := convs.CreateConversation(ctx, req.ProjectID, turn)
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := convs.AppendTurn(ctx, req.ConversationID, turn)
	if err != nil {
		return nil, fmt.Errorf("appending turn: %w", err)
	}
	return conv, nil
}
