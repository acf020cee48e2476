package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Turn is one user/assistant exchange appended to a conversation.
type Turn struct {
	Question string
	Answer   string
	Sources  string
	Tokens   int64
}

// CreateConversation starts a conversation seeded with the first question
// and its answer, and charges the turn's tokens to the project, all in one
// transaction.
func (s *Store) CreateConversation(ctx context.Context, projectID string, turn Turn) (*Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning conversation create: %w", err)
	}
	defer tx.Rollback(ctx)

	conv := &Conversation{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		FirstMsg:   turn.Question,
		TokensUsed: turn.Tokens,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (id, project_id, first_msg, tokens_used)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		conv.ID, projectID, turn.Question, turn.Tokens,
	).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	if err := insertTurn(ctx, tx, conv.ID, turn); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE projects SET tokens_used = tokens_used + $2 WHERE id = $1`,
		projectID, turn.Tokens); err != nil {
		return nil, fmt.Errorf("charging project tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing conversation create: %w", err)
	}
	return s.GetConversation(ctx, conv.ID)
}

// AppendTurn adds a user/assistant exchange to an existing conversation and
// charges its tokens to both the conversation and the project atomically.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, turn Turn) (*Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning turn append: %w", err)
	}
	defer tx.Rollback(ctx)

	var projectID string
	err = tx.QueryRow(ctx, `
		UPDATE conversations SET tokens_used = tokens_used + $2
		WHERE id = $1
		RETURNING project_id`,
		conversationID, turn.Tokens,
	).Scan(&projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %q: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("charging conversation tokens: %w", err)
	}

	if err := insertTurn(ctx, tx, conversationID, turn); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE projects SET tokens_used = tokens_used + $2 WHERE id = $1`,
		projectID, turn.Tokens); err != nil {
		return nil, fmt.Errorf("charging project tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing turn append: %w", err)
	}
	return s.GetConversation(ctx, conversationID)
}

func insertTurn(ctx context.Context, tx pgx.Tx, conversationID string, turn Turn) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, text)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), conversationID, RoleUser, turn.Question); err != nil {
		return fmt.Errorf("inserting user message: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, text, sources)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), conversationID, RoleAssistant, turn.Answer, turn.Sources); err != nil {
		return fmt.Errorf("inserting assistant message: %w", err)
	}
	return nil
}

// GetConversation fetches a conversation with its messages in insertion
// order.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{}
	var rating, summary *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, first_msg, rating, tokens_used, summary, created_at
		FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.ProjectID, &conv.FirstMsg, &rating, &conv.TokensUsed,
		&summary, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	if rating != nil {
		conv.Rating = *rating
	}
	if summary != nil {
		conv.Summary = *summary
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, text, sources, feedback, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		var sources *string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Text,
			&sources, &m.Feedback, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if sources != nil {
			m.Sources = *sources
		}
		conv.Messages = append(conv.Messages, m)
	}
	return conv, rows.Err()
}

// ListConversations returns a project's conversations, newest first,
// without their messages.
func (s *Store) ListConversations(ctx context.Context, projectID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, first_msg, rating, tokens_used, summary, created_at
		FROM conversations WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var rating, summary *string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FirstMsg, &rating,
			&c.TokensUsed, &summary, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if rating != nil {
			c.Rating = *rating
		}
		if summary != nil {
			c.Summary = *summary
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetConversationSummary records the summary text and sentiment rating.
func (s *Store) SetConversationSummary(ctx context.Context, id, summary, rating string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET summary = $2, rating = $3 WHERE id = $1`, id, summary, rating)
	if err != nil {
		return fmt.Errorf("setting conversation summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %q: %w", id, ErrNotFound)
	}
	return nil
}

// SetMessageFeedback sets the one mutable column on a message row.
func (s *Store) SetMessageFeedback(ctx context.Context, messageID string, helpful bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET feedback = $2 WHERE id = $1`, messageID, helpful)
	if err != nil {
		return fmt.Errorf("setting message feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %q: %w", messageID, ErrNotFound)
	}
	return nil
}
