package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/docbase/docbase/internal/chat"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/store"
)

// SSE event types for chat streaming.
const (
	sseChunk = "chunk" // partial answer text
	sseDone  = "done"  // turn completed, payload carries the full result
	sseError = "error" // turn failed
)

// ChatEngine runs retrieval-augmented chat turns. Satisfied by
// *chat.Engine.
type ChatEngine interface {
	Stream(ctx context.Context, req chat.Request) iter.Seq2[chat.Event, error]
	Summarize(ctx context.Context, convs chat.Conversations, orgID, conversationID string) error
}

// ConversationStore is the persistence surface the chat handlers need.
// Satisfied by *store.Store.
type ConversationStore interface {
	chat.Conversations
	ListConversations(ctx context.Context, projectID string) ([]store.Conversation, error)
	SetMessageFeedback(ctx context.Context, messageID string, helpful bool) error
}

// ChatQuotas enforces the per-plan monthly message cap. Satisfied by
// *ledger.Ledger.
type ChatQuotas interface {
	UnderMessageCap(ctx context.Context, orgID string, chatUsed int) (bool, error)
}

// ProjectGetter resolves a project row. Satisfied by *store.Store.
type ProjectGetter interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
}

type chatHandler struct {
	engine   ChatEngine
	convs    ConversationStore
	projects ProjectGetter
	quotas   ChatQuotas
	logger   log.Logger
}

type chunkPayload struct {
	Text string `json:"text"`
}

type donePayload struct {
	ConversationID string `json:"conversationId"`
	Answer         string `json:"answer"`
	Sources        string `json:"sources"`
	Tokens         int64  `json:"tokens"`
	LimitReached   bool   `json:"limitReached"`
}

type messageItem struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Sources   string    `json:"sources,omitempty"`
	Feedback  *bool     `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type conversationItem struct {
	ID         string        `json:"id"`
	ProjectID  string        `json:"projectId"`
	FirstMsg   string        `json:"firstMsg"`
	Rating     string        `json:"rating,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	TokensUsed int64         `json:"tokensUsed"`
	CreatedAt  time.Time     `json:"createdAt"`
	Messages   []messageItem `json:"messages,omitempty"`
}

func toConversationItem(c *store.Conversation) conversationItem {
	item := conversationItem{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		FirstMsg:   c.FirstMsg,
		Rating:     c.Rating,
		Summary:    c.Summary,
		TokensUsed: c.TokensUsed,
		CreatedAt:  c.CreatedAt,
	}
	for _, m := range c.Messages {
		item.Messages = append(item.Messages, messageItem{
			ID:        m.ID,
			Role:      m.Role,
			Text:      m.Text,
			Sources:   m.Sources,
			Feedback:  m.Feedback,
			CreatedAt: m.CreatedAt,
		})
	}
	return item
}

// send handles a chat turn over SSE. Validation failures before the
// stream opens return plain JSON errors; failures mid-stream become
// error events.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID          string `json:"orgId"`
		ProjectID      string `json:"projectId"`
		ConversationID string `json:"conversationId"`
		Question       string `json:"question"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.OrgID == "" || req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "orgId and projectId are required", h.logger)
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question is required", h.logger)
		return
	}

	project, err := h.projects.GetProject(r.Context(), req.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "project not found", h.logger)
			return
		}
		h.logger.Error("getting project", "project_id", req.ProjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get project", h.logger)
		return
	}

	under, err := h.quotas.UnderMessageCap(r.Context(), req.OrgID, project.ChatUsed)
	if err != nil {
		h.logger.Error("checking message cap", "org_id", req.OrgID, "error", err)
		writeError(w, http.StatusInternalServerError, "quota_check_failed", "failed to check message quota", h.logger)
		return
	}
	if !under {
		writeError(w, http.StatusTooManyRequests, "message_cap", "monthly message limit reached for plan", h.logger)
		return
	}

	history, err := h.loadHistory(r.Context(), req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("loading conversation history", "conversation_id", req.ConversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to load conversation", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	turn := chat.Request{
		OrgID:          req.OrgID,
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		Question:       req.Question,
		History:        history,
	}

	ctx := r.Context()
	for ev, err := range h.engine.Stream(ctx, turn) {
		if err != nil {
			h.streamError(w, flusher, err)
			return
		}
		switch ev.Type {
		case chat.EventChunk:
			if writeErr := writeEvent(w, flusher, sseChunk, chunkPayload{Text: ev.Data}); writeErr != nil {
				// Write failure usually means the client hung up.
				h.logger.Debug("writing chunk", "error", writeErr)
				return
			}
		case chat.EventDone:
			conv, persistErr := chat.Persist(ctx, h.convs, turn, ev.Result)
			if persistErr != nil {
				h.logger.Error("persisting chat turn", "project_id", req.ProjectID, "error", persistErr)
				h.streamError(w, flusher, persistErr)
				return
			}
			_ = writeEvent(w, flusher, sseDone, donePayload{
				ConversationID: conv.ID,
				Answer:         ev.Result.Answer,
				Sources:        ev.Result.Sources,
				Tokens:         ev.Result.Tokens,
				LimitReached:   ev.Result.LimitReached,
			})
			return
		}
	}
}

// loadHistory converts stored conversation messages into engine turns.
// An empty conversation ID means a fresh conversation with no history.
func (h *chatHandler) loadHistory(ctx context.Context, conversationID string) ([]chat.Turn, error) {
	if conversationID == "" {
		return nil, nil
	}
	conv, err := h.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	turns := make([]chat.Turn, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		turns = append(turns, chat.Turn{Role: m.Role, Content: m.Text})
	}
	return turns, nil
}

func (h *chatHandler) streamError(w io.Writer, f http.Flusher, err error) {
	code := "stream_error"
	if errors.Is(err, chat.ErrRateLimited) {
		code = "rate_limited"
	}
	_ = writeEvent(w, f, sseError, errorBody{Code: code, Message: err.Error()})
}

func (h *chatHandler) listConversations(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "missing_project", "projectId query parameter is required", h.logger)
		return
	}
	convs, err := h.convs.ListConversations(r.Context(), projectID)
	if err != nil {
		h.logger.Error("listing conversations", "project_id", projectID, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list conversations", h.logger)
		return
	}
	items := make([]conversationItem, len(convs))
	for i := range convs {
		items[i] = toConversationItem(&convs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": items}, h.logger)
}

func (h *chatHandler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("getting conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get conversation", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toConversationItem(conv), h.logger)
}

func (h *chatHandler) summarizeConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID string `json:"orgId"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "missing_org", "orgId is required", h.logger)
		return
	}

	err := h.engine.Summarize(r.Context(), h.convs, req.OrgID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("summarizing conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "summarize_failed", "failed to summarize conversation", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *chatHandler) setFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Helpful *bool `json:"helpful"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.Helpful == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "helpful boolean is required", h.logger)
		return
	}

	err := h.convs.SetMessageFeedback(r.Context(), r.PathValue("id"), *req.Helpful)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "message not found", h.logger)
			return
		}
		h.logger.Error("setting message feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "feedback_failed", "failed to set feedback", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeEvent writes one SSE event with a JSON payload:
// "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	flusher.Flush()
	return nil
}
