package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/docbase/docbase/internal/chat"
	"github.com/docbase/docbase/internal/store"
)

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	event string
	data  string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if after, ok := strings.CutPrefix(line, "event: "); ok {
				ev.event = after
			}
			if after, ok := strings.CutPrefix(line, "data: "); ok {
				ev.data = after
			}
		}
		events = append(events, ev)
	}
	return events
}

func TestChatSend_StreamsChunksAndPersists(t *testing.T) {
	f := newServerFixture(t)
	project, _ := f.store.CreateProject(context.Background(), "org-1", "Docs", "", "")

	body := fmt.Sprintf(`{"orgId": "org-1", "projectId": %q, "question": "What is 42?"}`, project.ID)
	w := f.do(t, http.MethodPost, "/api/v1/chat", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	events := parseSSE(t, w.Body.String())
	if len(events) < 2 {
		t.Fatalf("events = %d, want chunks plus done", len(events))
	}

	var streamed strings.Builder
	var done *donePayload
	for _, ev := range events {
		switch ev.event {
		case sseChunk:
			var p chunkPayload
			if err := json.Unmarshal([]byte(ev.data), &p); err != nil {
				t.Fatalf("decoding chunk: %v", err)
			}
			streamed.WriteString(p.Text)
		case sseDone:
			done = &donePayload{}
			if err := json.Unmarshal([]byte(ev.data), done); err != nil {
				t.Fatalf("decoding done: %v", err)
			}
		}
	}

	if done == nil {
		t.Fatal("no done event")
	}
	if streamed.String() != done.Answer {
		t.Errorf("streamed %q, answer %q", streamed.String(), done.Answer)
	}
	if done.Sources != "https://docs.example.com/a" {
		t.Errorf("sources = %q", done.Sources)
	}

	// The turn was persisted and the done event carries the new
	// conversation ID.
	conv, err := f.store.GetConversation(context.Background(), done.ConversationID)
	if err != nil {
		t.Fatalf("conversation not persisted: %v", err)
	}
	if conv.FirstMsg != "What is 42?" {
		t.Errorf("first_msg = %q", conv.FirstMsg)
	}
	if len(conv.Messages) != 2 {
		t.Errorf("messages = %d", len(conv.Messages))
	}
}

func TestChatSend_ContinuesConversation(t *testing.T) {
	f := newServerFixture(t)
	project, _ := f.store.CreateProject(context.Background(), "org-1", "Docs", "", "")
	conv, _ := f.store.CreateConversation(context.Background(), project.ID, store.Turn{Question: "Q1", Answer: "A1"})

	body := fmt.Sprintf(`{"orgId": "org-1", "projectId": %q, "conversationId": %q, "question": "Q2"}`,
		project.ID, conv.ID)
	w := f.do(t, http.MethodPost, "/api/v1/chat", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	got, _ := f.store.GetConversation(context.Background(), conv.ID)
	if len(got.Messages) != 4 {
		t.Errorf("messages = %d, want 4", len(got.Messages))
	}
}

func TestChatSend_MessageCapReturns429(t *testing.T) {
	f := newServerFixture(t)
	project, _ := f.store.CreateProject(context.Background(), "org-1", "Docs", "", "")
	f.quotas.underCap = false

	body := fmt.Sprintf(`{"orgId": "org-1", "projectId": %q, "question": "Q"}`, project.ID)
	w := f.do(t, http.MethodPost, "/api/v1/chat", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}

func TestChatSend_ValidationErrors(t *testing.T) {
	f := newServerFixture(t)
	project, _ := f.store.CreateProject(context.Background(), "org-1", "Docs", "", "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing question", fmt.Sprintf(`{"orgId": "org-1", "projectId": %q}`, project.ID), http.StatusBadRequest},
		{"missing project", `{"orgId": "org-1", "question": "Q"}`, http.StatusBadRequest},
		{"unknown project", `{"orgId": "org-1", "projectId": "nope", "question": "Q"}`, http.StatusNotFound},
		{"unknown conversation", fmt.Sprintf(`{"orgId": "org-1", "projectId": %q, "conversationId": "nope", "question": "Q"}`, project.ID), http.StatusNotFound},
		{"bad json", `{"orgId":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, http.MethodPost, "/api/v1/chat", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestChatSend_EngineErrorBecomesErrorEvent(t *testing.T) {
	f := newServerFixture(t)
	project, _ := f.store.CreateProject(context.Background(), "org-1", "Docs", "", "")
	f.engine.err = chat.ErrRateLimited

	body := fmt.Sprintf(`{"orgId": "org-1", "projectId": %q, "question": "Q"}`, project.ID)
	w := f.do(t, http.MethodPost, "/api/v1/chat", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	events := parseSSE(t, w.Body.String())
	if len(events) != 1 || events[0].event != sseError {
		t.Fatalf("events = %+v, want one error event", events)
	}
	var p errorBody
	if err := json.Unmarshal([]byte(events[0].data), &p); err != nil {
		t.Fatalf("decoding error event: %v", err)
	}
	if p.Code != "rate_limited" {
		t.Errorf("code = %q", p.Code)
	}
}

func TestListAndGetConversations(t *testing.T) {
	f := newServerFixture(t)
	conv, _ := f.store.CreateConversation(context.Background(), "proj-1", store.Turn{Question: "Q", Answer: "A", Sources: "https://x"})

	w := f.do(t, http.MethodGet, "/api/v1/conversations?projectId=proj-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Conversations []conversationItem `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list.Conversations) != 1 {
		t.Fatalf("conversations = %d", len(list.Conversations))
	}

	w = f.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got conversationItem
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding conversation: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Sources != "https://x" {
		t.Errorf("conversation = %+v", got)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/conversations?projectId=", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing projectId status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/conversations/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing conversation status = %d", w.Code)
	}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(context.Background(), ServerConfig{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}
