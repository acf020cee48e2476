package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docbase/docbase/internal/plan"
)

func TestStream_ChunksThenDone(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)

	var chunks []string
	var done *Result
	for ev, err := range f.engine.Stream(context.Background(), Request{
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Question:  "What is the vacation policy?",
	}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		switch ev.Type {
		case EventChunk:
			chunks = append(chunks, ev.Data)
		case EventDone:
			done = ev.Result
		}
	}

	if done == nil {
		t.Fatal("no done event")
	}
	if got := strings.Join(chunks, ""); got != done.Answer {
		t.Errorf("joined chunks = %q, answer = %q", got, done.Answer)
	}
	if done.Answer != "mock answer about the docs" {
		t.Errorf("answer = %q", done.Answer)
	}
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
}

func TestStream_ErrorIsYielded(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)

	var streamErr error
	for _, err := range f.engine.Stream(context.Background(), Request{
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Question:  "",
	}) {
		if err != nil {
			streamErr = err
		}
	}
	if streamErr == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestStream_ConsumerBreakStopsGeneration(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)

	seen := 0
	for ev, err := range f.engine.Stream(context.Background(), Request{
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Question:  "What is the vacation policy?",
	}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if ev.Type == EventChunk {
			seen++
			break
		}
	}
	if seen != 1 {
		t.Fatalf("seen = %d, want 1", seen)
	}
}

func TestStream_ModelFailureStillCompletes(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)
	f.llm.FailWith(errors.New("backend unavailable"))

	var done *Result
	for ev, err := range f.engine.Stream(context.Background(), Request{
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Question:  "What is the vacation policy?",
	}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if ev.Type == EventDone {
			done = ev.Result
		}
	}
	if done == nil {
		t.Fatal("no done event")
	}
	if done.Answer != fallbackAnswer {
		t.Errorf("answer = %q, want fallback", done.Answer)
	}
}
