package chat

import (
	"context"
	"testing"

	"github.com/docbase/docbase/internal/plan"
	"github.com/docbase/docbase/internal/store"
)

// fakeConvs holds one conversation and records summary writes.
type fakeConvs struct {
	conv       store.Conversation
	summary    string
	rating     string
	summarySet bool
}

func (f *fakeConvs) CreateConversation(_ context.Context, projectID string, turn store.Turn) (*store.Conversation, error) {
	f.conv = store.Conversation{
		ID:         "conv-1",
		ProjectID:  projectID,
		FirstMsg:   turn.Question,
		TokensUsed: turn.Tokens,
		Messages: []store.Message{
			{Role: store.RoleUser, Text: turn.Question},
			{Role: store.RoleAssistant, Text: turn.Answer, Sources: turn.Sources},
		},
	}
	cp := f.conv
	return &cp, nil
}

func (f *fakeConvs) AppendTurn(_ context.Context, _ string, turn store.Turn) (*store.Conversation, error) {
	f.conv.TokensUsed += turn.Tokens
	f.conv.Messages = append(f.conv.Messages,
		store.Message{Role: store.RoleUser, Text: turn.Question},
		store.Message{Role: store.RoleAssistant, Text: turn.Answer, Sources: turn.Sources},
	)
	cp := f.conv
	return &cp, nil
}

func (f *fakeConvs) GetConversation(_ context.Context, _ string) (*store.Conversation, error) {
	cp := f.conv
	return &cp, nil
}

func (f *fakeConvs) SetConversationSummary(_ context.Context, _, summary, rating string) error {
	f.summary, f.rating, f.summarySet = summary, rating, true
	return nil
}

func summaryConv() store.Conversation {
	return store.Conversation{
		ID:        "conv-1",
		ProjectID: "proj-1",
		Messages: []store.Message{
			{Role: store.RoleUser, Text: "How do I export my data?"},
			{Role: store.RoleAssistant, Text: "Use Settings > Export."},
			{Role: store.RoleUser, Text: "Great, that worked!"},
		},
	}
}

func TestSummarize_PersistsSummaryAndSentiment(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)
	f.projects.project.SummaryEnabled = true
	f.llm.AddResponse("Respond with JSON only",
		`{"summary": "User asked about data export and succeeded.", "sentiment": "POSITIVE"}`)

	convs := &fakeConvs{conv: summaryConv()}
	if err := f.engine.Summarize(context.Background(), convs, "org-1", "conv-1"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if !convs.summarySet {
		t.Fatal("summary not persisted")
	}
	if convs.rating != store.RatingPositive {
		t.Errorf("rating = %q", convs.rating)
	}
	if f.credits.balance != 4 {
		t.Errorf("balance = %d, want 4 (one credit consumed)", f.credits.balance)
	}
	if f.credits.recorded != 1 {
		t.Errorf("recorded = %d, want 1", f.credits.recorded)
	}
}

func TestSummarize_DisabledProjectIsSilentNoop(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)
	f.projects.project.SummaryEnabled = false

	convs := &fakeConvs{conv: summaryConv()}
	if err := f.engine.Summarize(context.Background(), convs, "org-1", "conv-1"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if convs.summarySet {
		t.Error("summary written for disabled project")
	}
	if f.credits.balance != 5 {
		t.Errorf("balance = %d, credit consumed despite no-op", f.credits.balance)
	}
	if f.llm.CallCount() != 0 {
		t.Error("model called despite disabled summaries")
	}
}

func TestSummarize_NoCreditsIsSilentNoop(t *testing.T) {
	f := newFixture(t, plan.Basic, 0)
	f.projects.project.SummaryEnabled = true

	convs := &fakeConvs{conv: summaryConv()}
	if err := f.engine.Summarize(context.Background(), convs, "org-1", "conv-1"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if convs.summarySet || f.llm.CallCount() != 0 {
		t.Error("summary attempted without credits")
	}
}

func TestSummarize_InvalidJSONRefundsCredit(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)
	f.projects.project.SummaryEnabled = true
	f.llm.AddResponse("Respond with JSON only", "Sure! The user asked about exporting data.")

	convs := &fakeConvs{conv: summaryConv()}
	if err := f.engine.Summarize(context.Background(), convs, "org-1", "conv-1"); err == nil {
		t.Fatal("expected error for non-JSON summary")
	}
	if convs.summarySet {
		t.Error("summary persisted despite invalid payload")
	}
	if f.credits.balance != 5 {
		t.Errorf("balance = %d, want 5 (credit refunded)", f.credits.balance)
	}
}

func TestSummarize_FencedJSONIsAccepted(t *testing.T) {
	f := newFixture(t, plan.Basic, 5)
	f.projects.project.SummaryEnabled = true
	f.llm.AddResponse("Respond with JSON only",
		"```json\n{\"summary\": \"Export question resolved.\", \"sentiment\": \"NEUTRAL\"}\n```")

	convs := &fakeConvs{conv: summaryConv()}
	if err := f.engine.Summarize(context.Background(), convs, "org-1", "conv-1"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if convs.rating != store.RatingNeutral {
		t.Errorf("rating = %q", convs.rating)
	}
}

func TestPersist_NewConversation(t *testing.T) {
	convs := &fakeConvs{}
	req := Request{ProjectID: "proj-1", Question: "Q?"}
	res := &Result{Answer: "A.", Sources: "https://x/1", Tokens: 42}

	conv, err := Persist(context.Background(), convs, req, res)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if conv.FirstMsg != "Q?" {
		t.Errorf("first_msg = %q", conv.FirstMsg)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Role != store.RoleUser || conv.Messages[1].Role != store.RoleAssistant {
		t.Errorf("message roles = %q, %q", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if conv.TokensUsed != 42 {
		t.Errorf("tokens_used = %d", conv.TokensUsed)
	}
}

func TestPersist_AppendsToExisting(t *testing.T) {
	convs := &fakeConvs{conv: summaryConv()}
	req := Request{ProjectID: "proj-1", ConversationID: "conv-1", Question: "Another?"}
	res := &Result{Answer: "Sure.", Tokens: 10}

	conv, err := Persist(context.Background(), convs, req, res)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(conv.Messages) != 5 {
		t.Errorf("messages = %d, want 5", len(conv.Messages))
	}
	if conv.TokensUsed != 10 {
		t.Errorf("tokens_used = %d", conv.TokensUsed)
	}
}
