package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/plan"
	"github.com/docbase/docbase/internal/store"
	"github.com/docbase/docbase/internal/testutil"
)

func setup(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	tdb := testutil.SetupTestDB(t)
	s, err := store.New(tdb.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func seedProject(t *testing.T, s *store.Store) (*store.Org, *store.Project) {
	t.Helper()
	ctx := context.Background()
	org, err := s.CreateOrg(ctx, "Acme", plan.Basic, 5)
	if err != nil {
		t.Fatalf("CreateOrg: %v", err)
	}
	project, err := s.CreateProject(ctx, org.ID, "Docs", "DocBot", "Be helpful.")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return org, project
}

func TestOrgAndProjectLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	org, project := seedProject(t, s)

	got, err := s.GetOrg(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetOrg: %v", err)
	}
	if got.Plan != plan.Basic || got.ChatCredits != 5 {
		t.Errorf("org = %+v", got)
	}

	n, err := s.CountProjects(ctx, org.ID)
	if err != nil {
		t.Fatalf("CountProjects: %v", err)
	}
	if n != 1 {
		t.Errorf("CountProjects = %d, want 1", n)
	}

	gotProject, err := s.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if gotProject.BotName != "DocBot" || gotProject.Prompt != "Be helpful." {
		t.Errorf("project = %+v", gotProject)
	}

	if err := s.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.GetProject(ctx, project.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetProject after delete = %v, want ErrNotFound", err)
	}
}

func TestGetOrg_NotFound(t *testing.T) {
	s := setup(t)
	_, err := s.GetOrg(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConsumeChatCredit_StopsAtZero(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	org, err := s.CreateOrg(ctx, "Tiny", plan.Free, 2)
	if err != nil {
		t.Fatalf("CreateOrg: %v", err)
	}

	for i := range 2 {
		ok, err := s.ConsumeChatCredit(ctx, org.ID)
		if err != nil {
			t.Fatalf("ConsumeChatCredit #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("ConsumeChatCredit #%d = false, credits remain", i)
		}
	}

	ok, err := s.ConsumeChatCredit(ctx, org.ID)
	if err != nil {
		t.Fatalf("ConsumeChatCredit: %v", err)
	}
	if ok {
		t.Error("consumed a credit from an empty balance")
	}

	if err := s.RefundChatCredit(ctx, org.ID); err != nil {
		t.Fatalf("RefundChatCredit: %v", err)
	}
	got, err := s.GetOrg(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetOrg: %v", err)
	}
	if got.ChatCredits != 1 {
		t.Errorf("credits after refund = %d, want 1", got.ChatCredits)
	}
}

func TestMonthlyReset_SameMonthIsNoop(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	// payments_updated_at defaults to now(), so the boundary guard must
	// refuse a reset within the same month.
	org, err := s.CreateOrg(ctx, "Fresh", plan.Free, 0)
	if err != nil {
		t.Fatalf("CreateOrg: %v", err)
	}
	reset, err := s.MonthlyReset(ctx, org.ID, 25)
	if err != nil {
		t.Fatalf("MonthlyReset: %v", err)
	}
	if reset {
		t.Error("reset granted within the same month")
	}
}

func TestMonthlyReset_GrantsAfterMonthBoundary(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	org, _ := seedProject(t, s)
	_, err := s.Pool().Exec(ctx,
		`UPDATE orgs SET payments_updated_at = now() - interval '40 days' WHERE id = $1`, org.ID)
	if err != nil {
		t.Fatalf("backdating org: %v", err)
	}
	projects, err := s.ListProjects(ctx, org.ID)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if err := s.IncrementChatUsed(ctx, projects[0].ID); err != nil {
		t.Fatalf("IncrementChatUsed: %v", err)
	}

	reset, err := s.MonthlyReset(ctx, org.ID, 25)
	if err != nil {
		t.Fatalf("MonthlyReset: %v", err)
	}
	if !reset {
		t.Fatal("reset refused across a month boundary")
	}

	got, err := s.GetOrg(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetOrg: %v", err)
	}
	if got.ChatCredits != 25 {
		t.Errorf("credits = %d, want 25", got.ChatCredits)
	}
	projects, err = s.ListProjects(ctx, org.ID)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if projects[0].ChatUsed != 0 {
		t.Errorf("chat_used = %d, want 0 after reset", projects[0].ChatUsed)
	}

	// A second reset in the same month must lose the boundary check.
	reset, err = s.MonthlyReset(ctx, org.ID, 25)
	if err != nil {
		t.Fatalf("MonthlyReset: %v", err)
	}
	if reset {
		t.Error("double reset within one month")
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	_, project := seedProject(t, s)

	doc, err := s.CreateDocument(ctx, project.ID, "URL", "https://docs.example.com",
		[]byte(`{"url": "https://docs.example.com"}`))
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.Status != store.StatusPending {
		t.Errorf("status = %q, want PENDING", doc.Status)
	}

	if err := s.SetDocumentStatus(ctx, doc.ID, store.StatusSuccess); err != nil {
		t.Fatalf("SetDocumentStatus: %v", err)
	}
	if err := s.SetDocumentSize(ctx, doc.ID, 4096); err != nil {
		t.Fatalf("SetDocumentSize: %v", err)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != store.StatusSuccess || got.SizeBytes != 4096 {
		t.Errorf("doc = %+v", got)
	}

	docs, err := s.ListDocuments(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("ListDocuments = %d docs, want 1", len(docs))
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDocument after delete = %v, want ErrNotFound", err)
	}
}

func TestUsageCounters(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	org, project := seedProject(t, s)

	if err := s.AddOrgDocumentBytes(ctx, org.ID, 1000); err != nil {
		t.Fatalf("AddOrgDocumentBytes: %v", err)
	}
	if err := s.AddOrgDocumentBytes(ctx, org.ID, -400); err != nil {
		t.Fatalf("AddOrgDocumentBytes: %v", err)
	}
	if err := s.AddProjectDocumentBytes(ctx, project.ID, 600); err != nil {
		t.Fatalf("AddProjectDocumentBytes: %v", err)
	}
	if err := s.AddProjectTokens(ctx, project.ID, 123); err != nil {
		t.Fatalf("AddProjectTokens: %v", err)
	}

	gotOrg, err := s.GetOrg(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetOrg: %v", err)
	}
	if gotOrg.DocumentBytes != 600 {
		t.Errorf("org document_bytes = %d, want 600", gotOrg.DocumentBytes)
	}
	gotProject, err := s.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if gotProject.DocumentBytes != 600 || gotProject.TokensUsed != 123 {
		t.Errorf("project = %+v", gotProject)
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	_, project := seedProject(t, s)

	conv, err := s.CreateConversation(ctx, project.ID, store.Turn{
		Question: "How do I reset my password?",
		Answer:   "Use the account settings page.",
		Sources:  "https://docs.example.com/account",
		Tokens:   30,
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.FirstMsg != "How do I reset my password?" {
		t.Errorf("first_msg = %q", conv.FirstMsg)
	}

	conv, err = s.AppendTurn(ctx, conv.ID, store.Turn{
		Question: "And two-factor auth?",
		Answer:   "Enable it under Security.",
		Tokens:   20,
	})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if conv.TokensUsed != 50 {
		t.Errorf("tokens_used = %d, want 50", conv.TokensUsed)
	}
	if len(conv.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(conv.Messages))
	}
	if conv.Messages[0].Role != store.RoleUser || conv.Messages[1].Role != store.RoleAssistant {
		t.Errorf("roles = %q, %q", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if conv.Messages[1].Sources != "https://docs.example.com/account" {
		t.Errorf("sources = %q", conv.Messages[1].Sources)
	}

	// Token charges land on the project too.
	gotProject, err := s.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if gotProject.TokensUsed != 50 {
		t.Errorf("project tokens_used = %d, want 50", gotProject.TokensUsed)
	}

	if err := s.SetConversationSummary(ctx, conv.ID, "Password and 2FA help.", store.RatingPositive); err != nil {
		t.Fatalf("SetConversationSummary: %v", err)
	}
	if err := s.SetMessageFeedback(ctx, conv.Messages[1].ID, true); err != nil {
		t.Fatalf("SetMessageFeedback: %v", err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Summary != "Password and 2FA help." || got.Rating != store.RatingPositive {
		t.Errorf("summary = %q rating = %q", got.Summary, got.Rating)
	}
	if got.Messages[1].Feedback == nil || !*got.Messages[1].Feedback {
		t.Error("feedback not recorded")
	}

	list, err := s.ListConversations(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListConversations = %d, want 1", len(list))
	}

	_, err = s.AppendTurn(ctx, "00000000-0000-0000-0000-000000000000", store.Turn{Question: "q", Answer: "a"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AppendTurn to missing conversation = %v, want ErrNotFound", err)
	}
}
