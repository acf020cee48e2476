// Package ledger enforces plan quotas over the usage counters: chat
// credits, document bytes, project counts and monthly message caps.
//
// The ledger never caches balances; every gate re-reads or atomically
// mutates the database so concurrent requests cannot overspend.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/plan"
	"github.com/docbase/docbase/internal/store"
)

// Accounts is the slice of the store the ledger needs. Satisfied by
// *store.Store.
type Accounts interface {
	GetOrg(ctx context.Context, id string) (*store.Org, error)
	CountProjects(ctx context.Context, orgID string) (int, error)
	ConsumeChatCredit(ctx context.Context, orgID string) (bool, error)
	RefundChatCredit(ctx context.Context, orgID string) error
	MonthlyReset(ctx context.Context, orgID string, credits int) (bool, error)
	AddOrgDocumentBytes(ctx context.Context, orgID string, delta int64) error
	AddProjectDocumentBytes(ctx context.Context, projectID string, delta int64) error
	IncrementChatUsed(ctx context.Context, projectID string) error
}

// Ledger gates operations against plan limits.
type Ledger struct {
	accounts Accounts
	logger   log.Logger
	now      func() time.Time
}

// New creates a Ledger.
func New(accounts Accounts, logger log.Logger) (*Ledger, error) {
	if accounts == nil {
		return nil, fmt.Errorf("accounts store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Ledger{accounts: accounts, logger: logger, now: time.Now}, nil
}

// CanCreateProject reports whether the org is under its plan's project cap.
func (l *Ledger) CanCreateProject(ctx context.Context, orgID string) (bool, error) {
	org, err := l.accounts.GetOrg(ctx, orgID)
	if err != nil {
		return false, err
	}
	count, err := l.accounts.CountProjects(ctx, orgID)
	if err != nil {
		return false, err
	}
	return count < plan.LimitsFor(org.Plan).Projects, nil
}

// GateDocumentBytes reports whether adding addBytes keeps the org under its
// plan's document byte limit.
func (l *Ledger) GateDocumentBytes(ctx context.Context, orgID string, addBytes int64) (bool, error) {
	org, err := l.accounts.GetOrg(ctx, orgID)
	if err != nil {
		return false, err
	}
	limit := plan.LimitsFor(org.Plan).DocumentBytes
	return org.DocumentBytes+addBytes <= limit, nil
}

// CommitDocumentBytes records indexed bytes against both the org and the
// project. delta may be negative on deletion.
func (l *Ledger) CommitDocumentBytes(ctx context.Context, orgID, projectID string, delta int64) error {
	if err := l.accounts.AddOrgDocumentBytes(ctx, orgID, delta); err != nil {
		return err
	}
	if err := l.accounts.AddProjectDocumentBytes(ctx, projectID, delta); err != nil {
		return err
	}
	l.logger.Debug("document bytes committed", "org_id", orgID, "project_id", projectID, "delta", delta)
	return nil
}

// HasChatCredit reports whether the org holds at least one chat credit,
// performing the lazy monthly refresh for eligible tiers when the balance
// is empty. The balance is never decremented: answering questions is gated
// on credits but does not spend them.
func (l *Ledger) HasChatCredit(ctx context.Context, orgID string) (bool, error) {
	org, err := l.accounts.GetOrg(ctx, orgID)
	if err != nil {
		return false, err
	}
	if org.ChatCredits >= 1 {
		return true, nil
	}

	refreshed, err := l.maybeMonthlyReset(ctx, orgID, org)
	if err != nil || !refreshed {
		return false, err
	}
	org, err = l.accounts.GetOrg(ctx, orgID)
	if err != nil {
		return false, err
	}
	return org.ChatCredits >= 1, nil
}

// ConsumeChatCredit spends one org credit, performing the lazy monthly
// refresh for eligible tiers when the balance is empty. Returns false when
// no credit could be obtained. Only summarization spends credits.
func (l *Ledger) ConsumeChatCredit(ctx context.Context, orgID string) (bool, error) {
	ok, err := l.accounts.ConsumeChatCredit(ctx, orgID)
	if err != nil || ok {
		return ok, err
	}

	org, err := l.accounts.GetOrg(ctx, orgID)
	if err != nil {
		return false, err
	}
	refreshed, err := l.maybeMonthlyReset(ctx, orgID, org)
	if err != nil || !refreshed {
		return false, err
	}
	return l.accounts.ConsumeChatCredit(ctx, orgID)
}

// maybeMonthlyReset applies the monthly credit refresh when the org's tier
// is eligible and its last refresh falls in an earlier calendar month.
// Returns whether a refresh took place (by this call or a concurrent one).
func (l *Ledger) maybeMonthlyReset(ctx context.Context, orgID string, org *store.Org) (bool, error) {
	if !plan.EligibleForMonthlyReset(org.Plan) {
		return false, nil
	}
	if !monthEarlier(org.PaymentsUpdatedAt, l.now()) {
		return false, nil
	}

	reset, err := l.accounts.MonthlyReset(ctx, orgID, plan.MonthlyFreeCredits)
	if err != nil {
		return false, err
	}
	if !reset {
		// Lost the race to a concurrent reset; the winner's grant is
		// already spendable.
		l.logger.Debug("monthly reset already applied", "org_id", orgID)
	}
	return true, nil
}

// RefundChatCredit returns a spent credit, for summaries that failed before
// producing a result.
func (l *Ledger) RefundChatCredit(ctx context.Context, orgID string) error {
	return l.accounts.RefundChatCredit(ctx, orgID)
}

// RecordChatMessage bumps the project's monthly message counter.
func (l *Ledger) RecordChatMessage(ctx context.Context, projectID string) error {
	return l.accounts.IncrementChatUsed(ctx, projectID)
}

// UnderMessageCap reports whether the project is below its plan's monthly
// message cap.
func (l *Ledger) UnderMessageCap(ctx context.Context, orgID string, chatUsed int) (bool, error) {
	org, err := l.accounts.GetOrg(ctx, orgID)
	if err != nil {
		return false, err
	}
	return chatUsed < plan.LimitsFor(org.Plan).Messages, nil
}

// MaxCrawlPages returns the org's crawl page cap.
func (l *Ledger) MaxCrawlPages(ctx context.Context, orgID string) (int, error) {
	org, err := l.accounts.GetOrg(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return plan.LimitsFor(org.Plan).CrawlPages, nil
}

// monthEarlier reports whether a falls in a strictly earlier calendar
// month than b, in UTC.
func monthEarlier(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	if a.Year() != b.Year() {
		return a.Year() < b.Year()
	}
	return a.Month() < b.Month()
}
