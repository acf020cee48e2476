// Package store is the relational persistence layer: orgs, projects,
// documents, conversations and messages in PostgreSQL via pgx.
//
// Usage counters (credits, bytes, tokens) only ever change through atomic
// SQL increments, so concurrent chat turns and indexing runs cannot lose
// updates to read-modify-write races.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/plan"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the connection pool with typed queries.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store over the given pool.
func New(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pool for health checks and vector queries.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// CreateOrg inserts a new org on the given plan with the initial credit
// grant.
func (s *Store) CreateOrg(ctx context.Context, name string, tier plan.Tier, credits int) (*Org, error) {
	org := &Org{ID: uuid.NewString(), Name: name, Plan: tier, ChatCredits: credits}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orgs (id, name, plan, chat_credits, payments_updated_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING payments_updated_at, created_at`,
		org.ID, name, string(tier), credits,
	).Scan(&org.PaymentsUpdatedAt, &org.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating org: %w", err)
	}
	return org, nil
}

// GetOrg fetches an org by ID.
func (s *Store) GetOrg(ctx context.Context, id string) (*Org, error) {
	org := &Org{}
	var tier string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, plan, chat_credits, document_bytes, payments_updated_at, created_at
		FROM orgs WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &tier, &org.ChatCredits, &org.DocumentBytes,
		&org.PaymentsUpdatedAt, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("org %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting org: %w", err)
	}
	org.Plan = plan.Tier(tier)
	return org, nil
}

// ConsumeChatCredit atomically spends one org credit. Returns false without
// error when no credit is available; the caller decides what a refusal
// means for its tier.
func (s *Store) ConsumeChatCredit(ctx context.Context, orgID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orgs SET chat_credits = chat_credits - 1
		WHERE id = $1 AND chat_credits >= 1`, orgID)
	if err != nil {
		return false, fmt.Errorf("consuming chat credit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RefundChatCredit atomically returns one org credit. Used when a gated
// operation fails after the credit was taken.
func (s *Store) RefundChatCredit(ctx context.Context, orgID string) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE orgs SET chat_credits = chat_credits + 1 WHERE id = $1`, orgID); err != nil {
		return fmt.Errorf("refunding chat credit: %w", err)
	}
	return nil
}

// AddOrgDocumentBytes atomically adjusts the org-wide document byte
// counter. delta may be negative on document deletion.
func (s *Store) AddOrgDocumentBytes(ctx context.Context, orgID string, delta int64) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE orgs SET document_bytes = document_bytes + $2 WHERE id = $1`, orgID, delta); err != nil {
		return fmt.Errorf("updating org document bytes: %w", err)
	}
	return nil
}

// MonthlyReset grants the monthly free credits and zeroes every project's
// chat_used, in one transaction. The WHERE clause re-checks the month
// boundary so two racing callers cannot double-grant.
func (s *Store) MonthlyReset(ctx context.Context, orgID string, credits int) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning monthly reset: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orgs
		SET chat_credits = chat_credits + $2, payments_updated_at = now()
		WHERE id = $1
		  AND date_trunc('month', payments_updated_at) < date_trunc('month', now())`,
		orgID, credits)
	if err != nil {
		return false, fmt.Errorf("granting monthly credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Another request already reset this month.
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE projects SET chat_used = 0 WHERE org_id = $1`, orgID); err != nil {
		return false, fmt.Errorf("resetting project chat usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing monthly reset: %w", err)
	}
	s.logger.Info("monthly credits granted", "org_id", orgID, "credits", credits)
	return true, nil
}

// CreateProject inserts a new project for an org.
func (s *Store) CreateProject(ctx context.Context, orgID, name, botName, prompt string) (*Project, error) {
	p := &Project{ID: uuid.NewString(), OrgID: orgID, Name: name, BotName: botName, Prompt: prompt}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (id, org_id, name, bot_name, prompt)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING summary_enabled, created_at`,
		p.ID, orgID, name, botName, prompt,
	).Scan(&p.SummaryEnabled, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, name, bot_name, prompt, tokens_used, document_bytes,
		       chat_used, summary_enabled, created_at
		FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.BotName, &p.Prompt, &p.TokensUsed,
		&p.DocumentBytes, &p.ChatUsed, &p.SummaryEnabled, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

// ListProjects returns an org's projects, newest first.
func (s *Store) ListProjects(ctx context.Context, orgID string) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, name, bot_name, prompt, tokens_used, document_bytes,
		       chat_used, summary_enabled, created_at
		FROM projects WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.BotName, &p.Prompt,
			&p.TokensUsed, &p.DocumentBytes, &p.ChatUsed, &p.SummaryEnabled, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountProjects counts an org's projects, for the plan gate on creation.
func (s *Store) CountProjects(ctx context.Context, orgID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM projects WHERE org_id = $1`, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return n, nil
}

// AddProjectDocumentBytes atomically adjusts a project's document byte
// counter.
func (s *Store) AddProjectDocumentBytes(ctx context.Context, projectID string, delta int64) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE projects SET document_bytes = document_bytes + $2 WHERE id = $1`,
		projectID, delta); err != nil {
		return fmt.Errorf("updating project document bytes: %w", err)
	}
	return nil
}

// IncrementChatUsed atomically bumps a project's monthly message counter.
func (s *Store) IncrementChatUsed(ctx context.Context, projectID string) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE projects SET chat_used = chat_used + 1 WHERE id = $1`, projectID); err != nil {
		return fmt.Errorf("incrementing chat usage: %w", err)
	}
	return nil
}

// AddProjectTokens atomically adds to a project's lifetime token counter.
func (s *Store) AddProjectTokens(ctx context.Context, projectID string, tokens int64) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE projects SET tokens_used = tokens_used + $2 WHERE id = $1`,
		projectID, tokens); err != nil {
		return fmt.Errorf("updating project tokens: %w", err)
	}
	return nil
}

// DeleteProject removes a project. Documents, conversations and messages
// go with it via ON DELETE CASCADE; vectors and blobs are the caller's
// responsibility.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	return nil
}
