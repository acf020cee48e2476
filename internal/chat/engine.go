// Package chat answers questions over a project's indexed documents:
// retrieval-augmented generation with credit gating, streaming and token
// accounting.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/docbase/docbase/internal/loader"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/plan"
	"github.com/docbase/docbase/internal/store"
	"github.com/docbase/docbase/internal/vector"
)

const (
	// topK is how many chunks retrieval feeds into the prompt.
	topK = 4

	// limitMessage is the canned answer when a free-tier org runs out of
	// credits.
	limitMessage = "You have used all of your message credits for this month. Please upgrade your plan to keep chatting."

	// fallbackAnswer is returned when the model fails mid-generation. A
	// degraded answer, not an error: the user already streamed tokens.
	fallbackAnswer = "I'm sorry, I wasn't able to generate an answer just now. Please try asking again."
)

// ErrRateLimited indicates the engine's request rate cap rejected the turn.
var ErrRateLimited = errors.New("chat rate limit exceeded")

// Turn is one prior exchange supplied as history.
type Turn struct {
	Role    string // store.RoleUser or store.RoleAssistant
	Content string
}

// Request is one chat turn.
type Request struct {
	OrgID          string
	ProjectID      string
	ConversationID string // empty starts a new conversation on Persist
	Question       string
	History        []Turn

	// OnToken receives each streamed answer fragment. Optional.
	OnToken func(token string)
}

// Result is the outcome of a turn.
type Result struct {
	Answer       string
	Sources      string // distinct URL sources, comma-joined
	Tokens       int64  // BPE tokens consumed by this turn
	LimitReached bool
}

// Searcher is the vector store surface the engine needs. Satisfied by
// *vector.Store.
type Searcher interface {
	Search(ctx context.Context, namespace, query string, topK int) ([]vector.Result, error)
}

// Credits is the ledger surface the engine needs. Answering is gated on
// the balance without spending it; only summarization consumes a credit.
// Satisfied by *ledger.Ledger.
type Credits interface {
	HasChatCredit(ctx context.Context, orgID string) (bool, error)
	ConsumeChatCredit(ctx context.Context, orgID string) (bool, error)
	RefundChatCredit(ctx context.Context, orgID string) error
	RecordChatMessage(ctx context.Context, projectID string) error
}

// Projects is the relational store surface the engine needs. Satisfied by
// *store.Store.
type Projects interface {
	GetOrg(ctx context.Context, id string) (*store.Org, error)
	GetProject(ctx context.Context, id string) (*store.Project, error)
}

// Counter counts BPE tokens. Satisfied by *Tokenizer.
type Counter interface {
	Count(text string) int
}

// Config assembles an Engine.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string
	Searcher  Searcher
	Credits   Credits
	Projects  Projects
	Counter   Counter
	Logger    log.Logger

	// Limiter caps generation rate per engine instance. Nil uses a
	// default of 10 req/s with a burst of 30.
	Limiter *rate.Limiter
}

// Engine answers questions over indexed documents.
//
// Engine is stateless per request and safe for concurrent use.
type Engine struct {
	g        *genkit.Genkit
	model    string
	searcher Searcher
	credits  Credits
	projects Projects
	counter  Counter
	limiter  *rate.Limiter
	logger   log.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.Searcher == nil || cfg.Credits == nil || cfg.Projects == nil {
		return nil, fmt.Errorf("searcher, credits and projects are required")
	}
	if cfg.Counter == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	return &Engine{
		g:        cfg.Genkit,
		model:    cfg.ModelName,
		searcher: cfg.Searcher,
		credits:  cfg.Credits,
		projects: cfg.Projects,
		counter:  cfg.Counter,
		limiter:  limiter,
		logger:   cfg.Logger,
	}, nil
}

// Answer runs one chat turn: credit gate, question condensation,
// retrieval, generation, source attribution and token accounting.
func (e *Engine) Answer(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("question is empty")
	}

	project, err := e.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	if !e.limiter.Allow() {
		return nil, ErrRateLimited
	}

	// The gate only checks the balance. Answering never spends a credit;
	// credits are consumed by summarization alone.
	ok, err := e.credits.HasChatCredit(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return e.answerWithoutCredit(ctx, req)
	}

	result, err := e.generateAnswer(ctx, project, req)
	if err != nil {
		return nil, err
	}

	if err := e.credits.RecordChatMessage(ctx, req.ProjectID); err != nil {
		e.logger.Error("recording chat message", "project_id", req.ProjectID, "error", err)
	}
	return result, nil
}

// answerWithoutCredit handles exhausted credits per tier: free tiers get a
// canned message, paid tiers degrade to raw document search.
func (e *Engine) answerWithoutCredit(ctx context.Context, req Request) (*Result, error) {
	org, err := e.projects.GetOrg(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	if org.Plan != plan.Professional && org.Plan != plan.Enterprise {
		if req.OnToken != nil {
			req.OnToken(limitMessage)
		}
		return &Result{Answer: limitMessage, LimitReached: true}, nil
	}

	// Search-only mode: no generation, just the closest chunks verbatim.
	hits, err := e.searcher.Search(ctx, req.ProjectID, req.Question, topK)
	if err != nil {
		return nil, fmt.Errorf("search-only retrieval: %w", err)
	}
	var parts []string
	for _, hit := range hits {
		parts = append(parts, hit.Content)
	}
	answer := strings.Join(parts, "\n\n")
	if req.OnToken != nil {
		req.OnToken(answer)
	}
	return &Result{
		Answer:       answer,
		Sources:      distinctSources(hits),
		LimitReached: true,
	}, nil
}

// generateAnswer is the credit-backed path: condense, retrieve, stuff,
// generate, attribute.
func (e *Engine) generateAnswer(ctx context.Context, project *store.Project, req Request) (*Result, error) {
	var tokens int64

	question := req.Question
	if len(req.History) > 0 {
		condensed, condenseTokens, err := e.condense(ctx, req.History, req.Question)
		if err != nil {
			e.logger.Warn("condensing question failed, using original", "error", err)
		} else {
			question = condensed
			tokens += condenseTokens
		}
	}

	hits, err := e.searcher.Search(ctx, req.ProjectID, question, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	system := systemPrompt(project, stuffContext(hits))
	messages := historyMessages(req.History)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(question)))

	opts := []ai.GenerateOption{
		ai.WithModelName(e.model),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
	}
	if req.OnToken != nil {
		opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			req.OnToken(chunk.Text())
			return nil
		}))
	}

	answer := fallbackAnswer
	resp, err := genkit.Generate(ctx, e.g, opts...)
	if err != nil {
		// Degraded, not failed: the turn still produced an answer.
		e.logger.Warn("generation failed, returning fallback", "project_id", project.ID, "error", err)
		if req.OnToken != nil {
			req.OnToken(fallbackAnswer)
		}
	} else {
		answer = resp.Text()
	}

	tokens += int64(e.counter.Count(system))
	for _, t := range req.History {
		tokens += int64(e.counter.Count(t.Content))
	}
	tokens += int64(e.counter.Count(question))
	tokens += int64(e.counter.Count(answer))

	return &Result{
		Answer:  answer,
		Sources: distinctSources(hits),
		Tokens:  tokens,
	}, nil
}

// condense rewrites a follow-up question into a standalone one using the
// conversation history. Returns the standalone question and the BPE tokens
// the call consumed.
func (e *Engine) condense(ctx context.Context, history []Turn, question string) (string, int64, error) {
	prompt := condensePrompt(history, question)

	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.model),
		ai.WithPrompt(prompt),
		ai.WithConfig(map[string]any{"temperature": 0.1}),
	)
	if err != nil {
		return "", 0, fmt.Errorf("condensing question: %w", err)
	}

	condensed := strings.TrimSpace(resp.Text())
	if condensed == "" {
		return "", 0, fmt.Errorf("condensed question is empty")
	}
	tokens := int64(e.counter.Count(prompt) + e.counter.Count(condensed))
	return condensed, tokens, nil
}

// distinctSources joins the distinct URL sources of the hits, preserving
// retrieval order. Non-URL chunks never appear: file keys and pasted-text
// titles are not links a user can follow.
func distinctSources(hits []vector.Result) string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, hit := range hits {
		if hit.Metadata.Type != loader.TypeURL {
			continue
		}
		src := hit.Metadata.Source
		if src == "" {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return strings.Join(out, ", ")
}

// historyMessages converts prior turns into model messages.
func historyMessages(history []Turn) []*ai.Message {
	var msgs []*ai.Message
	for _, t := range history {
		switch t.Role {
		case store.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(t.Content)))
		default:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(t.Content)))
		}
	}
	return msgs
}
