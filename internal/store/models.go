package store

import (
	"time"

	"github.com/docbase/docbase/internal/plan"
)

// Document statuses. A document moves PENDING -> FETCHING -> FETCH_DONE ->
// INDEXING -> SUCCESS, or lands in one of the failure states.
const (
	StatusPending           = "PENDING"
	StatusFetching          = "FETCHING"
	StatusFetchDone         = "FETCH_DONE"
	StatusIndexing          = "INDEXING"
	StatusSuccess           = "SUCCESS"
	StatusFailed            = "FAILED"
	StatusFetchingFailed    = "FETCHING_FAILED"
	StatusSizeLimitExceeded = "SIZE_LIMIT_EXCEEDED"
)

// Conversation sentiment ratings produced by summarization.
const (
	RatingPositive = "POSITIVE"
	RatingNeutral  = "NEUTRAL"
	RatingNegative = "NEGATIVE"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Org is a billing tenant. ChatCredits and DocumentBytes are the org-wide
// usage counters the ledger gates on.
type Org struct {
	ID                string
	Name              string
	Plan              plan.Tier
	ChatCredits       int
	DocumentBytes     int64
	PaymentsUpdatedAt time.Time
	CreatedAt         time.Time
}

// Project is one chatbot with its own document namespace.
type Project struct {
	ID             string
	OrgID          string
	Name           string
	BotName        string
	Prompt         string
	TokensUsed     int64
	DocumentBytes  int64
	ChatUsed       int
	SummaryEnabled bool
	CreatedAt      time.Time
}

// Document is one ingestible content source. Details is the raw
// type-tagged configuration payload, decoded at the loader boundary.
type Document struct {
	ID        string
	ProjectID string
	Type      string
	Source    string
	Details   []byte
	Status    string
	SizeBytes int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conversation is one chat thread. TokensUsed accumulates the BPE token
// cost of every turn.
type Conversation struct {
	ID         string
	ProjectID  string
	FirstMsg   string
	Rating     string
	TokensUsed int64
	Summary    string
	CreatedAt  time.Time
	Messages   []Message
}

// Message is one turn in a conversation. Rows are append-only; Feedback is
// the single mutable column.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Text           string
	Sources        string
	Feedback       *bool
	CreatedAt      time.Time
}
