// Package plan defines the subscription tiers and the usage limits attached
// to each tier. Limits are enforced at call sites: document ingestion checks
// the byte budget, the chat engine checks message credits, and the crawler
// checks the page cap.
package plan

// Tier identifies a subscription plan.
type Tier string

// Plan tiers, ascending.
const (
	Free         Tier = "FREE"
	Basic        Tier = "BASIC"
	Professional Tier = "PROFESSIONAL"
	Enterprise   Tier = "ENTERPRISE"
)

// MonthlyFreeCredits is the number of chat credits granted by the lazy
// monthly refresh for the lower tiers.
const MonthlyFreeCredits = 25

// Limits is the limit triple attached to a tier, plus the crawl page cap.
//
// DocumentBytes is a raw UTF-8 byte budget for extracted document text.
// It is deliberately not called "tokens": chat usage is measured in BPE
// tokens, document usage in bytes, and the two must never be conflated.
type Limits struct {
	Projects      int
	Messages      int
	DocumentBytes int64
	CrawlPages    int
}

var limits = map[Tier]Limits{
	Free:         {Projects: 2, Messages: 30, DocumentBytes: 1 << 20, CrawlPages: 10},
	Basic:        {Projects: 5, Messages: 1_000, DocumentBytes: 10 << 20, CrawlPages: 50},
	Professional: {Projects: 10, Messages: 5_000, DocumentBytes: 50 << 20, CrawlPages: 100},
	Enterprise:   {Projects: 100, Messages: 50_000, DocumentBytes: 500 << 20, CrawlPages: 500},
}

// LimitsFor returns the limits for the given tier.
// Unknown tiers fall back to the Free limits: a corrupted plan column must
// never grant unlimited usage.
func LimitsFor(t Tier) Limits {
	if l, ok := limits[t]; ok {
		return l
	}
	return limits[Free]
}

// Valid reports whether t is a known tier.
func Valid(t Tier) bool {
	_, ok := limits[t]
	return ok
}

// EligibleForMonthlyReset reports whether the tier receives the lazy
// monthly credit refresh. Paid tiers above Basic instead degrade to
// search-only mode when credits run out.
func EligibleForMonthlyReset(t Tier) bool {
	return t == Free || t == Basic
}
