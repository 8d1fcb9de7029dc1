// Package matcher links bank transactions to scanned receipts.
//
// The matcher is a deterministic nearest-neighbour rule, not an assignment
// algorithm:
//   - Receipts are indexed by (amount in minor units, time bucket)
//   - Each receipt is stored under amount±1 and bucket±1 (9 keys)
//   - A transaction looks up its own amount in its bucket and both neighbours
//   - The candidate closest in time wins; no candidates means no match
//
// Two transactions may match the same receipt; that conflict is left to the caller.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	m.Rebuild(tickets)
//	if match := m.Match(tx); match != nil {
//		// match.ReceiptID, match.Confidence
//	}
package matcher

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/transaction"
)

type indexKey struct {
	amount int64
	bucket int64
}

type index struct {
	entries map[indexKey][]receipt.Ticket
	size    int
}

// Matcher matches transactions with receipt tickets
type Matcher struct {
	config  Config
	aliases map[string]map[string]bool
	bucket  int64
	current atomic.Pointer[index]
	now     func() time.Time
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithClock overrides the clock used for ReceiptMatch.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config, opts ...Option) *Matcher {
	bucket := int64(config.BucketSize / time.Second)
	if bucket <= 0 {
		bucket = int64(DefaultConfig().BucketSize / time.Second)
	}
	m := &Matcher{
		config:  config,
		aliases: normalizeAliases(config.MerchantAliases),
		bucket:  bucket,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.current.Store(&index{entries: map[indexKey][]receipt.Ticket{}})
	return m
}

// Rebuild replaces the index with one built from tickets. Queries running
// concurrently keep using the previous index until the new one is published.
func (m *Matcher) Rebuild(tickets []receipt.Ticket) {
	idx := &index{
		entries: make(map[indexKey][]receipt.Ticket, len(tickets)*9),
		size:    len(tickets),
	}
	for _, t := range tickets {
		amount := t.AmountMinor()
		b := m.bucketOf(t.IssuedAt)
		for a := amount - 1; a <= amount+1; a++ {
			for nb := b - 1; nb <= b+1; nb++ {
				k := indexKey{amount: a, bucket: nb}
				idx.entries[k] = append(idx.entries[k], t)
			}
		}
	}
	m.current.Store(idx)
}

// Size returns the number of tickets in the published index.
func (m *Matcher) Size() int {
	return m.current.Load().size
}

// Match returns the best receipt for tx, or nil when no receipt is indexed
// under its amount in the neighbouring buckets.
func (m *Matcher) Match(tx transaction.Transaction) *ReceiptMatch {
	idx := m.current.Load()
	candidates := m.candidates(idx, tx)
	if len(candidates) == 0 {
		return nil
	}

	// Strict less keeps the first candidate on ties.
	chosen := candidates[0]
	best := absDuration(chosen.IssuedAt.Sub(tx.PostedAt))
	for _, c := range candidates[1:] {
		if d := absDuration(c.IssuedAt.Sub(tx.PostedAt)); d < best {
			chosen, best = c, d
		}
	}

	confidence := ConfidenceHigh
	if len(candidates) == 1 || m.aliasConfirms(tx, chosen) {
		confidence = ConfidenceExact
	}

	return &ReceiptMatch{
		ReceiptID:    chosen.ID,
		Confidence:   confidence,
		TimeDeltaSec: int64(best / time.Second),
		CreatedAt:    m.now(),
		Source:       SourceAuto,
	}
}

// candidates collects distinct tickets in lookup order. A ticket close to the
// transaction is indexed under several of the probed buckets.
func (m *Matcher) candidates(idx *index, tx transaction.Transaction) []receipt.Ticket {
	amount := tx.AmountMinor()
	b := m.bucketOf(tx.PostedAt)

	var out []receipt.Ticket
	seen := make(map[string]bool)
	for nb := b - 1; nb <= b+1; nb++ {
		for _, t := range idx.entries[indexKey{amount: amount, bucket: nb}] {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	return out
}

func (m *Matcher) aliasConfirms(tx transaction.Transaction, t receipt.Ticket) bool {
	if tx.Merchant == nil || len(m.aliases) == 0 {
		return false
	}
	aliases := m.aliases[strings.ToLower(strings.TrimSpace(*tx.Merchant))]
	if len(aliases) == 0 {
		return false
	}
	for _, id := range t.Identifiers() {
		if aliases[id] {
			return true
		}
	}
	return false
}

func (m *Matcher) bucketOf(t time.Time) int64 {
	secs := t.Unix()
	q := secs / m.bucket
	if secs%m.bucket != 0 && secs < 0 {
		q--
	}
	return q
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
