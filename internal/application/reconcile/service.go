// Package reconcile links bank transactions to stored receipts. It keeps the
// matcher index in step with the receipt set and records every association
// in the match cache, where user decisions take precedence over inference.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/transaction"
)

// ErrUnknownReceipt is returned when linking to a receipt that does not exist.
var ErrUnknownReceipt = errors.New("unknown receipt")

// ReceiptSource exposes the stored receipts.
type ReceiptSource interface {
	Get(ctx context.Context, id string) (*receipt.Receipt, error)
	Tickets(ctx context.Context) ([]receipt.Ticket, error)
}

// MatchStore is the persisted transaction to receipt mapping.
type MatchStore interface {
	Get(txID uuid.UUID) (matcher.ReceiptMatch, bool)
	Set(txID uuid.UUID, m *matcher.ReceiptMatch) error
	SetIfAbsent(txID uuid.UUID, m matcher.ReceiptMatch) (bool, error)
	Remove(txID uuid.UUID) error
	All() map[uuid.UUID]matcher.ReceiptMatch
}

// Subscriber hands out receipts-changed signals.
type Subscriber interface {
	Subscribe() (<-chan struct{}, func())
}

// Result is the outcome for one canonical transaction.
type Result struct {
	Transaction transaction.Transaction `json:"transaction"`
	Match       *matcher.ReceiptMatch   `json:"match,omitempty"`
	// Cached is true when the match came from the cache rather than the matcher.
	Cached bool `json:"cached"`
}

// Report summarizes a reconcile pass.
type Report struct {
	Results []Result `json:"results"`
	Matched int      `json:"matched"`
	Skipped int      `json:"skipped"`
}

// Service reconciles statements against receipts.
type Service struct {
	source  ReceiptSource
	matcher *matcher.Matcher
	matches MatchStore
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source for user links.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a reconcile service.
func NewService(source ReceiptSource, m *matcher.Matcher, matches MatchStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		source:  source,
		matcher: m,
		matches: matches,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rebuild reloads the receipt tickets and publishes a new matcher index.
func (s *Service) Rebuild(ctx context.Context) error {
	start := time.Now()
	tickets, err := s.source.Tickets(ctx)
	if err != nil {
		return fmt.Errorf("load tickets: %w", err)
	}
	s.matcher.Rebuild(tickets)
	s.logger.Debug("matcher index rebuilt",
		"tickets", len(tickets),
		"duration", time.Since(start))
	return nil
}

// Run rebuilds the index once and then after every receipts-changed signal
// until ctx is done or the subscription closes.
func (s *Service) Run(ctx context.Context, sub Subscriber) error {
	ch, unsubscribe := sub.Subscribe()
	defer unsubscribe()

	if err := s.Rebuild(ctx); err != nil {
		s.logger.Error("initial index rebuild failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Rebuild(ctx); err != nil {
				s.logger.Error("index rebuild failed", "error", err)
			}
		}
	}
}

// Reconcile canonicalizes rows and resolves a match for each transaction.
// A cached match is returned as is; otherwise the matcher's answer is stored
// only if no other writer has stored a match for that transaction meanwhile.
func (s *Service) Reconcile(ctx context.Context, rows []transaction.Row) (Report, error) {
	txs, skipped := transaction.CanonicalizeAll(rows)
	report := Report{
		Results: make([]Result, 0, len(txs)),
		Skipped: skipped,
	}

	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.resolve(tx)
		if err != nil {
			return report, err
		}
		if res.Match != nil {
			report.Matched++
		}
		report.Results = append(report.Results, res)
	}

	s.logger.Info("statement reconciled",
		"transactions", len(txs),
		"matched", report.Matched,
		"skipped", skipped)
	return report, nil
}

func (s *Service) resolve(tx transaction.Transaction) (Result, error) {
	if cached, ok := s.matches.Get(tx.ID); ok {
		return Result{Transaction: tx, Match: &cached, Cached: true}, nil
	}

	m := s.matcher.Match(tx)
	if m == nil {
		return Result{Transaction: tx}, nil
	}
	stored, err := s.matches.SetIfAbsent(tx.ID, *m)
	if err != nil {
		return Result{}, fmt.Errorf("store match for %s: %w", tx.ID, err)
	}
	if !stored {
		// Someone else decided first.
		if current, ok := s.matches.Get(tx.ID); ok {
			return Result{Transaction: tx, Match: &current, Cached: true}, nil
		}
	}

	s.logger.Debug("transaction matched",
		"tx_id", tx.ID,
		"receipt_id", m.ReceiptID,
		"confidence", m.Confidence,
		"delta_sec", m.TimeDeltaSec)
	return Result{Transaction: tx, Match: m}, nil
}

// Match returns the stored match for a transaction.
func (s *Service) Match(txID uuid.UUID) (matcher.ReceiptMatch, bool) {
	return s.matches.Get(txID)
}

// Matches returns every stored match.
func (s *Service) Matches() map[uuid.UUID]matcher.ReceiptMatch {
	return s.matches.All()
}

// Link records a user-chosen receipt for a transaction, replacing any match.
func (s *Service) Link(ctx context.Context, txID uuid.UUID, receiptID string) (matcher.ReceiptMatch, error) {
	r, err := s.source.Get(ctx, receiptID)
	if err != nil {
		return matcher.ReceiptMatch{}, fmt.Errorf("%w: %w", ErrUnknownReceipt, err)
	}

	m := matcher.ReceiptMatch{
		ReceiptID:  r.ID,
		Confidence: matcher.ConfidenceExact,
		CreatedAt:  s.now().UTC(),
		Source:     matcher.SourceUser,
	}
	if err := s.matches.Set(txID, &m); err != nil {
		return matcher.ReceiptMatch{}, err
	}
	s.logger.Info("match linked", "tx_id", txID, "receipt_id", r.ID)
	return m, nil
}

// Unlink removes the match for a transaction.
func (s *Service) Unlink(txID uuid.UUID) error {
	if err := s.matches.Remove(txID); err != nil {
		return err
	}
	s.logger.Info("match unlinked", "tx_id", txID)
	return nil
}
