// Package receipts owns the receipt record lifecycle: scanning a payload,
// upserting the parsed result under its stable identity, and recovering a
// lost source URL from the stored photo.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/salyk"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/storage"
)

var (
	// ErrNotFound is returned when a receipt identity is unknown.
	ErrNotFound = errors.New("receipt not found")
	// ErrNoPhoto is returned by Recover for receipts without a stored photo.
	ErrNoPhoto = errors.New("receipt has no stored photo")
)

// Fetcher downloads and parses the document behind a lookup URL.
type Fetcher interface {
	FetchAndParse(ctx context.Context, u *url.URL) (*receipt.ParsedReceipt, error)
}

// PhotoStore keeps captured photos addressed by relative path.
type PhotoStore interface {
	Save(id string, data []byte) (string, error)
	Load(rel string) ([]byte, error)
	Remove(rel string) error
}

// CodeDecoder reads the machine-readable code printed on a receipt photo.
type CodeDecoder interface {
	Decode(image []byte) (string, error)
}

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	Receipt *receipt.Receipt
	Created bool
	Changed bool
}

// Service is the receipt store. Upserts for the same identity are serialized;
// different identities proceed independently.
type Service struct {
	repo       storage.ReceiptRepository
	fetcher    Fetcher
	photos     PhotoStore
	decoder    CodeDecoder
	normalizer salyk.Normalizer
	notifier   *Notifier
	logger     *slog.Logger
	now        func() time.Time
	identity   func(*url.URL) string
	locks      *keyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithFetcher sets the document fetcher used by Scan.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithPhotos sets the photo store.
func WithPhotos(p PhotoStore) Option {
	return func(s *Service) { s.photos = p }
}

// WithDecoder sets the code decoder used by Recover.
func WithDecoder(d CodeDecoder) Option {
	return func(s *Service) { s.decoder = d }
}

// WithNormalizer overrides the default URL normalizer.
func WithNormalizer(n salyk.Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// WithNotifier shares a notifier with other components.
func WithNotifier(n *Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIdentity overrides the identity function; receipt.Identity by default.
func WithIdentity(identity func(*url.URL) string) Option {
	return func(s *Service) { s.identity = identity }
}

// NewService creates a receipt service.
func NewService(repo storage.ReceiptRepository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:       repo,
		normalizer: salyk.DefaultNormalizer(),
		notifier:   NewNotifier(),
		logger:     logger,
		now:        time.Now,
		identity:   receipt.Identity,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notifier returns the receipts-changed notifier.
func (s *Service) Notifier() *Notifier {
	return s.notifier
}

// Scan normalizes a scanned payload, fetches and parses the document and
// upserts the result.
func (s *Service) Scan(ctx context.Context, payload string, photo []byte) (UpsertResult, error) {
	if s.fetcher == nil {
		return UpsertResult{}, errors.New("no fetcher configured")
	}
	u, err := s.normalizer.Normalize(payload)
	if err != nil {
		return UpsertResult{}, err
	}

	parsed, err := s.fetcher.FetchAndParse(ctx, u)
	if err != nil {
		return UpsertResult{}, err
	}

	if hint, ok := salyk.AmountHint(u); ok && !hint.Equal(parsed.EffectiveTotal()) {
		s.logger.Warn("parsed total differs from amount in code",
			"url", u.String(),
			"code_amount", hint.StringFixed(2),
			"parsed_total", parsed.EffectiveTotal().StringFixed(2),
		)
	}

	return s.Upsert(ctx, parsed, u, photo)
}

// Upsert persists parsed under the identity derived from sourceURL. Calling it
// again with identical input is a no-op that reports Changed=false.
func (s *Service) Upsert(ctx context.Context, parsed *receipt.ParsedReceipt, sourceURL *url.URL, photo []byte) (UpsertResult, error) {
	id := s.identity(sourceURL)
	unlock := s.locks.Lock(id)
	defer unlock()

	itemsJSON, err := parsed.ItemsJSON()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("encode line items: %w", err)
	}

	existing, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return UpsertResult{}, err
	}
	if existing == nil {
		return s.create(ctx, id, parsed, sourceURL, itemsJSON, photo)
	}

	if err := s.checkIdentity(existing, sourceURL); err != nil {
		s.logger.Error("identity conflict", "receipt_id", id, "stored_url", existing.SourceURL, "url", sourceURL.String())
		return UpsertResult{}, err
	}

	next := existing.Clone()
	changed := applyParsed(next, parsed, sourceURL, itemsJSON)

	var savedPhoto string
	if len(photo) > 0 && existing.PhotoPath == nil && s.photos != nil {
		rel, err := s.photos.Save(id, photo)
		if err != nil {
			return UpsertResult{}, err
		}
		savedPhoto = rel
		next.PhotoPath = &rel
		changed = true
	}

	if !changed {
		s.logger.Debug("receipt unchanged", "receipt_id", id)
		return UpsertResult{Receipt: existing}, nil
	}

	next.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateReceipt(ctx, next); err != nil {
		s.discardPhoto(savedPhoto)
		return UpsertResult{}, err
	}

	s.logger.Info("receipt updated", "receipt_id", id, "merchant", next.Merchant, "total", next.Total.StringFixed(2))
	s.notifier.Publish()
	return UpsertResult{Receipt: next, Changed: true}, nil
}

func (s *Service) create(ctx context.Context, id string, parsed *receipt.ParsedReceipt, sourceURL *url.URL, itemsJSON *string, photo []byte) (UpsertResult, error) {
	now := s.now().UTC()
	r := &receipt.Receipt{
		ID:        id,
		IssuedAt:  parsed.IssuedAt,
		Total:     parsed.EffectiveTotal(),
		Merchant:  parsed.Merchant,
		TaxID:     parsed.TaxID,
		Address:   parsed.Address,
		SourceURL: sourceURL.String(),
		ItemsJSON: itemsJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var savedPhoto string
	if len(photo) > 0 && s.photos != nil {
		rel, err := s.photos.Save(id, photo)
		if err != nil {
			return UpsertResult{}, err
		}
		savedPhoto = rel
		r.PhotoPath = &rel
	}

	if err := s.repo.CreateReceipt(ctx, r); err != nil {
		s.discardPhoto(savedPhoto)
		return UpsertResult{}, err
	}

	s.logger.Info("receipt created",
		"receipt_id", id,
		"merchant", r.Merchant,
		"total", r.Total.StringFixed(2),
		"issued_at", r.IssuedAt.Format(time.RFC3339),
		"issued_at_fallback", parsed.IssuedAtFallback,
	)
	s.notifier.Publish()
	return UpsertResult{Receipt: r, Created: true, Changed: true}, nil
}

// applyParsed copies the compared fields from parsed into r and reports
// whether any of them differed.
func applyParsed(r *receipt.Receipt, parsed *receipt.ParsedReceipt, sourceURL *url.URL, itemsJSON *string) bool {
	changed := false

	if r.Merchant != parsed.Merchant {
		r.Merchant = parsed.Merchant
		changed = true
	}
	if !receipt.EqualStrings(r.TaxID, parsed.TaxID) {
		r.TaxID = parsed.TaxID
		changed = true
	}
	if !receipt.EqualStrings(r.Address, parsed.Address) {
		r.Address = parsed.Address
		changed = true
	}
	if total := parsed.EffectiveTotal(); !r.Total.Equal(total) {
		r.Total = total
		changed = true
	}
	if !receipt.EqualStrings(r.ItemsJSON, itemsJSON) {
		r.ItemsJSON = itemsJSON
		changed = true
	}
	if u := sourceURL.String(); r.SourceURL != u {
		r.SourceURL = u
		changed = true
	}
	// A timestamp guessed at parse time never replaces a stored one.
	if !parsed.IssuedAtFallback && !r.IssuedAt.Equal(parsed.IssuedAt) {
		r.IssuedAt = parsed.IssuedAt
		changed = true
	}
	return changed
}

// checkIdentity fails when the stored URL hashes to the same identity as
// sourceURL from different key material, i.e. a genuine hash collision. A
// stored URL that is lost or hashes elsewhere carries nothing to compare.
func (s *Service) checkIdentity(existing *receipt.Receipt, sourceURL *url.URL) error {
	if existing.SourceURL == "" {
		return nil
	}
	stored, err := url.Parse(existing.SourceURL)
	if err != nil || s.identity(stored) != existing.ID {
		return nil
	}
	if receipt.IdentityKey(stored) != receipt.IdentityKey(sourceURL) {
		return fmt.Errorf("%w: %s", receipt.ErrIdentityConflict, existing.ID)
	}
	return nil
}

func (s *Service) discardPhoto(rel string) {
	if rel == "" || s.photos == nil {
		return
	}
	if err := s.photos.Remove(rel); err != nil {
		s.logger.Warn("failed to remove orphaned photo", "path", rel, "error", err)
	}
}

// Get returns the receipt with the given identity.
func (s *Service) Get(ctx context.Context, id string) (*receipt.Receipt, error) {
	r, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// List returns receipts matching filter.
func (s *Service) List(ctx context.Context, filter storage.ReceiptFilter) ([]*receipt.Receipt, error) {
	return s.repo.ListReceipts(ctx, filter)
}

// Tickets returns the matcher projection of every stored receipt.
func (s *Service) Tickets(ctx context.Context) ([]receipt.Ticket, error) {
	all, err := s.repo.ListReceipts(ctx, storage.ReceiptFilter{})
	if err != nil {
		return nil, err
	}
	return receipt.TicketsFromReceipts(all), nil
}
