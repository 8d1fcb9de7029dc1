// Package matchstore persists transaction to receipt matches as a single JSON
// document. Every mutation rewrites the whole file atomically; the in-memory
// map only changes after the write succeeded, so a failed write leaves both
// the file and the visible state as they were.
package matchstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/fsutil"
)

// FileName is the match file name inside the data directory.
const FileName = "receipt_matches.json"

// ErrCorrupt is returned by Open when the match file cannot be decoded.
var ErrCorrupt = errors.New("match file is corrupt")

// Store is the file-backed match cache.
type Store struct {
	path    string
	logger  *slog.Logger
	mu      sync.Mutex
	matches map[uuid.UUID]matcher.ReceiptMatch
}

// Open loads the match file at path. A missing file is an empty cache.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		logger:  logger,
		matches: make(map[uuid.UUID]matcher.ReceiptMatch),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read match file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var raw map[string]matcher.ReceiptMatch
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	for k, m := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			logger.Warn("skipping match with invalid transaction id", "transaction_id", k)
			continue
		}
		s.matches[id] = m
	}
	logger.Debug("loaded matches", "path", path, "count", len(s.matches))
	return s, nil
}

// OpenDir opens FileName inside dir.
func OpenDir(dir string, logger *slog.Logger) (*Store, error) {
	return Open(filepath.Join(dir, FileName), logger)
}

// Get returns the match for a transaction.
func (s *Store) Get(txID uuid.UUID) (matcher.ReceiptMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[txID]
	return m, ok
}

// Set stores or overwrites the match for a transaction. A nil match removes it.
func (s *Store) Set(txID uuid.UUID, m *matcher.ReceiptMatch) error {
	if m == nil {
		return s.Remove(txID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyLocked()
	next[txID] = *m
	return s.commitLocked(next)
}

// SetIfAbsent stores m only when the transaction has no match yet. It reports
// whether m was stored.
func (s *Store) SetIfAbsent(txID uuid.UUID, m matcher.ReceiptMatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[txID]; ok {
		return false, nil
	}
	next := s.copyLocked()
	next[txID] = m
	if err := s.commitLocked(next); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the match for a transaction. Removing an absent match is a no-op.
func (s *Store) Remove(txID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[txID]; !ok {
		return nil
	}
	next := s.copyLocked()
	delete(next, txID)
	return s.commitLocked(next)
}

// All returns a snapshot of every stored match.
func (s *Store) All() map[uuid.UUID]matcher.ReceiptMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Len returns the number of stored matches.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

func (s *Store) copyLocked() map[uuid.UUID]matcher.ReceiptMatch {
	out := make(map[uuid.UUID]matcher.ReceiptMatch, len(s.matches)+1)
	for k, v := range s.matches {
		out[k] = v
	}
	return out
}

func (s *Store) commitLocked(next map[uuid.UUID]matcher.ReceiptMatch) error {
	data, err := encode(next)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		s.logger.Error("failed to persist matches", "path", s.path, "error", err)
		return fmt.Errorf("persist matches: %w", err)
	}
	s.matches = next
	return nil
}

// encode renders the matches keyed by transaction id. encoding/json sorts
// map keys, so the file is stable across writes.
func encode(matches map[uuid.UUID]matcher.ReceiptMatch) ([]byte, error) {
	byKey := make(map[string]matcher.ReceiptMatch, len(matches))
	for k, v := range matches {
		byKey[k.String()] = v
	}
	data, err := json.MarshalIndent(byKey, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode matches: %w", err)
	}
	return data, nil
}
