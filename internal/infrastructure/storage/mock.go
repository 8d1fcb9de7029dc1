package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps, making tests fast and isolated.
type MockRepository struct {
	mu       sync.Mutex
	receipts map[string]*receipt.Receipt

	// Hooks for test assertions
	CreateCalls int
	UpdateCalls int

	// Error injection for testing error paths
	GetReceiptErr    error
	CreateReceiptErr error
	UpdateReceiptErr error
	ListReceiptsErr  error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		receipts: make(map[string]*receipt.Receipt),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// GetReceipt returns a copy of the stored receipt.
func (m *MockRepository) GetReceipt(_ context.Context, id string) (*receipt.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetReceiptErr != nil {
		return nil, m.GetReceiptErr
	}
	r, ok := m.receipts[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

// CreateReceipt stores a copy of r.
func (m *MockRepository) CreateReceipt(_ context.Context, r *receipt.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateReceiptErr != nil {
		return m.CreateReceiptErr
	}
	if _, ok := m.receipts[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	m.receipts[r.ID] = r.Clone()
	return nil
}

// UpdateReceipt replaces the stored copy of r.
func (m *MockRepository) UpdateReceipt(_ context.Context, r *receipt.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateReceiptErr != nil {
		return m.UpdateReceiptErr
	}
	existing, ok := m.receipts[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	updated := r.Clone()
	updated.CreatedAt = existing.CreatedAt
	m.receipts[r.ID] = updated
	return nil
}

// ListReceipts filters the stored receipts the same way the SQLite
// implementation does.
func (m *MockRepository) ListReceipts(_ context.Context, filter ReceiptFilter) ([]*receipt.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListReceiptsErr != nil {
		return nil, m.ListReceiptsErr
	}

	var out []*receipt.Receipt
	for _, r := range m.receipts {
		if filter.TaxID != "" && (r.TaxID == nil || *r.TaxID != filter.TaxID) {
			continue
		}
		if filter.Merchant != "" && r.Merchant != filter.Merchant {
			continue
		}
		if !filter.From.IsZero() && r.IssuedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !r.IssuedAt.Before(filter.To) {
			continue
		}
		out = append(out, r.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
