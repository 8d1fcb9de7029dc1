package storage

import (
	"context"
	"errors"
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

var (
	// ErrStorage wraps every persistence failure.
	ErrStorage = errors.New("storage failure")
	// ErrDuplicate is returned when creating a receipt whose identity exists.
	ErrDuplicate = errors.New("receipt already exists")
	// ErrNotFound is returned by updates of a receipt that does not exist.
	ErrNotFound = errors.New("receipt not found")
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations and makes testing with
// mocks straightforward.
type Repository interface {
	ReceiptRepository
	Close() error
}

// ReceiptRepository persists receipts keyed by their stable identity.
type ReceiptRepository interface {
	// GetReceipt returns nil and no error when the identity is unknown.
	GetReceipt(ctx context.Context, id string) (*receipt.Receipt, error)

	// CreateReceipt inserts a new record. It fails with ErrDuplicate when the
	// identity is already stored.
	CreateReceipt(ctx context.Context, r *receipt.Receipt) error

	// UpdateReceipt replaces every mutable field of an existing record in a
	// single statement.
	UpdateReceipt(ctx context.Context, r *receipt.Receipt) error

	// ListReceipts returns receipts matching the filter, newest first.
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*receipt.Receipt, error)
}

// ReceiptFilter selects receipts by simple field predicates. Zero values
// match everything.
type ReceiptFilter struct {
	TaxID    string
	Merchant string
	From     time.Time // inclusive
	To       time.Time // exclusive
	Limit    int       // 0 = no limit
	Offset   int
}
