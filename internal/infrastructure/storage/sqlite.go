package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

const receiptColumns = `id, issued_at, total, merchant, tax_id, address, source_url,
	items_json, photo_path, created_at, updated_at`

// GetReceipt retrieves a receipt by its stable identity.
func (s *Storage) GetReceipt(ctx context.Context, id string) (*receipt.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get receipt", err)
	}
	return r, nil
}

// CreateReceipt inserts a new receipt.
func (s *Storage) CreateReceipt(ctx context.Context, r *receipt.Receipt) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO receipts (`+receiptColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.IssuedAt.UTC(),
		r.Total.String(),
		r.Merchant,
		r.TaxID,
		r.Address,
		r.SourceURL,
		r.ItemsJSON,
		r.PhotoPath,
		r.CreatedAt.UTC(),
		r.UpdatedAt.UTC(),
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
	}
	if err != nil {
		return storageErr("create receipt", err)
	}
	return nil
}

// UpdateReceipt writes all mutable fields of an existing receipt.
func (s *Storage) UpdateReceipt(ctx context.Context, r *receipt.Receipt) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE receipts
	SET issued_at = ?, total = ?, merchant = ?, tax_id = ?, address = ?,
	    source_url = ?, items_json = ?, photo_path = ?, updated_at = ?
	WHERE id = ?`,
		r.IssuedAt.UTC(),
		r.Total.String(),
		r.Merchant,
		r.TaxID,
		r.Address,
		r.SourceURL,
		r.ItemsJSON,
		r.PhotoPath,
		r.UpdatedAt.UTC(),
		r.ID,
	)
	if err != nil {
		return storageErr("update receipt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update receipt", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	return nil
}

// ListReceipts returns receipts matching the filter, newest first.
func (s *Storage) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*receipt.Receipt, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.TaxID != "" {
		where = append(where, "tax_id = ?")
		args = append(args, filter.TaxID)
	}
	if filter.Merchant != "" {
		where = append(where, "merchant = ?")
		args = append(args, filter.Merchant)
	}
	if !filter.From.IsZero() {
		where = append(where, "issued_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "issued_at < ?")
		args = append(args, filter.To.UTC())
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY issued_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list receipts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*receipt.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, storageErr("scan receipt", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list receipts", err)
	}
	return out, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
