package storage

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(row rowScanner) (*receipt.Receipt, error) {
	var (
		r         receipt.Receipt
		total     string
		taxID     sql.NullString
		address   sql.NullString
		itemsJSON sql.NullString
		photoPath sql.NullString
		issuedAt  time.Time
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&r.ID,
		&issuedAt,
		&total,
		&r.Merchant,
		&taxID,
		&address,
		&r.SourceURL,
		&itemsJSON,
		&photoPath,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(total)
	if err != nil {
		return nil, err
	}
	r.Total = amount
	r.IssuedAt = issuedAt.UTC()
	r.CreatedAt = createdAt.UTC()
	r.UpdatedAt = updatedAt.UTC()
	r.TaxID = nullableString(taxID)
	r.Address = nullableString(address)
	r.ItemsJSON = nullableString(itemsJSON)
	r.PhotoPath = nullableString(photoPath)
	return &r, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
