// Package statement turns bank statements into canonicalizer rows. It reads
// the JSON result of the statement-parsing service and, for local use, the
// bank's XLSX export.
package statement

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/transaction"
)

// ErrInvalidStatement is returned for documents that cannot be read at all.
var ErrInvalidStatement = errors.New("invalid statement")

// Response is the statement-parsing service result. Only the parts this
// system consumes are modelled.
type Response struct {
	Account *struct {
		Currency string `json:"currency"`
		Bank     string `json:"bank,omitempty"`
	} `json:"account,omitempty"`
	Period *struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"period,omitempty"`
	Transactions []TxRecord `json:"transactions"`
}

// TxRecord is one transaction of the service contract. Either Amount or the
// Credit/Debit pair carries the money; Timestamp is optional and falls back
// to Date.
type TxRecord struct {
	Date        string           `json:"date"`
	Timestamp   string           `json:"timestamp,omitempty"`
	Description string           `json:"description"`
	Credit      *decimal.Decimal `json:"credit,omitempty"`
	Debit       *decimal.Decimal `json:"debit,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// Decoder reads statement documents. Zone-less timestamps are interpreted
// in Location.
type Decoder struct {
	Location *time.Location
}

// NewDecoder creates a decoder for statements issued in loc.
func NewDecoder(loc *time.Location) *Decoder {
	if loc == nil {
		loc = time.UTC
	}
	return &Decoder{Location: loc}
}

// RowError describes a record that could not be converted.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

// DecodeJSON reads a service response and converts its transactions. Records
// with unreadable timestamps are reported in the second result and skipped.
func (d *Decoder) DecodeJSON(r io.Reader) ([]transaction.Row, []RowError, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidStatement, err)
	}
	rows, rowErrs := d.Rows(resp.Transactions)
	return rows, rowErrs, nil
}

// Rows converts contract records into canonicalizer rows.
func (d *Decoder) Rows(records []TxRecord) ([]transaction.Row, []RowError) {
	rows := make([]transaction.Row, 0, len(records))
	var rowErrs []RowError
	for i, rec := range records {
		row, err := d.row(rec)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, Err: err})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrs
}

func (d *Decoder) row(rec TxRecord) (transaction.Row, error) {
	var (
		date, posted time.Time
		err          error
	)
	if rec.Date != "" {
		if date, err = parseTime(rec.Date, d.Location); err != nil {
			return transaction.Row{}, fmt.Errorf("date: %w", err)
		}
	}
	if rec.Timestamp != "" {
		if posted, err = parseTime(rec.Timestamp, d.Location); err != nil {
			return transaction.Row{}, fmt.Errorf("timestamp: %w", err)
		}
	} else {
		posted = date
	}
	if posted.IsZero() {
		return transaction.Row{}, errors.New("no date or timestamp")
	}
	if date.IsZero() {
		date = posted
	}

	return transaction.Row{
		Date:        date,
		PostedAt:    posted,
		Description: rec.Description,
		Amount:      rec.Amount,
		Credit:      rec.Credit,
		Debit:       rec.Debit,
	}, nil
}
