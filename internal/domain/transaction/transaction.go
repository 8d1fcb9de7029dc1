// Package transaction canonicalizes bank statement rows into the minimal shape
// the matcher compares against receipts, and derives a stable identity for
// each row so re-importing the same statement is idempotent.
//
// Known limitation: rows that agree on posting minute, absolute amount and
// normalized description collapse to one identity. This suppresses duplicate
// rows, but genuinely repeated purchases in the same minute for the same amount
// at the same merchant are merged as well.
package transaction

import (
	"crypto/sha256"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/money"
)

// ErrNoAmount is returned for rows without amount, credit or debit.
var ErrNoAmount = errors.New("statement row has no amount, credit or debit")

// Row is one transaction as supplied by the statement parsing service.
type Row struct {
	Date        time.Time
	PostedAt    time.Time
	Description string
	Amount      *decimal.Decimal
	Credit      *decimal.Decimal
	Debit       *decimal.Decimal
}

// Transaction is the canonical comparable form of a statement row.
type Transaction struct {
	ID       uuid.UUID       `json:"id"`
	PostedAt time.Time       `json:"posted_at"`
	Amount   decimal.Decimal `json:"amount"` // negative = outflow
	Merchant *string         `json:"merchant,omitempty"`
}

// AmountMinor returns |Amount| in minor units.
func (t Transaction) AmountMinor() int64 {
	return money.MinorUnits(t.Amount)
}

// Canonicalize maps a row into a Transaction with its derived identity.
func Canonicalize(row Row) (Transaction, error) {
	if row.Amount == nil && row.Credit == nil && row.Debit == nil {
		return Transaction{}, ErrNoAmount
	}

	amount := SignedAmount(row)
	tx := Transaction{
		ID:       Identity(row.PostedAt, amount, row.Description),
		PostedAt: row.PostedAt,
		Amount:   amount,
	}
	if desc := strings.TrimSpace(row.Description); desc != "" {
		tx.Merchant = &desc
	}
	return tx, nil
}

// CanonicalizeAll canonicalizes rows, skipping ones without any amount.
// Rows that collapse to an identity already seen are dropped, keeping the first.
func CanonicalizeAll(rows []Row) ([]Transaction, int) {
	seen := make(map[uuid.UUID]bool, len(rows))
	out := make([]Transaction, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		tx, err := Canonicalize(row)
		if err != nil || seen[tx.ID] {
			skipped++
			continue
		}
		seen[tx.ID] = true
		out = append(out, tx)
	}
	return out, skipped
}

// SignedAmount returns the explicit amount when present; otherwise a positive
// debit becomes an outflow, a positive credit an inflow, else zero.
func SignedAmount(row Row) decimal.Decimal {
	if row.Amount != nil {
		return *row.Amount
	}
	if row.Debit != nil && row.Debit.IsPositive() {
		return row.Debit.Neg()
	}
	if row.Credit != nil && row.Credit.IsPositive() {
		return *row.Credit
	}
	return decimal.Zero
}

// Identity hashes "minuteEpoch|minorUnits|normalizedDescription" with SHA-256
// and lays the first 16 bytes out as a UUID.
func Identity(postedAt time.Time, amount decimal.Decimal, description string) uuid.UUID {
	minute := postedAt.Truncate(time.Minute).Unix()
	key := strconv.FormatInt(minute, 10) + "|" +
		strconv.FormatInt(money.MinorUnits(amount), 10) + "|" +
		NormalizeDescription(description)

	sum := sha256.Sum256([]byte(key))
	id, _ := uuid.FromBytes(sum[:16])
	return id
}

// NormalizeDescription lower-cases s, keeps only letters, digits and spaces,
// and collapses whitespace runs into single spaces.
func NormalizeDescription(s string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}
