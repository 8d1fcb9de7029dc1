// Package receipt holds the receipt data model shared by the document parser,
// the receipt store and the matcher.
//
// A ParsedReceipt is the ephemeral output of extraction. A Receipt is the
// persisted record keyed by its stable identity (see Identity). A Ticket is the
// read-only projection the matcher works with.
package receipt

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownMerchant is used when the header block carrying the merchant name is absent.
const UnknownMerchant = "Unknown"

// LineItem is one purchased position. Sum is authoritative; Price*Qty may disagree with it.
type LineItem struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
	Sum   decimal.Decimal `json:"sum"`
}

// ParsedReceipt is the structured result of reading one receipt document.
type ParsedReceipt struct {
	Merchant string
	TaxID    *string
	Address  *string
	IssuedAt time.Time
	// IssuedAtFallback is true when no timestamp was found in the document and
	// IssuedAt holds the time of parsing instead.
	IssuedAtFallback bool
	Total            decimal.Decimal
	Items            []LineItem
}

// ItemsSum returns the sum of all line item sums.
func (p *ParsedReceipt) ItemsSum() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range p.Items {
		sum = sum.Add(it.Sum)
	}
	return sum
}

// EffectiveTotal prefers the parsed total and falls back to the item sum when
// the parsed total is not positive.
func (p *ParsedReceipt) EffectiveTotal() decimal.Decimal {
	if p.Total.IsPositive() {
		return p.Total
	}
	return p.ItemsSum()
}

// ItemsJSON serializes the line items for storage. Returns nil when there are no items.
func (p *ParsedReceipt) ItemsJSON() (*string, error) {
	if len(p.Items) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(p.Items)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// Receipt is the persisted receipt record.
type Receipt struct {
	ID        string          `json:"id"`
	IssuedAt  time.Time       `json:"issued_at"`
	Total     decimal.Decimal `json:"total"`
	Merchant  string          `json:"merchant"`
	TaxID     *string         `json:"tax_id,omitempty"`
	Address   *string         `json:"address,omitempty"`
	SourceURL string          `json:"source_url"`
	ItemsJSON *string         `json:"-"`
	// PhotoPath is relative to the application data directory.
	PhotoPath *string   `json:"photo_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Items decodes the stored line items.
func (r *Receipt) Items() ([]LineItem, error) {
	if r.ItemsJSON == nil || *r.ItemsJSON == "" {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal([]byte(*r.ItemsJSON), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Clone returns a copy that shares no pointers with r.
func (r *Receipt) Clone() *Receipt {
	c := *r
	c.TaxID = cloneString(r.TaxID)
	c.Address = cloneString(r.Address)
	c.ItemsJSON = cloneString(r.ItemsJSON)
	c.PhotoPath = cloneString(r.PhotoPath)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// EqualStrings compares two optional strings.
func EqualStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
