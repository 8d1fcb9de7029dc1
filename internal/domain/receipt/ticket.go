package receipt

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/money"
)

// Ticket is the lightweight projection of a Receipt used for matching.
type Ticket struct {
	ID        string
	IssuedAt  time.Time
	Total     decimal.Decimal
	TaxID     *string
	FD        *string
	FN        *string
	FM        *string
	RegNumber *string
	SourceURL *url.URL
}

// AmountMinor returns the ticket total in minor units.
func (t Ticket) AmountMinor() int64 {
	return money.MinorUnits(t.Total)
}

// Identifiers returns the lower-cased tax id, registration number and source
// host, skipping the ones that are unknown.
func (t Ticket) Identifiers() []string {
	var out []string
	for _, s := range []*string{t.TaxID, t.RegNumber} {
		if s != nil && *s != "" {
			out = append(out, strings.ToLower(*s))
		}
	}
	if t.SourceURL != nil && t.SourceURL.Hostname() != "" {
		out = append(out, strings.ToLower(t.SourceURL.Hostname()))
	}
	return out
}

// TicketFromReceipt projects a stored receipt. A receipt whose source URL is
// lost or does not parse still projects, without host or fiscal identifiers.
func TicketFromReceipt(r *Receipt) Ticket {
	t := Ticket{
		ID:       r.ID,
		IssuedAt: r.IssuedAt,
		Total:    r.Total,
		TaxID:    r.TaxID,
	}
	u, err := url.Parse(r.SourceURL)
	if err != nil || r.SourceURL == "" {
		return t
	}
	t.SourceURL = u
	if ft, ok := FiscalTripleFromURL(u); ok {
		t.FD = &ft.Document
		t.FN = &ft.Register
		t.FM = &ft.Memory
		t.RegNumber = &ft.Register
	}
	return t
}

// TicketsFromReceipts projects all receipts.
func TicketsFromReceipts(receipts []*Receipt) []Ticket {
	tickets := make([]Ticket, 0, len(receipts))
	for _, r := range receipts {
		tickets = append(tickets, TicketFromReceipt(r))
	}
	return tickets
}
