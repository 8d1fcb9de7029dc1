// Package salyk reads fiscal receipts published by the Kyrgyz tax authority
// (tax.salyk.kg).
//
// The flow is: Normalizer turns a scanned QR payload into a canonical lookup
// URL, Client fetches the ticket page, and Parser extracts a
// receipt.ParsedReceipt from the HTML using the selectors and patterns in
// Layout.
package salyk

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/money"
)

const (
	DefaultHost       = "tax.salyk.kg"
	DefaultTicketPath = "/client/api/v1/ticket"
)

// ErrNotReceipt is returned for payloads that are not a receipt lookup URL.
var ErrNotReceipt = errors.New("not a receipt reference")

// Normalizer canonicalizes scanned payloads. It is a pure function of its
// input, so the live camera path and the re-scan-from-photo path converge on
// the same URL.
type Normalizer struct {
	Host       string
	TicketPath string
}

// DefaultNormalizer targets the production receipt authority.
func DefaultNormalizer() Normalizer {
	return Normalizer{Host: DefaultHost, TicketPath: DefaultTicketPath}
}

// Normalize upgrades the scheme to https, forces the canonical host whatever
// the code carried, and requires the ticket path in the percent-encoded path.
// The query string is kept untouched.
func (n Normalizer) Normalize(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ErrNotReceipt
	}
	if len(s) >= 7 && strings.EqualFold(s[:7], "http://") {
		s = "https://" + s[7:]
	}
	if !strings.Contains(s, "://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, ErrNotReceipt
	}

	host := n.Host
	if host == "" {
		host = DefaultHost
	}
	ticketPath := n.TicketPath
	if ticketPath == "" {
		ticketPath = DefaultTicketPath
	}

	u.Scheme = "https"
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	u.RawPath = ""

	if !strings.Contains(u.EscapedPath(), ticketPath) {
		return nil, ErrNotReceipt
	}
	return u, nil
}

// IsTicketURL reports whether u already is a canonical lookup URL.
func (n Normalizer) IsTicketURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	norm, err := n.Normalize(u.String())
	return err == nil && norm.String() == u.String()
}

// AmountHint returns the amount the QR code advertises in its "sum" query
// parameter (minor units), if any.
func AmountHint(u *url.URL) (decimal.Decimal, bool) {
	raw := u.Query().Get("sum")
	if raw == "" {
		return decimal.Zero, false
	}
	units, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || units < 0 {
		return decimal.Zero, false
	}
	return money.FromMinorUnits(units), true
}
