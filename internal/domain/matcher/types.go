package matcher

import (
	"strings"
	"time"
)

// Config holds matcher configuration
type Config struct {
	// BucketSize is the width of the time windows receipts are indexed under.
	BucketSize time.Duration
	// MerchantAliases maps a lower-cased transaction description to known
	// identifiers of that merchant (tax id, register number or receipt host).
	MerchantAliases map[string][]string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BucketSize: time.Hour,
	}
}

// Confidence is the tier assigned to a match.
type Confidence string

const (
	// ConfidenceExact: a single candidate, or the merchant alias table confirmed the receipt.
	ConfidenceExact Confidence = "exact"
	// ConfidenceHigh: several candidates; the closest in time was chosen.
	ConfidenceHigh Confidence = "high"
)

// Source records who created a match.
type Source string

const (
	SourceAuto Source = "auto"
	SourceUser Source = "user"
)

// ReceiptMatch associates one transaction with one receipt.
type ReceiptMatch struct {
	ReceiptID    string     `json:"receipt_id"`
	Confidence   Confidence `json:"confidence"`
	TimeDeltaSec int64      `json:"time_delta_sec"`
	CreatedAt    time.Time  `json:"created_at"`
	Source       Source     `json:"source,omitempty"`
}

// IsUser reports whether the match was set explicitly by the user.
func (m *ReceiptMatch) IsUser() bool {
	return m != nil && m.Source == SourceUser
}

func normalizeAliases(in map[string][]string) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(in))
	for merchant, aliases := range in {
		key := strings.ToLower(strings.TrimSpace(merchant))
		if key == "" {
			continue
		}
		set := out[key]
		if set == nil {
			set = make(map[string]bool, len(aliases))
			out[key] = set
		}
		for _, a := range aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				set[a] = true
			}
		}
	}
	return out
}
