package dto

import (
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// LineItemResponse represents one purchased position.
type LineItemResponse struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Qty   string `json:"qty"`
	Sum   string `json:"sum"`
}

// ReceiptResponse represents a receipt in API responses. Money is rendered
// as fixed two-decimal strings.
type ReceiptResponse struct {
	ID        string             `json:"id"`
	IssuedAt  string             `json:"issued_at"`
	Total     string             `json:"total"`
	Merchant  string             `json:"merchant"`
	TaxID     string             `json:"tax_id,omitempty"`
	Address   string             `json:"address,omitempty"`
	SourceURL string             `json:"source_url"`
	PhotoPath string             `json:"photo_path,omitempty"`
	Items     []LineItemResponse `json:"items,omitempty"`
	UpdatedAt string             `json:"updated_at"`
}

// ReceiptListResponse is returned when listing receipts.
type ReceiptListResponse struct {
	Receipts []ReceiptResponse `json:"receipts"`
	Count    int               `json:"count"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ScanResponse is returned after a scan or upsert.
type ScanResponse struct {
	Receipt ReceiptResponse `json:"receipt"`
	Created bool            `json:"created"`
	Changed bool            `json:"changed"`
}

// MatchResponse represents a stored transaction to receipt match.
type MatchResponse struct {
	TransactionID string `json:"transaction_id"`
	ReceiptID     string `json:"receipt_id"`
	Confidence    string `json:"confidence"`
	TimeDeltaSec  int64  `json:"time_delta_sec"`
	Source        string `json:"source"`
	CreatedAt     string `json:"created_at"`
}

// ReconcileRowResponse is the outcome for one statement transaction.
type ReconcileRowResponse struct {
	TransactionID string         `json:"transaction_id"`
	PostedAt      string         `json:"posted_at"`
	Amount        string         `json:"amount"`
	Description   string         `json:"description,omitempty"`
	Match         *MatchResponse `json:"match,omitempty"`
	Cached        bool           `json:"cached"`
}

// ReconcileResponse is returned when reconciling a statement.
type ReconcileResponse struct {
	Transactions []ReconcileRowResponse `json:"transactions"`
	Matched      int                    `json:"matched"`
	Skipped      int                    `json:"skipped"`
	RowErrors    []string               `json:"row_errors,omitempty"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ToReceiptResponse converts a stored receipt. Undecodable line items are
// omitted.
func ToReceiptResponse(r *receipt.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		ID:        r.ID,
		IssuedAt:  r.IssuedAt.Format(time.RFC3339),
		Total:     r.Total.StringFixed(2),
		Merchant:  r.Merchant,
		TaxID:     deref(r.TaxID),
		Address:   deref(r.Address),
		SourceURL: r.SourceURL,
		PhotoPath: deref(r.PhotoPath),
		UpdatedAt: r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if items, err := r.Items(); err == nil {
		for _, it := range items {
			resp.Items = append(resp.Items, LineItemResponse{
				Name:  it.Name,
				Price: it.Price.StringFixed(2),
				Qty:   it.Qty.String(),
				Sum:   it.Sum.StringFixed(2),
			})
		}
	}
	return resp
}

// ToMatchResponse converts a stored match.
func ToMatchResponse(txID string, m matcher.ReceiptMatch) MatchResponse {
	return MatchResponse{
		TransactionID: txID,
		ReceiptID:     m.ReceiptID,
		Confidence:    string(m.Confidence),
		TimeDeltaSec:  m.TimeDeltaSec,
		Source:        string(m.Source),
		CreatedAt:     m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
