package dto

// ScanRequest is the body of POST /api/receipts/scan.
type ScanRequest struct {
	// Payload is the raw text read from the receipt's QR code.
	Payload string `json:"payload" binding:"required"`
	// Photo is an optional base64-encoded JPEG or PNG of the receipt.
	Photo string `json:"photo,omitempty"`
}

// LinkRequest is the body of PUT /api/matches/:txid.
type LinkRequest struct {
	ReceiptID string `json:"receipt_id" binding:"required"`
}

// ReceiptListParams represents query parameters for listing receipts.
type ReceiptListParams struct {
	TaxID    string `form:"tax_id"`
	Merchant string `form:"merchant"`
	From     string `form:"from"`
	To       string `form:"to"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// DefaultReceiptListParams returns default values for receipt list params.
func DefaultReceiptListParams() ReceiptListParams {
	return ReceiptListParams{
		Limit: 50,
	}
}
