package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/application/receipts"
	"github.com/eshaffer321/receipts-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// PrintReceipt prints a receipt and its line items.
func PrintReceipt(w io.Writer, r *receipt.Receipt) {
	fmt.Fprintf(w, "Receipt %s\n", r.ID)
	fmt.Fprintf(w, "  Merchant: %s\n", r.Merchant)
	if r.TaxID != nil {
		fmt.Fprintf(w, "  Tax ID:   %s\n", *r.TaxID)
	}
	if r.Address != nil {
		fmt.Fprintf(w, "  Address:  %s\n", *r.Address)
	}
	fmt.Fprintf(w, "  Issued:   %s\n", r.IssuedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Total:    %s\n", r.Total.StringFixed(2))
	fmt.Fprintf(w, "  URL:      %s\n", r.SourceURL)
	if r.PhotoPath != nil {
		fmt.Fprintf(w, "  Photo:    %s\n", *r.PhotoPath)
	}

	items, err := r.Items()
	if err != nil || len(items) == 0 {
		return
	}
	fmt.Fprintln(w, "  Items:")
	for _, it := range items {
		fmt.Fprintf(w, "    %-32s %8s x %-6s %10s\n", it.Name, it.Price.StringFixed(2), it.Qty.String(), it.Sum.StringFixed(2))
	}
}

// PrintScanResult prints the outcome of a scan.
func PrintScanResult(w io.Writer, res receipts.UpsertResult) {
	status := "unchanged"
	switch {
	case res.Created:
		status = "created"
	case res.Changed:
		status = "updated"
	}
	fmt.Fprintf(w, "Scan: %s\n", status)
	PrintReceipt(w, res.Receipt)
}

// PrintReconcileSummary prints one line per transaction and a summary.
func PrintReconcileSummary(w io.Writer, report reconcile.Report, rowErrors int) {
	for _, res := range report.Results {
		tx := res.Transaction
		desc := ""
		if tx.Merchant != nil {
			desc = *tx.Merchant
		}
		line := fmt.Sprintf("%s  %10s  %-28s", tx.PostedAt.Format(time.DateTime), tx.Amount.StringFixed(2), truncate(desc, 28))
		if m := res.Match; m != nil {
			line += fmt.Sprintf("  -> %s (%s, %ds, %s)", shortID(m.ReceiptID), m.Confidence, m.TimeDeltaSec, m.Source)
		} else {
			line += "  -> no match"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Transactions=%d Matched=%d Skipped=%d\n",
		len(report.Results), report.Matched, report.Skipped+rowErrors)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
