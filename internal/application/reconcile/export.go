package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Matches"

var reportHeaders = []string{
	"Posted At",
	"Description",
	"Amount",
	"Receipt ID",
	"Merchant",
	"Receipt Total",
	"Confidence",
	"Delta (s)",
	"Source",
}

// ExportXLSX renders a reconcile report as an XLSX workbook, one row per
// transaction. Merchant and total are looked up for matched receipts; a
// receipt that cannot be loaded leaves those cells empty.
func (s *Service) ExportXLSX(ctx context.Context, report Report) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return nil, err
	}
	for i, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(reportSheet, cell, h)
	}

	row := 2
	for _, res := range report.Results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(reportSheet, cell, v)
		}

		tx := res.Transaction
		write(1, tx.PostedAt.Format("2006-01-02 15:04:05"))
		if tx.Merchant != nil {
			write(2, *tx.Merchant)
		}
		write(3, tx.Amount.StringFixed(2))

		if m := res.Match; m != nil {
			write(4, m.ReceiptID)
			if r, err := s.source.Get(ctx, m.ReceiptID); err == nil {
				write(5, r.Merchant)
				write(6, r.Total.StringFixed(2))
			} else {
				s.logger.Warn("matched receipt not loadable", "receipt_id", m.ReceiptID, "error", err)
			}
			write(7, string(m.Confidence))
			write(8, m.TimeDeltaSec)
			write(9, string(m.Source))
		}
		row++
	}

	_ = f.SetColWidth(reportSheet, "A", "A", 20) // posted at
	_ = f.SetColWidth(reportSheet, "B", "B", 32) // description
	_ = f.SetColWidth(reportSheet, "D", "D", 66) // receipt id
	_ = f.SetColWidth(reportSheet, "E", "E", 28) // merchant

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("match report exported",
		"rows", len(report.Results),
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}
