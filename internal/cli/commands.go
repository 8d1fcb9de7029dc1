package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/statement"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/transaction"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/fsutil"
)

// RunScan fetches the receipt behind a scanned payload and stores it.
func RunScan(ctx context.Context, app *App, flags *ScanFlags, w io.Writer) error {
	var photo []byte
	if flags.Photo != "" {
		data, err := os.ReadFile(flags.Photo)
		if err != nil {
			return fmt.Errorf("read photo: %w", err)
		}
		photo = data
	}

	res, err := app.Receipts.Scan(ctx, flags.Payload, photo)
	if err != nil {
		return err
	}
	PrintScanResult(w, res)
	return nil
}

// RunRecover re-derives a receipt's source URL from its stored photo.
func RunRecover(ctx context.Context, app *App, id string, w io.Writer) error {
	r, err := app.Receipts.Recover(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Recovered:")
	PrintReceipt(w, r)
	return nil
}

// RunReconcile matches a statement file against the stored receipts. The
// file is read as XLSX when its extension says so and as the statement
// service's JSON otherwise.
func RunReconcile(ctx context.Context, app *App, flags *ReconcileFlags, w io.Writer) error {
	rows, rowErrs, err := readStatement(app.Statement, flags.Statement)
	if err != nil {
		return err
	}
	for _, re := range rowErrs {
		app.Logger.Warn("statement row skipped", "row", re.Index, "error", re.Err)
	}

	if err := app.Reconcile.Rebuild(ctx); err != nil {
		return err
	}
	report, err := app.Reconcile.Reconcile(ctx, rows)
	if err != nil {
		return err
	}
	PrintReconcileSummary(w, report, len(rowErrs))

	if flags.Output == "" {
		return nil
	}
	data, err := app.Reconcile.ExportXLSX(ctx, report)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(flags.Output, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(w, "Report written to %s\n", flags.Output)
	return nil
}

func readStatement(dec *statement.Decoder, path string) ([]transaction.Row, []statement.RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return dec.DecodeXLSX(f)
	}
	return dec.DecodeJSON(f)
}
