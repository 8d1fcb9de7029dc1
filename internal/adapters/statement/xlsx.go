package statement

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/money"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/transaction"
)

// ErrNoHeader is returned when no sheet row looks like a statement header.
var ErrNoHeader = errors.New("statement header row not found")

// ErrInvalidAmount is reported for a money cell that holds text but no amount.
var ErrInvalidAmount = errors.New("invalid amount")

type column int

const (
	colDate column = iota
	colDescription
	colCredit
	colDebit
	colAmount
	colCount
)

// headerKeywords are matched as lower-cased substrings of header cells, in
// order. Credit and debit come before amount because their headers often
// contain the generic amount word too.
var headerKeywords = []struct {
	col      column
	keywords []string
}{
	{colCredit, []string{"зачисл", "приход", "поступ", "credit"}},
	{colDebit, []string{"списан", "расход", "debit"}},
	{colDate, []string{"дата", "date"}},
	{colDescription, []string{"описание", "назначение", "детали", "description", "details", "merchant"}},
	{colAmount, []string{"сумма", "amount"}},
}

// headerScanRows bounds how far down the sheet the header is looked for;
// bank exports put account details above the table.
const headerScanRows = 30

// DecodeXLSX reads the first sheet of a bank XLSX export. Rows without a
// readable date are skipped and reported.
func (d *Decoder) DecodeXLSX(r io.Reader) ([]transaction.Row, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidStatement, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidStatement)
	}
	sheetRows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidStatement, err)
	}

	headerAt, cols, ok := findHeader(sheetRows)
	if !ok {
		return nil, nil, ErrNoHeader
	}

	var (
		rows    []transaction.Row
		rowErrs []RowError
	)
	for i := headerAt + 1; i < len(sheetRows); i++ {
		cells := sheetRows[i]
		if isBlank(cells) {
			continue
		}
		row, err := d.sheetRow(cells, cols)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i + 1, Err: err})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

func findHeader(rows [][]string) (int, [colCount]int, bool) {
	var cols [colCount]int
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		for c := range cols {
			cols[c] = -1
		}
		for j, cell := range rows[i] {
			name := strings.ToLower(strings.TrimSpace(cell))
			if name == "" {
				continue
			}
			for _, hk := range headerKeywords {
				if cols[hk.col] >= 0 || !containsAny(name, hk.keywords) {
					continue
				}
				cols[hk.col] = j
				break
			}
		}
		hasMoney := cols[colAmount] >= 0 || cols[colCredit] >= 0 || cols[colDebit] >= 0
		if cols[colDate] >= 0 && hasMoney {
			return i, cols, true
		}
	}
	return 0, cols, false
}

func (d *Decoder) sheetRow(cells []string, cols [colCount]int) (transaction.Row, error) {
	raw := cell(cells, cols[colDate])
	posted, err := d.sheetTime(raw)
	if err != nil {
		return transaction.Row{}, err
	}

	row := transaction.Row{
		Date:        posted,
		PostedAt:    posted,
		Description: strings.TrimSpace(cell(cells, cols[colDescription])),
	}
	for _, m := range []struct {
		col column
		dst **decimal.Decimal
	}{
		{colCredit, &row.Credit},
		{colDebit, &row.Debit},
		{colAmount, &row.Amount},
	} {
		if *m.dst, err = sheetAmount(cell(cells, cols[m.col])); err != nil {
			return transaction.Row{}, err
		}
	}
	if row.Amount == nil && row.Credit == nil && row.Debit == nil {
		return transaction.Row{}, transaction.ErrNoAmount
	}
	return row, nil
}

// sheetTime reads a date cell holding either text or an Excel serial number.
func (d *Decoder) sheetTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// Serial dates carry wall-clock time without a zone.
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, d.Location), nil
	}
	return parseTime(raw, d.Location)
}

// sheetAmount parses a money cell. Blank cells and a lone dash are nil.
func sheetAmount(raw string) (*decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" || s == "—" {
		return nil, nil
	}
	v, ok := money.Parse(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return &v, nil
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
