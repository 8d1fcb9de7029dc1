package salyk

import (
	"fmt"
	"regexp"
)

// amountToken matches a money amount, allowing space-grouped thousands.
const amountToken = `(\d{1,3}(?: \d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

// DefaultTotalPatterns are the labels a stated total follows on the ticket
// page. Each pattern must capture the amount in group 1.
var DefaultTotalPatterns = []string{
	`(?i)ИТОГ[ОА]?[^\d]{0,10}` + amountToken,
	`(?i)К\s*ОПЛАТЕ[^\d]{0,10}` + amountToken,
	`(?i)СУММА\s*ЧЕКА[^\d]{0,10}` + amountToken,
	`(?i)\bTOTAL\b[^\d]{0,10}` + amountToken,
	`(?i)\bAMOUNT\s+DUE\b[^\d]{0,10}` + amountToken,
	`(?i)\bRECEIPT\s+SUM\b[^\d]{0,10}` + amountToken,
}

// Layout describes where fields live on the ticket page. Markup drift on the
// authority's site is handled by changing this data, not the parser.
type Layout struct {
	HeaderSelector      string
	HeaderBlockSelector string
	MerchantBlockIndex  int
	TaxIDMarker         string
	TaxIDValueSelector  string
	AddressSelector     string

	ItemsTableSelector string
	ItemMinCells       int
	ItemNameCell       int
	ItemPriceCell      int
	ItemQtyCell        int
	ItemSumCell        int

	DatePattern   string
	DateLayout    string
	TotalPatterns []string
}

// DefaultLayout matches the tax.salyk.kg ticket page.
func DefaultLayout() Layout {
	return Layout{
		HeaderSelector:      ".content .text-align-center",
		HeaderBlockSelector: ".mb-1",
		MerchantBlockIndex:  1,
		TaxIDMarker:         "ИНН",
		TaxIDValueSelector:  "span",
		AddressSelector:     ".content > .mb-1",

		ItemsTableSelector: "table.table",
		ItemMinCells:       5,
		ItemNameCell:       1,
		ItemPriceCell:      2,
		ItemQtyCell:        3,
		ItemSumCell:        4,

		DatePattern:   `(\d{2}\.\d{2}\.\d{4}\s+\d{2}:\d{2}:\d{2})`,
		DateLayout:    "02.01.2006 15:04:05",
		TotalPatterns: DefaultTotalPatterns,
	}
}

type compiledLayout struct {
	Layout
	date   *regexp.Regexp
	totals []*regexp.Regexp
	taxID  *regexp.Regexp
}

func compileLayout(l Layout) (*compiledLayout, error) {
	c := &compiledLayout{Layout: l}

	var err error
	if c.date, err = regexp.Compile(l.DatePattern); err != nil {
		return nil, fmt.Errorf("invalid date pattern: %w", err)
	}
	for _, p := range l.TotalPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid total pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("total pattern %q has no capture group", p)
		}
		c.totals = append(c.totals, re)
	}
	if l.TaxIDMarker != "" {
		c.taxID = regexp.MustCompile(regexp.QuoteMeta(l.TaxIDMarker) + `\s*:?\s*(\S+)`)
	}
	return c, nil
}
