package salyk

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/money"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// Parser extracts receipts from ticket HTML. Every field is found by its own
// heuristic; a heuristic that finds nothing never aborts the others.
type Parser struct {
	layout   *compiledLayout
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewParser compiles the layout. Timestamps on the page are interpreted in loc.
func NewParser(layout Layout, loc *time.Location, logger *slog.Logger) (*Parser, error) {
	compiled, err := compileLayout(layout)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{layout: compiled, location: loc, now: time.Now, logger: logger}, nil
}

// Parse extracts a receipt from a decoded HTML document. A document in which
// no field at all can be found is reported as an extraction error.
func (p *Parser) Parse(htmlText string) (*receipt.ParsedReceipt, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, &FetchError{Kind: KindExtraction, Err: err, Snippet: snippet(htmlText)}
	}

	text := documentText(doc)

	merchant, merchantFound := p.extractMerchant(doc)
	taxID := p.extractTaxID(doc)
	address := p.extractAddress(doc)
	issuedAt, dateFound := p.extractIssuedAt(text)
	items := p.extractItems(doc)
	candidates := p.totalCandidates(text)

	if !merchantFound && taxID == nil && address == nil && !dateFound && len(items) == 0 && len(candidates) == 0 {
		return nil, &FetchError{Kind: KindExtraction, Err: ErrExtraction, Snippet: snippet(text)}
	}

	parsed := &receipt.ParsedReceipt{
		Merchant: merchant,
		TaxID:    taxID,
		Address:  address,
		IssuedAt: issuedAt,
		Items:    items,
	}
	if !dateFound {
		parsed.IssuedAt = p.now().In(p.location)
		parsed.IssuedAtFallback = true
		p.logger.Warn("no issue timestamp in document, using current time")
	}
	parsed.Total = ReconcileTotal(candidates, parsed.ItemsSum())

	p.logger.Info("parsed receipt",
		"merchant", parsed.Merchant,
		"tax_id", deref(parsed.TaxID),
		"issued_at", parsed.IssuedAt.Format(time.RFC3339),
		"total", parsed.Total.StringFixed(2),
		"items_count", len(parsed.Items),
	)
	p.logger.Debug("total reconciliation",
		"candidates", len(candidates),
		"items_sum", parsed.ItemsSum().StringFixed(2),
	)
	return parsed, nil
}

// ReconcileTotal returns max(largest textual candidate, sum of item sums).
func ReconcileTotal(candidates []decimal.Decimal, itemsSum decimal.Decimal) decimal.Decimal {
	total := itemsSum
	for _, c := range candidates {
		if c.GreaterThan(total) {
			total = c
		}
	}
	return total
}

func (p *Parser) extractMerchant(doc *goquery.Document) (string, bool) {
	blocks := doc.Find(p.layout.HeaderSelector).First().Find(p.layout.HeaderBlockSelector)
	if blocks.Length() <= p.layout.MerchantBlockIndex {
		return receipt.UnknownMerchant, false
	}
	name := collapse(blocks.Eq(p.layout.MerchantBlockIndex).Text())
	if name == "" {
		return receipt.UnknownMerchant, false
	}
	return name, true
}

func (p *Parser) extractTaxID(doc *goquery.Document) *string {
	if p.layout.TaxIDMarker == "" {
		return nil
	}
	var found *string
	doc.Find(p.layout.HeaderSelector + " " + p.layout.HeaderBlockSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapse(s.Text())
		if !strings.Contains(text, p.layout.TaxIDMarker) {
			return true
		}
		value := collapse(s.Find(p.layout.TaxIDValueSelector).First().Text())
		if value == "" {
			if m := p.layout.taxID.FindStringSubmatch(text); m != nil {
				value = m[1]
			}
		}
		if value != "" {
			found = &value
		}
		return false
	})
	return found
}

func (p *Parser) extractAddress(doc *goquery.Document) *string {
	addr := collapse(doc.Find(p.layout.AddressSelector).First().Text())
	if addr == "" {
		return nil
	}
	return &addr
}

func (p *Parser) extractIssuedAt(text string) (time.Time, bool) {
	m := p.layout.date.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	raw := m[0]
	if len(m) > 1 {
		raw = m[1]
	}
	t, err := time.ParseInLocation(p.layout.DateLayout, collapse(raw), p.location)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (p *Parser) extractItems(doc *goquery.Document) []receipt.LineItem {
	var items []receipt.LineItem
	table := doc.Find(p.layout.ItemsTableSelector).First()
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < p.layout.ItemMinCells {
			return
		}
		// Header and footer rows have no numeric position index.
		if _, err := strconv.Atoi(collapse(cells.Eq(0).Text())); err != nil {
			return
		}

		name := collapse(cells.Eq(p.layout.ItemNameCell).Text())
		price, _ := money.Parse(cells.Eq(p.layout.ItemPriceCell).Text())
		qty, _ := money.Parse(cells.Eq(p.layout.ItemQtyCell).Text())
		sum, _ := money.Parse(cells.Eq(p.layout.ItemSumCell).Text())
		if name == "" || !sum.IsPositive() {
			return
		}
		items = append(items, receipt.LineItem{Name: name, Price: price, Qty: qty, Sum: sum})
	})
	return items
}

func (p *Parser) totalCandidates(text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, re := range p.layout.totals {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			if d, ok := money.Parse(m[1]); ok && d.IsPositive() {
				out = append(out, d)
			}
		}
	}
	return out
}

// documentText returns the visible text of the document in document order,
// with whitespace (including NBSP) collapsed to single spaces.
func documentText(doc *goquery.Document) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
