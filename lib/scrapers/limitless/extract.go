package limitless

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PrintRow holds one print's extracted prices. Slice position encodes the
// print version: index 0 is the default print, index N the N-th art
// variant, exactly as the rows appear in the upstream prints table.
type PrintRow struct {
	USD     float64
	EUR     float64
	USDLink string
	EURLink string
}

var priceTextRegex = regexp.MustCompile(`[\d.,]+`)

// ParsePrice pulls a float out of scraped price text. Upstream formatting
// varies: non-breaking spaces, "2,980.66" (thousands comma) and "2980,66"
// (decimal comma) all appear. With both separators present the comma is a
// thousands separator; a lone comma is a decimal point. Anything
// unparsable yields 0 — garbled markup must not abort an extraction.
func ParsePrice(text string) float64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
	m := priceTextRegex.FindString(cleaned)
	if m == "" {
		return 0
	}

	hasComma := strings.Contains(m, ",")
	hasDot := strings.Contains(m, ".")
	switch {
	case hasComma && hasDot:
		m = strings.ReplaceAll(m, ",", "")
	case hasComma:
		m = strings.ReplaceAll(m, ",", ".")
	}

	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// ExtractPrints locates the prints table and returns one PrintRow per
// non-header row. A document without a recognizable table yields an empty
// slice, not an error: pages for unreleased or unlisted prints
// legitimately omit pricing.
//
// A missing price element inside a row still produces a zero entry for
// that currency so row positions stay aligned between the USD and EUR
// columns; position is the version index.
func ExtractPrints(doc *goquery.Document) []PrintRow {
	table := findPrintsTable(doc)
	if table == nil {
		return nil
	}

	var rows []PrintRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Find("th").Length() > 0 {
			return
		}

		var row PrintRow
		if usd := tr.Find("a.card-price.usd").First(); usd.Length() > 0 {
			row.USD = ParsePrice(usd.Text())
			row.USDLink = usd.AttrOr("href", "")
		}
		if eur := tr.Find("a.card-price.eur").First(); eur.Length() > 0 {
			row.EUR = ParsePrice(eur.Text())
			row.EURLink = eur.AttrOr("href", "")
		}
		rows = append(rows, row)
	})

	return rows
}

// selector priority: the structural marker, then the fallback container,
// then any table whose header mentions both currencies
func findPrintsTable(doc *goquery.Document) *goquery.Selection {
	if table := doc.Find("table.prints-table").First(); table.Length() > 0 {
		return table
	}
	if table := doc.Find("div.card-prints table").First(); table.Length() > 0 {
		return table
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		header := strings.ToUpper(table.Find("th").Text())
		if strings.Contains(header, "USD") && strings.Contains(header, "EUR") {
			found = table
			return false
		}
		return true
	})
	return found
}

// ResolvePrint picks the row for the requested version. Out-of-bounds
// versions (the upstream print list grows and shrinks over time) degrade
// to the default print instead of failing the request; an empty list
// resolves to the all-zero row.
func ResolvePrint(rows []PrintRow, version int) PrintRow {
	if len(rows) == 0 {
		return PrintRow{}
	}
	if version < 0 || version >= len(rows) {
		version = 0
	}
	return rows[version]
}
