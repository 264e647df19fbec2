// Package normalize maps heterogeneous upstream payloads (HTML price tables,
// RSS items) into the canonical models. Each HTML site contract lives behind
// a versioned TableExtractor so markup changes stay isolated and testable.
package normalize

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

var (
	// ErrNoTable is returned when no table on the page satisfies the selector.
	ErrNoTable = errors.New("no matching table")
	// ErrNoRows is returned when a table was found but no row could be parsed.
	ErrNoRows = errors.New("no parsable rows")
	// ErrNoContract is returned when the commodity has no page for the site.
	ErrNoContract = errors.New("commodity has no page contract for site")
)

// TableExtractor turns one site's HTML page into quotes.
type TableExtractor interface {
	Site() string
	Version() string
	Extract(doc *goquery.Document, c catalog.Commodity) ([]models.Quote, error)
}

// TableSelector picks the price table out of a page that may carry several.
// A table qualifies when its text contains Keyword (case- and accent-folded)
// and it has at least MinRows data rows. The first qualifying table in
// document order wins.
type TableSelector struct {
	Keyword string
	MinRows int
}

// Select returns the first qualifying table.
func (s TableSelector) Select(doc *goquery.Document) (*goquery.Selection, bool) {
	kw := utils.Fold(s.Keyword)
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if len(dataRows(t)) < s.MinRows {
			return true
		}
		if kw != "" && !strings.Contains(utils.Fold(t.Text()), kw) {
			return true
		}
		found = t
		return false
	})
	return found, found != nil
}

// ColumnMap maps canonical fields to zero-based cell positions. A negative
// position means the column is absent.
type ColumnMap struct {
	Market    int
	Date      int
	Value     int
	Variation int
}

func (m ColumnMap) width() int {
	w := 0
	for _, p := range []int{m.Market, m.Date, m.Value, m.Variation} {
		if p+1 > w {
			w = p + 1
		}
	}
	return w
}

// cellAt returns the text at pos, or "" for an absent column.
func cellAt(cells []string, pos int) string {
	if pos < 0 || pos >= len(cells) {
		return ""
	}
	return cells[pos]
}

// dataRows returns the cell texts of every row that has <td> cells.
// Header rows made only of <th> are skipped.
func dataRows(table *goquery.Selection) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return
		}
		cells := make([]string, 0, tds.Length())
		tds.Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, cleanCell(td.Text()))
		})
		rows = append(rows, cells)
	})
	return rows
}

func cleanCell(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var dateRe = regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`)

// findDate returns the first DD/MM/YYYY date in text.
func findDate(text string) (string, bool) {
	m := dateRe.FindString(text)
	return m, m != ""
}

// parseVariation parses an optional percent cell. Empty or dash cells yield nil.
func parseVariation(cell string) *float64 {
	v, err := utils.ParseBRFloat(cell)
	if err != nil {
		return nil
	}
	return &v
}
