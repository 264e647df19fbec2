package normalize

import (
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// NoticiasAgricolasV1 reads the physical-market tables ("mercado físico")
// published per commodity: one row per praça with price and daily variation.
// The closing date is printed above the table ("Fechamento: 31/05/2024").
type NoticiasAgricolasV1 struct {
	MinRows int
	Columns ColumnMap
}

// NewNoticiasAgricolasV1 returns the extractor with the v1 column layout:
// praça | preço | variação.
func NewNoticiasAgricolasV1() *NoticiasAgricolasV1 {
	return &NoticiasAgricolasV1{
		MinRows: 2,
		Columns: ColumnMap{Market: 0, Date: -1, Value: 1, Variation: 2},
	}
}

func (e *NoticiasAgricolasV1) Site() string    { return catalog.SiteNoticiasAgricolas }
func (e *NoticiasAgricolasV1) Version() string { return "v1" }

// Extract selects the first table mentioning the page keyword and maps its rows.
func (e *NoticiasAgricolasV1) Extract(doc *goquery.Document, c catalog.Commodity) ([]models.Quote, error) {
	page, ok := c.Page(e.Site())
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.Slug, ErrNoContract)
	}
	table, ok := TableSelector{Keyword: page.Keyword, MinRows: e.MinRows}.Select(doc)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", e.Site(), c.Slug, ErrNoTable)
	}

	date, err := e.closingDate(doc, table)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", e.Site(), c.Slug, err)
	}

	width := e.Columns.width()
	var quotes []models.Quote
	for _, cells := range dataRows(table) {
		if len(cells) < width {
			continue
		}
		value, err := utils.ParseBRFloat(cells[e.Columns.Value])
		if err != nil {
			// "s/c" (sem cotação) and blank cells
			continue
		}
		market := cellAt(cells, e.Columns.Market)
		if market == "" {
			market = page.Market
		}
		quotes = append(quotes, models.Quote{
			Commodity: c.Slug,
			Date:      date,
			Value:     value,
			Unit:      c.Unit,
			Market:    market,
			Variation: parseVariation(cellAt(cells, e.Columns.Variation)),
			Source:    e.Site(),
		})
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%s %s: %w", e.Site(), c.Slug, ErrNoRows)
	}
	return quotes, nil
}

// closingDate looks for the date in the table's enclosing block first and
// falls back to the first date anywhere on the page.
func (e *NoticiasAgricolasV1) closingDate(doc *goquery.Document, table *goquery.Selection) (time.Time, error) {
	candidates := []string{
		table.Closest(".cotacao").Find(".fechamento").Text(),
		table.Closest(".cotacao").Text(),
		doc.Find(".fechamento").First().Text(),
	}
	for _, text := range candidates {
		if s, ok := findDate(text); ok {
			return utils.ParseDateBR(s)
		}
	}
	return time.Time{}, fmt.Errorf("closing date not found")
}
