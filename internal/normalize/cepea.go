package normalize

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// CepeaV1 reads CEPEA/ESALQ indicator tables: one row per date, newest first,
// with the BRL value and the daily variation. The market is fixed by the
// page contract.
type CepeaV1 struct {
	MinRows int
	Columns ColumnMap
}

// NewCepeaV1 returns the extractor with the v1 column layout:
// data | valor R$ | var./dia | var./mês | valor US$.
func NewCepeaV1() *CepeaV1 {
	return &CepeaV1{
		MinRows: 1,
		Columns: ColumnMap{Market: -1, Date: 0, Value: 1, Variation: 2},
	}
}

func (e *CepeaV1) Site() string    { return catalog.SiteCepea }
func (e *CepeaV1) Version() string { return "v1" }

// Extract maps every dated row of the first indicator table naming the
// page keyword.
func (e *CepeaV1) Extract(doc *goquery.Document, c catalog.Commodity) ([]models.Quote, error) {
	page, ok := c.Page(e.Site())
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.Slug, ErrNoContract)
	}
	table, ok := TableSelector{Keyword: page.Keyword, MinRows: e.MinRows}.Select(doc)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", e.Site(), c.Slug, ErrNoTable)
	}

	market := page.Market
	if market == "" {
		market = "Indicador CEPEA"
	}

	width := e.Columns.width()
	var quotes []models.Quote
	for _, cells := range dataRows(table) {
		if len(cells) < width {
			continue
		}
		date, err := utils.ParseDateBR(cells[e.Columns.Date])
		if err != nil {
			continue
		}
		value, err := utils.ParseBRFloat(cells[e.Columns.Value])
		if err != nil {
			continue
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
