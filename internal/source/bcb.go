package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// SeriesUSDVenda is the SGS code of the PTAX USD/BRL selling rate.
const SeriesUSDVenda = 1

// ReferenceRate reads a Banco Central SGS series and reports the latest
// value with its day-over-day variation.
type ReferenceRate struct {
	base
	baseURL string
	series  int
	code    string
}

// NewReferenceRate creates a client for series (e.g., SeriesUSDVenda)
// reported under currency code.
func NewReferenceRate(baseURL string, series int, code string, opts ...Option) *ReferenceRate {
	return &ReferenceRate{
		base:    newBase(opts),
		baseURL: strings.TrimRight(baseURL, "/"),
		series:  series,
		code:    code,
	}
}

// Name returns the source name.
func (r *ReferenceRate) Name() string { return "BCB SGS" }

// sgsPoint accepts both the live SGS keys (data/valor) and the plain
// date/value shape.
type sgsPoint struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
	Date  string `json:"date"`
	Value string `json:"value"`
}

func (p sgsPoint) date() string {
	if p.Data != "" {
		return p.Data
	}
	return p.Date
}

func (p sgsPoint) value() string {
	if p.Valor != "" {
		return p.Valor
	}
	return p.Value
}

// Fetch returns a single ReferenceRate record built from the last two points.
func (r *ReferenceRate) Fetch(ctx context.Context) Result[models.ReferenceRate] {
	start := time.Now()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	url := fmt.Sprintf("%s/dados/serie/bcdata.sgs.%d/dados/ultimos/2?formato=json", r.baseURL, r.series)
	body, err := r.get(ctx, r.Name(), url, "application/json")
	if err != nil {
		return finish[models.ReferenceRate](&r.base, r.Name(), "reference-rate", start, nil, err)
	}

	var points []sgsPoint
	if err := json.Unmarshal(body, &points); err != nil {
		return finish[models.ReferenceRate](&r.base, r.Name(), "reference-rate", start, nil, parseError(r.Name(), err))
	}
	rate, err := rateFromSeries(r.code, points)
	if err != nil {
		return finish[models.ReferenceRate](&r.base, r.Name(), "reference-rate", start, nil, parseError(r.Name(), err))
	}
	rate.Source = r.Name()
	return finish(&r.base, r.Name(), "reference-rate", start, []models.ReferenceRate{rate}, nil)
}

// rateFromSeries builds a ReferenceRate from chronologically ordered points.
// The variation is (last-prev)/prev*100 rounded to two decimals, or zero when
// only one point is available.
func rateFromSeries(code string, points []sgsPoint) (models.ReferenceRate, error) {
	if len(points) == 0 {
		return models.ReferenceRate{}, fmt.Errorf("empty series")
	}
	last := points[len(points)-1]
	value, err := utils.ParseBRNumber(last.value())
	if err != nil {
		return models.ReferenceRate{}, err
	}
	date, err := utils.ParseDateBR(last.date())
	if err != nil {
		return models.ReferenceRate{}, err
	}

	variation := decimal.Zero
	if len(points) > 1 {
		prev, err := utils.ParseBRNumber(points[len(points)-2].value())
		if err != nil {
			return models.ReferenceRate{}, err
		}
		if !prev.IsZero() {
			variation = value.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
		}
	}

	v := value.InexactFloat64()
	return models.ReferenceRate{
		Code:      code,
		Compra:    v,
		Venda:     v,
		Variation: variation.InexactFloat64(),
		Date:      date,
	}, nil
}
