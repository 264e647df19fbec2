package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// Yahoo reads the latest futures price per symbol from the Yahoo Finance
// v8 chart API.
type Yahoo struct {
	base
	baseURL string
}

// NewYahoo creates a Yahoo Finance client.
func NewYahoo(baseURL string, opts ...Option) *Yahoo {
	return &Yahoo{base: newBase(opts), baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the source name.
func (y *Yahoo) Name() string { return "Yahoo Finance" }

type yfChartResponse struct {
	Chart struct {
		Result []struct {
			Meta yfChartMeta `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yfChartMeta struct {
	Symbol             string   `json:"symbol"`
	Currency           string   `json:"currency"`
	ExchangeName       string   `json:"exchangeName"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	ChartPreviousClose float64  `json:"chartPreviousClose"`
	PreviousClose      float64  `json:"previousClose"`
	RegularMarketTime  int64    `json:"regularMarketTime"`
}

// Quote fetches the latest price for the commodity's futures symbol.
func (y *Yahoo) Quote(ctx context.Context, c catalog.Commodity) Result[models.InternationalPrice] {
	start := time.Now()
	name := y.Name() + " " + c.YahooSymbol
	if c.YahooSymbol == "" {
		err := parseError(name, fmt.Errorf("%s has no futures symbol", c.Slug))
		return finish[models.InternationalPrice](&y.base, name, "international", start, nil, err)
	}
	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", y.baseURL, url.PathEscape(c.YahooSymbol))
	body, err := y.get(ctx, name, u, "application/json")
	if err != nil {
		return finish[models.InternationalPrice](&y.base, name, "international", start, nil, err)
	}
	price, err := parseChart(body, c)
	if err != nil {
		return finish[models.InternationalPrice](&y.base, name, "international", start, nil, parseError(name, err))
	}
	return finish(&y.base, name, "international", start, []models.InternationalPrice{price}, nil)
}

func parseChart(body []byte, c catalog.Commodity) (models.InternationalPrice, error) {
	var resp yfChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.InternationalPrice{}, err
	}
	if e := resp.Chart.Error; e != nil {
		return models.InternationalPrice{}, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return models.InternationalPrice{}, fmt.Errorf("empty chart result")
	}
	meta := resp.Chart.Result[0].Meta
	if meta.RegularMarketPrice == nil {
		return models.InternationalPrice{}, fmt.Errorf("missing regularMarketPrice")
	}

	prev := meta.PreviousClose
	if prev == 0 {
		prev = meta.ChartPreviousClose
	}
	price := decimal.NewFromFloat(*meta.RegularMarketPrice)
	change := decimal.Zero
	if prev != 0 {
		p := decimal.NewFromFloat(prev)
		change = price.Sub(p).Div(p).Mul(decimal.NewFromInt(100)).Round(2)
	}

	exchange := c.Exchange
	if exchange == "" {
		exchange = meta.ExchangeName
	}
	updated := time.Now().UTC()
	if meta.RegularMarketTime > 0 {
		updated = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return models.InternationalPrice{
		Commodity:     c.Slug,
		Symbol:        c.YahooSymbol,
		Exchange:      exchange,
		Price:         *meta.RegularMarketPrice,
		PreviousClose: prev,
		ChangePct:     change.InexactFloat64(),
		Currency:      meta.Currency,
		Unit:          c.YahooUnit,
		UpdatedAt:     updated,
	}, nil
}
