// Package store persists ingested quotes. A quote is unique per
// (commodity, reference date, market) and never rewritten once stored,
// except for its variation, which is recomputed against the previous
// reading of the same series.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// UpsertStats reports what an Upsert did.
type UpsertStats struct {
	Inserted   int `json:"inserted"`
	Skipped    int `json:"skipped"`
	Recomputed int `json:"recomputed"`
}

// QuoteRepository stores quote series.
type QuoteRepository interface {
	// Upsert inserts quotes that are not stored yet and recomputes the
	// variation of each new quote and of the reading that follows it.
	Upsert(ctx context.Context, quotes []models.Quote) (UpsertStats, error)
	// History returns a commodity's quotes dated on or after since, oldest first.
	History(ctx context.Context, commodity string, since time.Time) ([]models.Quote, error)
	Close() error
}

// Variation returns the percent change from prev to cur rounded to two
// decimals, or nil when prev is zero.
func Variation(prev, cur float64) *float64 {
	if prev == 0 {
		return nil
	}
	p := decimal.NewFromFloat(prev)
	v := decimal.NewFromFloat(cur).Sub(p).Div(p).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	return &v
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
