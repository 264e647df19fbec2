// Package models defines the core data structures shared by the agrodash
// aggregation layer: quotes, news, weather, FX reference rates and reports.
package models

import "time"

// Category groups commodities the way the dashboard presents them.
type Category string

const (
	CategoryGrain       Category = "grain"
	CategoryLivestock   Category = "livestock"
	CategorySugarEnergy Category = "sugar-energy"
	CategoryFiber       Category = "fiber"
	CategoryOther       Category = "other"
)

// Commodity is read-mostly reference data identifying a tradable product.
type Commodity struct {
	Slug     string   `json:"slug"` // e.g., "soja", "boi-gordo"
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Unit     string   `json:"unit"` // e.g., "R$/sc 60kg", "R$/@"
	Active   bool     `json:"active"`
}

// Quote is a single price reading for a commodity at a market (praça).
// A quote is unique per (Commodity, Date, Market).
type Quote struct {
	Commodity string    `json:"commodity" db:"commodity"`
	Date      time.Time `json:"date"      db:"ref_date"`
	Value     float64   `json:"value"     db:"value"`
	Unit      string    `json:"unit"      db:"unit"`
	Market    string    `json:"market"    db:"market"`
	Variation *float64  `json:"variation,omitempty" db:"variation"` // percent vs. prior reading
	Source    string    `json:"source,omitempty"    db:"source"`
}

// Key returns the identity of the quote within one reference date.
func (q Quote) Key() string {
	return q.Commodity + "|" + q.Date.Format("2006-01-02") + "|" + q.Market
}

// InternationalPrice is the latest futures price for a commodity on an
// international exchange. Upstream data is typically 15-20 minutes delayed.
type InternationalPrice struct {
	Commodity     string    `json:"commodity"`
	Symbol        string    `json:"symbol"` // e.g., "ZS=F"
	Exchange      string    `json:"exchange,omitempty"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	ChangePct     float64   `json:"change_pct"`
	Currency      string    `json:"currency"`
	Unit          string    `json:"unit,omitempty"` // e.g., "USc/bu"
	UpdatedAt     time.Time `json:"updated_at"`
}
