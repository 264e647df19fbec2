package models

import "time"

// ReferenceRate is a central bank reference exchange rate (e.g., PTAX USD/BRL).
type ReferenceRate struct {
	Code      string    `json:"code"` // e.g., "USD"
	Compra    float64   `json:"compra"`
	Venda     float64   `json:"venda"`
	Variation float64   `json:"variation"` // day-over-day percent
	Date      time.Time `json:"date"`
	Source    string    `json:"source"`
}
