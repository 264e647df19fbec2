package models

import "time"

// ReportKind identifies what an AI report covers.
type ReportKind string

const (
	ReportDaily     ReportKind = "daily"
	ReportCommodity ReportKind = "commodity"
)

// Valid reports whether k is a known report kind.
func (k ReportKind) Valid() bool {
	return k == ReportDaily || k == ReportCommodity
}

// AggregatedReport is an AI-generated market report.
type AggregatedReport struct {
	ID          string     `json:"id"`
	Kind        ReportKind `json:"kind"`
	Commodity   string     `json:"commodity,omitempty"`
	Content     string     `json:"content"`
	Model       string     `json:"model,omitempty"`
	TokensUsed  int        `json:"tokens_used"`
	Cached      bool       `json:"cached"`
	GeneratedAt time.Time  `json:"generated_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// Expired reports whether the report's TTL has lapsed at t.
func (r *AggregatedReport) Expired(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}
