package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// ── Quote Tests ──

func TestQuoteKey(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	q := Quote{
		Commodity: "soja",
		Date:      time.Date(2024, 6, 2, 0, 0, 0, 0, brt),
		Market:    "Paranaguá/PR",
		Value:     131.5,
	}
	if got, want := q.Key(), "soja|2024-06-02|Paranaguá/PR"; got != want {
		t.Errorf("Key: got %q, want %q", got, want)
	}

	other := q
	other.Value = 140
	other.Source = "cepea"
	if other.Key() != q.Key() {
		t.Error("Key must not depend on value or source")
	}

	other.Market = "Sorriso/MT"
	if other.Key() == q.Key() {
		t.Error("different markets must have different keys")
	}
}

func TestQuoteVariationOmittedWhenUnknown(t *testing.T) {
	data, err := json.Marshal(Quote{Commodity: "milho", Value: 60})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "variation") {
		t.Errorf("nil variation should be omitted: %s", data)
	}

	v := 0.0
	data, _ = json.Marshal(Quote{Commodity: "milho", Value: 60, Variation: &v})
	if !strings.Contains(string(data), `"variation":0`) {
		t.Errorf("zero variation should be kept: %s", data)
	}
}

// ── News Tests ──

func TestNewsItemSentimentOptional(t *testing.T) {
	data, _ := json.Marshal(NewsItem{Title: "Safra recorde", URL: "https://example.com/a"})
	if strings.Contains(string(data), "sentiment") {
		t.Errorf("unscored item should omit sentiment: %s", data)
	}
}

// ── Report Tests ──

func TestReportKindValid(t *testing.T) {
	tests := []struct {
		kind ReportKind
		want bool
	}{
		{ReportDaily, true},
		{ReportCommodity, true},
		{"weekly", false},
		{"", false},
		{"Daily", false},
	}
	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("ReportKind(%q).Valid(): got %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestReportExpired(t *testing.T) {
	gen := time.Date(2024, 6, 2, 7, 0, 0, 0, time.UTC)
	r := AggregatedReport{GeneratedAt: gen, ExpiresAt: gen.Add(6 * time.Hour)}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"just generated", gen, false},
		{"one second before", gen.Add(6*time.Hour - time.Second), false},
		{"at expiry", gen.Add(6 * time.Hour), true},
		{"after expiry", gen.Add(7 * time.Hour), true},
	}
	for _, tt := range tests {
		if got := r.Expired(tt.at); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
