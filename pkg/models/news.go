package models

import "time"

// NewsItem is a normalized article from any syndicated source.
// URL is the natural key.
type NewsItem struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Sentiment   *float64  `json:"sentiment,omitempty"` // -1 (bearish) .. +1 (bullish)
}
