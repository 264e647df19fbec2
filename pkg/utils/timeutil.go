package utils

import (
	"fmt"
	"strings"
	"time"
)

// BRT is the Brasília time location used for reference dates and quota periods.
var BRT *time.Location

func init() {
	var err error
	BRT, err = time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		// Fallback: fixed zone if tz database is not available
		BRT = time.FixedZone("BRT", -3*60*60)
	}
}

// NowBRT returns the current time in Brasília.
func NowBRT() time.Time {
	return time.Now().In(BRT)
}

// ToBRT converts a time.Time to Brasília time.
func ToBRT(t time.Time) time.Time {
	return t.In(BRT)
}

// StartOfDay returns midnight of t's calendar day in Brasília.
func StartOfDay(t time.Time) time.Time {
	d := t.In(BRT)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, BRT)
}

// DayKey returns the "2006-01-02" calendar day of t in Brasília.
// It is used as the period identifier for daily usage quotas.
func DayKey(t time.Time) string {
	return t.In(BRT).Format("2006-01-02")
}

// ParseDateBR parses a "DD/MM/YYYY" date as used by Brazilian sources.
// A trailing time component ("DD/MM/YYYY HH:MM") is ignored.
func ParseDateBR(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	t, err := time.ParseInLocation("02/01/2006", s, BRT)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDateBR formats t as "DD/MM/YYYY" in Brasília.
func FormatDateBR(t time.Time) string {
	return t.In(BRT).Format("02/01/2006")
}

// FormatDateTimeBRT formats t as "2006-01-02 15:04:05 BRT".
func FormatDateTimeBRT(t time.Time) string {
	return t.In(BRT).Format("2006-01-02 15:04:05") + " BRT"
}

// NextDay returns midnight of the day after t, in Brasília.
func NextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}
