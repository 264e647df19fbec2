package utils

import (
	"testing"
	"time"
)

func TestNowBRT(t *testing.T) {
	now := NowBRT()
	if loc := now.Location().String(); loc != "America/Sao_Paulo" && loc != "BRT" {
		t.Errorf("NowBRT() location = %s, want America/Sao_Paulo or BRT", loc)
	}
}

func TestParseDateBR(t *testing.T) {
	got, err := ParseDateBR("02/06/2024")
	if err != nil {
		t.Fatalf("ParseDateBR() error: %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.June || got.Day() != 2 {
		t.Errorf("ParseDateBR() = %v, want 2024-06-02", got)
	}

	withTime, err := ParseDateBR("15/10/2026 18:00")
	if err != nil {
		t.Fatalf("ParseDateBR() with time error: %v", err)
	}
	if withTime.Day() != 15 || withTime.Month() != time.October {
		t.Errorf("ParseDateBR() = %v, want 2026-10-15", withTime)
	}

	if _, err := ParseDateBR("2024-06-02"); err == nil {
		t.Error("expected error for ISO date")
	}
}

func TestFormatDateBR(t *testing.T) {
	d := time.Date(2024, 6, 2, 10, 0, 0, 0, BRT)
	if got := FormatDateBR(d); got != "02/06/2024" {
		t.Errorf("FormatDateBR() = %q", got)
	}
}

func TestDayKeyUsesBrasiliaCalendar(t *testing.T) {
	// 01:30 UTC on June 3rd is still June 2nd in Brasília (UTC-3).
	ts := time.Date(2024, 6, 3, 1, 30, 0, 0, time.UTC)
	if got := DayKey(ts); got != "2024-06-02" {
		t.Errorf("DayKey() = %q, want 2024-06-02", got)
	}
}

func TestStartOfDayAndNextDay(t *testing.T) {
	ts := time.Date(2024, 6, 2, 15, 4, 5, 0, BRT)
	start := StartOfDay(ts)
	if start.Hour() != 0 || start.Minute() != 0 || start.Day() != 2 {
		t.Errorf("StartOfDay() = %v", start)
	}
	next := NextDay(ts)
	if next.Day() != 3 || next.Hour() != 0 {
		t.Errorf("NextDay() = %v", next)
	}
}
