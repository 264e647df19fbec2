package sentiment

import (
	"testing"
	"time"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

func TestScoreHeadlineBullish(t *testing.T) {
	score, conf := ScoreHeadline("Soja dispara em Chicago e atinge preço recorde")
	if score <= 0 {
		t.Errorf("expected positive score, got %.4f", score)
	}
	if conf <= 0.1 {
		t.Errorf("expected confidence above baseline, got %.4f", conf)
	}
}

func TestScoreHeadlineBearish(t *testing.T) {
	score, _ := ScoreHeadline("Preço do boi gordo CAI e arroba tem queda de 3%")
	if score >= 0 {
		t.Errorf("expected negative score, got %.4f", score)
	}
}

func TestScoreHeadlineNeutral(t *testing.T) {
	score, conf := ScoreHeadline("Cooperativa inaugura nova unidade em Goiás")
	if score != 0 || conf != 0.1 {
		t.Errorf("neutral: got score %.4f conf %.4f", score, conf)
	}
}

func TestScoreHeadlineWholeWords(t *testing.T) {
	// "caixa" contains "cai" and "saltam" contains "alta" as substrings.
	score, _ := ScoreHeadline("Produtores saltam etapas e usam caixa próprio")
	if score != 0 {
		t.Errorf("substrings must not match, got %.4f", score)
	}
}

func TestScoreHeadlineJudicialRecovery(t *testing.T) {
	score, _ := ScoreHeadline("Usina entra em recuperação judicial")
	if score >= 0 {
		t.Errorf("recuperação judicial should be bearish, got %.4f", score)
	}
}

func TestAnnotate(t *testing.T) {
	items := []models.NewsItem{
		{Title: "Milho sobe com forte demanda"},
		{Title: "Café recua na bolsa"},
	}
	Annotate(items)
	if items[0].Sentiment == nil || *items[0].Sentiment <= 0 {
		t.Errorf("first item: got %v", items[0].Sentiment)
	}
	if items[1].Sentiment == nil || *items[1].Sentiment >= 0 {
		t.Errorf("second item: got %v", items[1].Sentiment)
	}
}

func TestAggregateTimeDecay(t *testing.T) {
	now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	pos, neg := 1.0, -1.0
	items := []models.NewsItem{
		{Title: "a", Sentiment: &pos, PublishedAt: now},
		{Title: "b", Sentiment: &neg, PublishedAt: now.Add(-72 * time.Hour)},
	}
	s := Aggregate(items, now)
	if s.Score <= 0.5 {
		t.Errorf("recent bullish item should dominate, got %.2f", s.Score)
	}
	if s.Label != "Altista" || s.Count != 2 {
		t.Errorf("summary: got %+v", s)
	}
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, time.Now())
	if s.Label != "Neutro" || s.Count != 0 {
		t.Errorf("empty: got %+v", s)
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.5, "Altista"},
		{0.2, "Levemente altista"},
		{0, "Neutro"},
		{-0.2, "Levemente baixista"},
		{-0.9, "Baixista"},
	}
	for _, tc := range tests {
		if got := Label(tc.score); got != tc.want {
			t.Errorf("Label(%v): got %q, want %q", tc.score, got, tc.want)
		}
	}
}
