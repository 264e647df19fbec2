// Package sentiment scores Portuguese agribusiness headlines with a
// keyword dictionary. It is deterministic and offline; the AI report layer
// uses it as context, not as a trading signal.
package sentiment

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// Dictionaries hold accent-free, lowercase terms. Multi-word terms match
// whole-word sequences.
var bullishWords = map[string]float64{
	"alta": 0.5, "altas": 0.5, "sobe": 0.5, "sobem": 0.5, "subiu": 0.5,
	"avanca": 0.4, "avancam": 0.4, "avancou": 0.4, "valoriza": 0.5,
	"valorizacao": 0.5, "dispara": 0.7, "disparam": 0.7, "recorde": 0.6,
	"ganho": 0.3, "ganhos": 0.3, "firme": 0.3, "firmes": 0.3,
	"aquecida": 0.4, "aquecido": 0.4, "recupera": 0.5, "recuperacao": 0.5,
	"supera": 0.4, "otimismo": 0.5, "forte demanda": 0.6, "maxima": 0.5,
	"exportacoes crescem": 0.6, "lucro": 0.3,
}

var bearishWords = map[string]float64{
	"queda": 0.5, "quedas": 0.5, "cai": 0.5, "caem": 0.5, "caiu": 0.5,
	"recua": 0.4, "recuam": 0.4, "recuou": 0.4, "baixa": 0.4, "baixas": 0.4,
	"desvaloriza": 0.5, "desvalorizacao": 0.5, "despenca": 0.7, "desaba": 0.7,
	"perda": 0.4, "perdas": 0.4, "prejuizo": 0.5, "crise": 0.6,
	"retracao": 0.5, "pressao": 0.3, "pressionado": 0.4, "pressionados": 0.4,
	"embargo": 0.7, "pessimismo": 0.5, "minima": 0.5, "fraca": 0.4,
	"fraco": 0.4, "demanda fraca": 0.6, "recuperacao judicial": 0.8,
}

// ScoreHeadline returns a score from -1.0 (bearish) to +1.0 (bullish) and a
// confidence that grows with the number of matched terms.
func ScoreHeadline(text string) (score float64, confidence float64) {
	padded := " " + strings.Join(tokens(text), " ") + " "

	bull, bear := 0.0, 0.0
	matches := 0
	for word, weight := range bullishWords {
		if strings.Contains(padded, " "+word+" ") {
			bull += weight
			matches++
		}
	}
	for word, weight := range bearishWords {
		if strings.Contains(padded, " "+word+" ") {
			bear += weight
			matches++
		}
	}
	// "recuperacao judicial" also contains the bullish "recuperacao".
	if strings.Contains(padded, " recuperacao judicial ") {
		bull -= bullishWords["recuperacao"]
		matches--
	}

	if matches == 0 || bull+bear == 0 {
		return 0, 0.1
	}
	score = (bull - bear) / (bull + bear)
	confidence = math.Min(float64(matches)*0.15+0.2, 0.85)
	return score, confidence
}

// tokens folds accents and case and splits on anything that is not a
// letter or digit.
func tokens(s string) []string {
	return strings.FieldsFunc(utils.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ScoreNews scores an item's title and summary.
func ScoreNews(item models.NewsItem) float64 {
	text := item.Title
	if item.Summary != "" {
		text += " " + item.Summary
	}
	score, _ := ScoreHeadline(text)
	return score
}

// Annotate sets Sentiment on every item in place.
func Annotate(items []models.NewsItem) {
	for i := range items {
		s := math.Round(ScoreNews(items[i])*100) / 100
		items[i].Sentiment = &s
	}
}

// Summary is the time-weighted mood across a set of news items.
type Summary struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
	Count int     `json:"count"`
}

// Aggregate computes a time-decayed average: an item's weight halves every
// 24 hours of age relative to now.
func Aggregate(items []models.NewsItem, now time.Time) Summary {
	if len(items) == 0 {
		return Summary{Label: Label(0)}
	}
	weighted, total := 0.0, 0.0
	for _, it := range items {
		score := ScoreNews(it)
		if it.Sentiment != nil {
			score = *it.Sentiment
		}
		age := now.Sub(it.PublishedAt).Hours()
		if age < 0 {
			age = 0
		}
		w := math.Exp(-math.Ln2 * age / 24)
		weighted += score * w
		total += w
	}
	avg := 0.0
	if total > 0 {
		avg = weighted / total
	}
	avg = math.Round(avg*100) / 100
	return Summary{Score: avg, Label: Label(avg), Count: len(items)}
}

// Label names a score in Portuguese market terms.
func Label(score float64) string {
	switch {
	case score > 0.3:
		return "Altista"
	case score > 0.1:
		return "Levemente altista"
	case score < -0.3:
		return "Baixista"
	case score < -0.1:
		return "Levemente baixista"
	default:
		return "Neutro"
	}
}
