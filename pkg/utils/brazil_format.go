// Package utils provides formatting and parsing helpers for Brazilian
// market data: numbers, percentages, dates and slugs.
package utils

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ParseBRNumber parses a number written in Brazilian notation, e.g.
// "1.234,56", "R$ 132,50", "-0,8". Dots are thousand separators and the
// comma is the decimal mark. A value with a single dot and no comma ("5.3000",
// as returned by JSON APIs) is read as a plain decimal.
func ParseBRNumber(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "R$")
	clean = strings.TrimPrefix(clean, "US$")
	clean = strings.TrimSuffix(clean, "%")
	clean = strings.ReplaceAll(clean, " ", "")
	clean = strings.ReplaceAll(clean, "\u00a0", "")
	clean = strings.TrimPrefix(clean, "+")
	if clean == "" || clean == "-" || strings.EqualFold(clean, "s/c") {
		return decimal.Zero, fmt.Errorf("parse number %q: empty", s)
	}

	switch {
	case strings.Contains(clean, ","):
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse number %q: %w", s, err)
	}
	return d, nil
}

// ParseBRFloat is ParseBRNumber returning a float64.
func ParseBRFloat(s string) (float64, error) {
	d, err := ParseBRNumber(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// FormatBRL formats a value as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(v float64) string {
	return "R$ " + formatBR(decimal.NewFromFloat(v).Round(2))
}

// FormatPct formats a percentage with sign, e.g. 3.92 → "+3,92%".
func FormatPct(pct float64) string {
	d := decimal.NewFromFloat(pct).Round(2)
	sign := ""
	if d.IsPositive() {
		sign = "+"
	}
	return sign + formatBR(d) + "%"
}

func formatBR(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify turns a display name into a stable lowercase identifier,
// e.g. "Boi Gordo" → "boi-gordo", "Açúcar" → "acucar".
func Slugify(s string) string {
	plain, _, err := transform.String(stripMarks, s)
	if err != nil {
		plain = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Fold lowercases s and strips diacritics, for accent-insensitive matching.
func Fold(s string) string {
	plain, _, err := transform.String(stripMarks, s)
	if err != nil {
		plain = s
	}
	return strings.ToLower(plain)
}
