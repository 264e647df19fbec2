package cache

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies an aggregated query type. Each kind has its own TTL.
type Kind string

const (
	KindNews          Kind = "news"
	KindQuotes        Kind = "quotes"
	KindQuoteHistory  Kind = "quote-history"
	KindWeather       Kind = "weather"
	KindCitySearch    Kind = "city-search"
	KindInternational Kind = "international"
	KindReferenceRate Kind = "reference-rate"
	KindReport        Kind = "report"
)

// Key is a query kind plus its normalized parameters.
type Key struct {
	Kind   Kind
	Params map[string]string
}

// NewKey returns a key with no parameters.
func NewKey(kind Kind) Key {
	return Key{Kind: kind}
}

// With returns a copy of k with name set to value.
func (k Key) With(name, value string) Key {
	params := make(map[string]string, len(k.Params)+1)
	for n, v := range k.Params {
		params[n] = v
	}
	params[name] = value
	return Key{Kind: k.Kind, Params: params}
}

// WithSlug adds a commodity slug, lowercased and trimmed.
func (k Key) WithSlug(slug string) Key {
	return k.With("slug", strings.ToLower(strings.TrimSpace(slug)))
}

// WithInt adds an integer parameter such as a day window or a limit.
func (k Key) WithInt(name string, v int) Key {
	return k.With(name, strconv.Itoa(v))
}

// WithCoord adds a coordinate rounded to two decimal places (about 1 km).
func (k Key) WithCoord(name string, v float64) Key {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // normalizes -0
	}
	return k.With(name, strconv.FormatFloat(r, 'f', 2, 64))
}

// WithText adds a free-text parameter, case- and space-normalized.
func (k Key) WithText(name, v string) Key {
	return k.With(name, strings.Join(strings.Fields(strings.ToLower(v)), " "))
}

// String renders the key deterministically: kind, then params sorted by name.
func (k Key) String() string {
	if len(k.Params) == 0 {
		return string(k.Kind)
	}
	names := make([]string, 0, len(k.Params))
	for n := range k.Params {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(string(k.Kind))
	for i, n := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(k.Params[n])
	}
	return b.String()
}
