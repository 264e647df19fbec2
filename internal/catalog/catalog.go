// Package catalog holds the commodity reference data: slugs, categories,
// units, international futures symbols, exchange page contracts and the
// keywords used to attribute news to a commodity.
package catalog

import (
	"sort"
	"strings"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// Site identifiers for exchange pages.
const (
	SiteNoticiasAgricolas = "noticias-agricolas"
	SiteCepea             = "cepea"
)

// Page is one HTML page carrying a commodity's physical-market quotes.
type Page struct {
	Site    string `json:"site"`
	Path    string `json:"path"`
	Keyword string `json:"keyword"` // table-selection keyword
	Market  string `json:"market,omitempty"`
}

// Commodity is a catalog entry.
type Commodity struct {
	models.Commodity
	YahooSymbol string   `json:"yahoo_symbol,omitempty"`
	YahooUnit   string   `json:"yahoo_unit,omitempty"`
	Exchange    string   `json:"exchange,omitempty"`
	Pages       []Page   `json:"pages,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// MatchesText reports whether text mentions any of the commodity's keywords,
// ignoring case and accents.
func (c Commodity) MatchesText(text string) bool {
	folded := utils.Fold(text)
	for _, kw := range c.Keywords {
		if strings.Contains(folded, utils.Fold(kw)) {
			return true
		}
	}
	return false
}

// Catalog is an immutable, slug-indexed commodity list.
type Catalog struct {
	entries []Commodity
	bySlug  map[string]int
}

// New builds a catalog. Later entries with a duplicate slug are ignored.
func New(entries []Commodity) *Catalog {
	c := &Catalog{bySlug: make(map[string]int, len(entries))}
	for _, e := range entries {
		slug := strings.ToLower(strings.TrimSpace(e.Slug))
		if _, dup := c.bySlug[slug]; dup || slug == "" {
			continue
		}
		e.Slug = slug
		c.bySlug[slug] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// Get looks up a commodity by slug, case-insensitively.
func (c *Catalog) Get(slug string) (Commodity, bool) {
	i, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Commodity{}, false
	}
	return c.entries[i], true
}

// All returns every commodity in catalog order.
func (c *Catalog) All() []Commodity {
	out := make([]Commodity, len(c.entries))
	copy(out, c.entries)
	return out
}

// Active returns the active commodities.
func (c *Catalog) Active() []Commodity {
	var out []Commodity
	for _, e := range c.entries {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}

// International returns active commodities that have a futures symbol.
func (c *Catalog) International() []Commodity {
	var out []Commodity
	for _, e := range c.entries {
		if e.Active && e.YahooSymbol != "" {
			out = append(out, e)
		}
	}
	return out
}

// ByCategory groups active commodities by category, slugs sorted.
func (c *Catalog) ByCategory() map[models.Category][]Commodity {
	out := make(map[models.Category][]Commodity)
	for _, e := range c.Active() {
		out[e.Category] = append(out[e.Category], e)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	}
	return out
}

// Models returns the plain model view of the catalog.
func (c *Catalog) Models() []models.Commodity {
	out := make([]models.Commodity, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Commodity
	}
	return out
}

// Page returns the commodity's page contract for site.
func (c Commodity) Page(site string) (Page, bool) {
	for _, p := range c.Pages {
		if p.Site == site {
			return p, true
		}
	}
	return Page{}, false
}
