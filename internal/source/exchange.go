package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/internal/normalize"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// Exchange scrapes one commodity-exchange site. The page for a commodity
// comes from its catalog contract and the table is read by the site's
// TableExtractor.
type Exchange struct {
	base
	baseURL   string
	extractor normalize.TableExtractor
}

// NewExchange creates a scraper for the extractor's site rooted at baseURL.
func NewExchange(baseURL string, extractor normalize.TableExtractor, opts ...Option) *Exchange {
	return &Exchange{
		base:      newBase(opts),
		baseURL:   strings.TrimRight(baseURL, "/"),
		extractor: extractor,
	}
}

// Name returns the site and contract version, e.g. "cepea/v1".
func (e *Exchange) Name() string { return e.extractor.Site() + "/" + e.extractor.Version() }

// Site returns the site identifier.
func (e *Exchange) Site() string { return e.extractor.Site() }

// Supports reports whether the commodity has a page contract for this site.
func (e *Exchange) Supports(c catalog.Commodity) bool {
	_, ok := c.Page(e.extractor.Site())
	return ok
}

// Quotes fetches the commodity page and extracts its quotes.
func (e *Exchange) Quotes(ctx context.Context, c catalog.Commodity) Result[models.Quote] {
	start := time.Now()
	page, ok := c.Page(e.extractor.Site())
	if !ok {
		err := parseError(e.Name(), fmt.Errorf("%s: %w", c.Slug, normalize.ErrNoContract))
		return finish[models.Quote](&e.base, e.Name(), "quotes", start, nil, err)
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	body, err := e.get(ctx, e.Name(), e.baseURL+page.Path, "text/html,application/xhtml+xml")
	if err != nil {
		return finish[models.Quote](&e.base, e.Name(), "quotes", start, nil, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return finish[models.Quote](&e.base, e.Name(), "quotes", start, nil, parseError(e.Name(), err))
	}
	quotes, err := e.extractor.Extract(doc, c)
	if err != nil {
		return finish[models.Quote](&e.base, e.Name(), "quotes", start, nil, parseError(e.Name(), err))
	}
	return finish(&e.base, e.Name(), "quotes", start, quotes, nil)
}
