package normalize

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

func loadFixture(t *testing.T, name string) *goquery.Document {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func commodity(t *testing.T, slug string) catalog.Commodity {
	t.Helper()
	c, ok := catalog.Default.Get(slug)
	if !ok {
		t.Fatalf("catalog: %s missing", slug)
	}
	return c
}

func wantDate(t *testing.T, got time.Time, y int, m time.Month, d int) {
	t.Helper()
	want := time.Date(y, m, d, 0, 0, 0, 0, utils.BRT)
	if !got.Equal(want) {
		t.Errorf("date: got %v, want %v", got, want)
	}
}

// ── Notícias Agrícolas v1 ──

func TestNoticiasAgricolasV1Soja(t *testing.T) {
	doc := loadFixture(t, "noticias_agricolas_soja_v1.html")
	quotes, err := NewNoticiasAgricolasV1().Extract(doc, commodity(t, "soja"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(quotes) != 4 {
		t.Fatalf("got %d quotes, want 4 (s/c row skipped): %+v", len(quotes), quotes)
	}

	q := quotes[0]
	if q.Market != "Sorriso (MT)" || q.Value != 112 || q.Commodity != "soja" {
		t.Errorf("first quote: got %+v", q)
	}
	if q.Variation == nil || *q.Variation != 1.36 {
		t.Errorf("first variation: got %v, want 1.36", q.Variation)
	}
	wantDate(t, q.Date, 2024, time.May, 31)
	if q.Unit != "R$/sc 60kg" || q.Source != catalog.SiteNoticiasAgricolas {
		t.Errorf("unit/source: got %q/%q", q.Unit, q.Source)
	}

	if quotes[2].Market != "Passo Fundo (RS)" || quotes[2].Value != 1130 {
		t.Errorf("thousands separator: got %+v", quotes[2])
	}
	if quotes[3].Variation != nil {
		t.Errorf("blank variation should be nil, got %v", *quotes[3].Variation)
	}
}

func TestNoticiasAgricolasV1FirstMatchingTableWins(t *testing.T) {
	doc := loadFixture(t, "noticias_agricolas_boi_v1.html")
	quotes, err := NewNoticiasAgricolasV1().Extract(doc, commodity(t, "boi-gordo"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want 3 from the à vista table", len(quotes))
	}
	if quotes[0].Market != "SP Barretos" || quotes[0].Value != 222 {
		t.Errorf("first quote: got %+v, want SP Barretos 222 (à vista)", quotes[0])
	}
	wantDate(t, quotes[0].Date, 2024, time.May, 31)
}

func TestNoticiasAgricolasV1NoTable(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><body><p>manutenção</p></body></html>"))
	_, err := NewNoticiasAgricolasV1().Extract(doc, commodity(t, "soja"))
	if !errors.Is(err, ErrNoTable) {
		t.Errorf("error: got %v, want ErrNoTable", err)
	}
}

func TestNoticiasAgricolasV1NoContract(t *testing.T) {
	doc := loadFixture(t, "noticias_agricolas_soja_v1.html")
	_, err := NewNoticiasAgricolasV1().Extract(doc, commodity(t, "etanol"))
	if !errors.Is(err, ErrNoContract) {
		t.Errorf("error: got %v, want ErrNoContract", err)
	}
}

// ── CEPEA v1 ──

func TestCepeaV1Soja(t *testing.T) {
	doc := loadFixture(t, "cepea_soja_v1.html")
	quotes, err := NewCepeaV1().Extract(doc, commodity(t, "soja"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want 3", len(quotes))
	}
	q := quotes[0]
	if q.Market != "Paranaguá (PR)" || q.Value != 134.45 {
		t.Errorf("first quote: got %+v", q)
	}
	if q.Variation == nil || *q.Variation != 0.52 {
		t.Errorf("variation: got %v, want 0.52", q.Variation)
	}
	wantDate(t, q.Date, 2024, time.May, 31)
	wantDate(t, quotes[2].Date, 2024, time.May, 28)
}

func TestCepeaV1KeywordTieBreak(t *testing.T) {
	doc := loadFixture(t, "cepea_soja_v1.html")
	c := catalog.Commodity{
		Commodity: models.Commodity{Slug: "soja", Unit: "R$/sc 60kg"},
		Pages:     []catalog.Page{{Site: catalog.SiteCepea, Keyword: "paraná", Market: "PR"}},
	}
	// Both indicator tables mention "paraná" once accents are folded.
	quotes, err := NewCepeaV1().Extract(doc, c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if quotes[0].Value != 134.45 {
		t.Errorf("first table should win: got value %v", quotes[0].Value)
	}
}

// ── TableSelector ──

func TestAbsentOptionalColumns(t *testing.T) {
	na := NewNoticiasAgricolasV1()
	na.Columns.Market, na.Columns.Variation = -1, -1
	quotes, err := na.Extract(loadFixture(t, "noticias_agricolas_soja_v1.html"), commodity(t, "soja"))
	if err != nil {
		t.Fatalf("noticias agricolas: %v", err)
	}
	for _, q := range quotes {
		if q.Variation != nil {
			t.Errorf("variation without a column: got %v", *q.Variation)
		}
	}

	cepea := NewCepeaV1()
	cepea.Columns.Variation = -1
	quotes, err = cepea.Extract(loadFixture(t, "cepea_soja_v1.html"), commodity(t, "soja"))
	if err != nil {
		t.Fatalf("cepea: %v", err)
	}
	if len(quotes) != 3 || quotes[0].Variation != nil {
		t.Errorf("cepea without variation: got %d quotes, first %+v", len(quotes), quotes[0])
	}
}

func TestTableSelectorMinRows(t *testing.T) {
	doc := loadFixture(t, "noticias_agricolas_boi_v1.html")
	sel := TableSelector{Keyword: "", MinRows: 1}
	table, ok := sel.Select(doc)
	if !ok {
		t.Fatal("expected a table")
	}
	if !strings.Contains(table.Text(), "Resumo") {
		t.Errorf("MinRows=1 without keyword should pick the first table")
	}

	if _, ok := (TableSelector{Keyword: "@", MinRows: 10}).Select(doc); ok {
		t.Error("no table has 10 rows")
	}
}

func TestExtractorsRegistry(t *testing.T) {
	ex := Extractors()
	for _, site := range []string{catalog.SiteNoticiasAgricolas, catalog.SiteCepea} {
		e, ok := ex[site]
		if !ok {
			t.Errorf("missing extractor for %s", site)
			continue
		}
		if e.Version() != "v1" {
			t.Errorf("%s version: got %q", site, e.Version())
		}
	}
}

// ── RSS ──

func TestNewsFromItem(t *testing.T) {
	pub := time.Date(2024, 6, 2, 10, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	item := &gofeed.Item{
		Title:           "  Soja <b>sobe</b> em Chicago ",
		Link:            "https://www.canalrural.com.br/noticias/soja-sobe",
		Description:     `<p><img src="https://cdn.example.com/soja.jpg"/>Contratos futuros avançam &amp; exportações crescem.</p>`,
		PublishedParsed: &pub,
	}
	n, ok := NewsFromItem("Canal Rural", item)
	if !ok {
		t.Fatal("item should be accepted")
	}
	if n.Title != "Soja sobe em Chicago" {
		t.Errorf("Title: got %q", n.Title)
	}
	if n.Summary != "Contratos futuros avançam & exportações crescem." {
		t.Errorf("Summary: got %q", n.Summary)
	}
	if n.ImageURL != "https://cdn.example.com/soja.jpg" {
		t.Errorf("ImageURL: got %q", n.ImageURL)
	}
	if !n.PublishedAt.Equal(pub) || n.PublishedAt.Location() != time.UTC {
		t.Errorf("PublishedAt: got %v", n.PublishedAt)
	}
	if n.Source != "Canal Rural" {
		t.Errorf("Source: got %q", n.Source)
	}
}

func TestNewsFromItemDrops(t *testing.T) {
	pub := time.Now()
	tests := []struct {
		name string
		item *gofeed.Item
	}{
		{"nil", nil},
		{"no date", &gofeed.Item{Title: "x", Link: "https://a.com/1"}},
		{"empty link", &gofeed.Item{Title: "x", Link: "  ", PublishedParsed: &pub}},
		{"relative link", &gofeed.Item{Title: "x", Link: "/noticia/1", PublishedParsed: &pub}},
		{"empty title", &gofeed.Item{Title: "<br/>", Link: "https://a.com/1", PublishedParsed: &pub}},
	}
	for _, tc := range tests {
		if _, ok := NewsFromItem("src", tc.item); ok {
			t.Errorf("%s: item should be dropped", tc.name)
		}
	}
}

func TestNewsFromItemUpdatedFallbackAndEnclosure(t *testing.T) {
	upd := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:         "Milho",
		Link:          "https://a.com/milho",
		UpdatedParsed: &upd,
		Enclosures: []*gofeed.Enclosure{
			{URL: "https://a.com/audio.mp3", Type: "audio/mpeg"},
			{URL: "https://a.com/foto.webp?w=600"},
		},
	}
	n, ok := NewsFromItem("src", item)
	if !ok {
		t.Fatal("item should be accepted")
	}
	if !n.PublishedAt.Equal(upd) {
		t.Errorf("PublishedAt: got %v, want %v", n.PublishedAt, upd)
	}
	if n.ImageURL != "https://a.com/foto.webp?w=600" {
		t.Errorf("ImageURL: got %q", n.ImageURL)
	}
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("ç", MaxSummaryRunes+10)
	got := truncateRunes(long, MaxSummaryRunes)
	if n := len([]rune(got)); n != MaxSummaryRunes+1 {
		t.Errorf("truncated rune count: got %d, want %d", n, MaxSummaryRunes+1)
	}
	if truncateRunes("curto", 10) != "curto" {
		t.Error("short strings must be unchanged")
	}
}
