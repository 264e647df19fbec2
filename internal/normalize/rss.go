package normalize

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// MaxSummaryRunes caps the plain-text summary length.
const MaxSummaryRunes = 300

// NewsFromItem maps a feed item into a NewsItem. Items without a usable
// absolute link, a title or a published/updated date are dropped (ok=false).
func NewsFromItem(source string, item *gofeed.Item) (models.NewsItem, bool) {
	if item == nil {
		return models.NewsItem{}, false
	}
	link := strings.TrimSpace(item.Link)
	if !isHTTPURL(link) {
		return models.NewsItem{}, false
	}
	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil || published.IsZero() {
		return models.NewsItem{}, false
	}
	title := CleanHTML(item.Title)
	if title == "" {
		return models.NewsItem{}, false
	}

	return models.NewsItem{
		Source:      source,
		Title:       title,
		URL:         link,
		Summary:     truncateRunes(CleanHTML(item.Description), MaxSummaryRunes),
		ImageURL:    itemImage(item),
		PublishedAt: published.UTC(),
	}, true
}

// itemImage prefers the feed's explicit image, then an image enclosure,
// then the first <img> in the description or content.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc == nil || !isHTTPURL(enc.URL) {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") || (enc.Type == "" && looksLikeImage(enc.URL)) {
			return enc.URL
		}
	}
	for _, html := range []string{item.Description, item.Content} {
		if src := firstImgSrc(html); src != "" {
			return src
		}
	}
	return ""
}

func firstImgSrc(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + html + "</body>"))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	if !isHTTPURL(src) {
		return ""
	}
	return src
}

func looksLikeImage(u string) bool {
	lower := strings.ToLower(u)
	if i := strings.IndexByte(lower, '?'); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CleanHTML strips tags and collapses whitespace using goquery.
func CleanHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
