package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/amazon-search-scraper/internal/models"
)

const resultSelector = `div[data-component-type="s-search-result"]`

var titleSelectors = []string{
	"h2 a.a-link-normal span",
	"h2 a span",
	"a h2 span",
	"h2 span",
}

var linkSelectors = []string{
	"h2 a.a-link-normal",
	"h2 a",
}

var priceSelectors = []string{
	"span.a-price span.a-offscreen",
	"span.a-price:first-child span.a-offscreen",
	`span[data-a-color="price"] span.a-offscreen`,
	`span.a-price span[aria-hidden="true"]`,
	"span.a-price-whole",
	"span.a-color-price",
	"span.a-price:not(.a-text-price)",
	`span[data-a-strike="true"]`,
	".a-price .a-price-symbol + span.a-price-whole",
	".a-section span.a-price span.a-offscreen",
}

var reviewSelectors = []string{
	"span.a-size-base.s-underline-text",
	`span.a-size-base[dir="auto"]`,
	"a.a-link-normal span.a-size-base",
}

// Currency tokens per marketplace host suffix, most specific first.
var marketCurrencies = []struct {
	host   string
	tokens string
}{
	{"amazon.co.uk", `£|GBP`},
	{"amazon.in", `₹|Rs\.?|INR`},
	{"amazon.de", `€|EUR`},
	{"amazon.com", `US\$|USD|\$`},
}

const allCurrencies = `₹|Rs\.?|INR|US\$|USD|\$|€|EUR|£|GBP`

// currencyPattern builds the fallback price regex for the marketplace at host.
func currencyPattern(host string) *regexp.Regexp {
	tokens := allCurrencies
	host = strings.ToLower(host)
	for _, m := range marketCurrencies {
		if host == m.host || strings.HasSuffix(host, "."+m.host) {
			tokens = m.tokens
			break
		}
	}
	return regexp.MustCompile(`(?i)(?:` + tokens + `)\s*(\d+(?:,\d+)*(?:\.\d{2})?)`)
}

func extractTitle(s *goquery.Selection) (string, bool) {
	return firstText(s, titleSelectors)
}

func extractImage(s *goquery.Selection) (string, bool) {
	src, ok := s.Find("img.s-image").First().Attr("src")
	src = strings.TrimSpace(src)
	return src, ok && src != ""
}

func extractHref(s *goquery.Selection) (string, bool) {
	for _, sel := range linkSelectors {
		if href, ok := s.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href), true
		}
	}

	// Newer markup wraps the heading in the anchor.
	if href, ok := s.Find("h2").First().Closest("a").Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href), true
	}

	return "", false
}

func extractSelectorPrice(s *goquery.Selection) (float64, bool) {
	for _, sel := range priceSelectors {
		text := strings.TrimSpace(s.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if price, ok := parsePriceText(text); ok {
			return price, true
		}
	}
	return 0, false
}

func extractReviews(s *goquery.Selection) (int, bool) {
	text, ok := firstText(s, reviewSelectors)
	if !ok {
		return 0, false
	}
	digits := keepRunes(text, func(r rune) bool { return r >= '0' && r <= '9' })
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parsePriceText keeps digits and dots and accepts the result only inside
// the plausible price range.
func parsePriceText(text string) (float64, bool) {
	cleaned := keepRunes(text, func(r rune) bool { return (r >= '0' && r <= '9') || r == '.' })
	if cleaned == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return price, models.ValidPrice(price)
}

// resolveURL prefixes relative hrefs with the marketplace origin.
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return base.String() + "/" + strings.TrimLeft(href, "/")
	}
	return base.ResolveReference(ref).String()
}

func firstText(s *goquery.Selection, selectors []string) (string, bool) {
	for _, sel := range selectors {
		text := strings.TrimSpace(s.Find(sel).First().Text())
		if text != "" {
			return text, true
		}
	}
	return "", false
}

func keepRunes(s string, keep func(rune) bool) string {
	var b strings.Builder
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
