package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/amazon-search-scraper/internal/models"
)

const (
	logTitleRunes = 50
	logHTMLRunes  = 200
)

// ErrBotChallenge marks a captcha page served instead of results.
var ErrBotChallenge = errors.New("bot challenge page")

// SearchParser extracts listing cards from an Amazon search results page.
type SearchParser struct {
	base          *url.URL
	currencyPrice *regexp.Regexp
	logger        *slog.Logger
}

// NewSearchParser returns a parser whose relative links and currency
// fallback are resolved against the marketplace at baseURL.
func NewSearchParser(baseURL string, logger *slog.Logger) (*SearchParser, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchParser{
		base:          base,
		currencyPrice: currencyPattern(base.Hostname()),
		logger:        logger.With("component", "parser"),
	}, nil
}

// Parse returns the products found on the page in document order. A page
// without listings yields an empty slice. Cards without a title are dropped.
// A robot-check page yields an empty slice and ErrBotChallenge.
func (p *SearchParser) Parse(r io.Reader, query string) ([]models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	products := make([]models.Product, 0)
	if isBotChallenge(doc) {
		return products, ErrBotChallenge
	}

	log := p.logger.With("query", query)
	doc.Find(resultSelector).Each(func(i int, card *goquery.Selection) {
		product, ok := p.parseCard(log, card, query)
		if ok {
			products = append(products, product)
		}
	})

	return products, nil
}

func (p *SearchParser) parseCard(log *slog.Logger, card *goquery.Selection, query string) (product models.Product, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("failed to parse listing", "panic", r)
			ok = false
		}
	}()

	title, found := extractTitle(card)
	if !found {
		return models.Product{}, false
	}

	listing := models.Listing{Title: title}

	if href, found := extractHref(card); found {
		u := resolveURL(p.base, href)
		listing.ProductURL = &u
	}

	if src, found := extractImage(card); found {
		listing.ImageURL = &src
	}

	if price, found := p.extractPrice(card); found {
		listing.Price = &price
	} else {
		logMissingPrice(log, card, title, listing.ProductURL)
	}

	if reviews, found := extractReviews(card); found {
		listing.TotalReviews = &reviews
	}

	product, err := models.NewProduct(listing, query)
	if err != nil {
		log.Debug("listing rejected", "error", err)
		return models.Product{}, false
	}
	return product, true
}

func (p *SearchParser) extractPrice(card *goquery.Selection) (float64, bool) {
	if price, ok := extractSelectorPrice(card); ok {
		return price, true
	}
	return p.extractCurrencyPrice(card)
}

func (p *SearchParser) extractCurrencyPrice(card *goquery.Selection) (float64, bool) {
	m := p.currencyPrice.FindStringSubmatch(card.Text())
	if len(m) < 2 {
		return 0, false
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || !models.ValidPrice(price) {
		return 0, false
	}
	return price, true
}

func logMissingPrice(log *slog.Logger, card *goquery.Selection, title string, productURL *string) {
	if productURL != nil {
		log = log.With("url", *productURL)
	}

	area := card.Find(".a-price").First()
	if area.Length() == 0 {
		log.Warn("no price found", "title", models.Truncate(title, logTitleRunes), "price_area", "no .a-price container")
		return
	}

	html, err := goquery.OuterHtml(area)
	if err != nil {
		html = ""
	}
	log.Warn("no price found", "title", models.Truncate(title, logTitleRunes), "price_area", models.Truncate(html, logHTMLRunes))
}

func isBotChallenge(doc *goquery.Document) bool {
	if doc.Find(`form[action*="validateCaptcha"], #captchacharacters`).Length() > 0 {
		return true
	}
	title := strings.ToLower(doc.Find("title").First().Text())
	if strings.Contains(title, "robot check") {
		return true
	}
	text := strings.ToLower(doc.Find("body").Text())
	return strings.Contains(text, "enter the characters you see") || strings.Contains(text, "type the characters you see")
}
