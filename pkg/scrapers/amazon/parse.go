package amazon

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"price-compare/pkg/models"
	"price-compare/pkg/normalize"
)

const (
	minASINLength  = 5
	minTitleLength = 10
)

var sponsoredMarker = regexp.MustCompile(`(?i)\b(?:sponsored|ad)\b`)

type priceStrategy func(*goquery.Selection) (float64, bool)

// Tried in order; the first positive amount wins.
var priceStrategies = []priceStrategy{
	offscreenPrice(`span.a-price[data-a-size="xl"] span.a-offscreen`),
	offscreenPrice(`span.a-price[data-a-size="l"] span.a-offscreen`),
	offscreenPrice(`span.a-price[data-a-size="m"] span.a-offscreen`),
	offscreenPrice(`span.a-price span.a-offscreen`),
	wholeFractionPrice,
	textPrice,
}

var reviewSelectors = []string{
	`span.a-size-base.s-underline-text`,
	`span.a-size-base[aria-label]`,
	`a[aria-label] span.a-size-base`,
	`span.a-size-base[data-component-type="s-client-side-analytics"]`,
}

// ParseSearchResults extracts the product blocks of a search results page.
// Blocks without a usable ASIN or with a title under ten characters are
// skipped, as is any block whose extraction panics.
func ParseSearchResults(doc *goquery.Selection, baseURL string) []models.Listing {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = &url.URL{Scheme: "https", Host: "www.amazon.com"}
	}

	containers := doc.Find(`div[data-component-type="s-search-result"]`)
	if containers.Length() == 0 {
		containers = doc.Find(`div.s-result-item`)
	}

	var out []models.Listing
	containers.Each(func(_ int, c *goquery.Selection) {
		if l, ok := parseItem(c, base); ok {
			out = append(out, l)
		}
	})
	return out
}

func parseItem(c *goquery.Selection, base *url.URL) (l models.Listing, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("skipping unparseable item", zap.Any("panic", r))
			ok = false
		}
	}()

	asin := strings.TrimSpace(c.AttrOr("data-asin", ""))
	if utf8.RuneCountInString(asin) < minASINLength {
		return l, false
	}

	h2 := c.Find("h2").First()
	if h2.Length() == 0 {
		return l, false
	}
	raw := strings.TrimSpace(h2.Text())
	if utf8.RuneCountInString(raw) < minTitleLength {
		return l, false
	}
	title := normalize.Title(raw)

	l.ID = asin
	l.Title = title
	l.Price, l.PriceDisplay = extractPrice(c)
	l.Rating, l.RatingDisplay = normalize.Rating(c.Find("span.a-icon-alt").First().Text())
	l.ReviewsDisplay = extractReviews(c)
	l.ImageURL = c.Find("img.s-image").First().AttrOr("src", "")
	if l.ImageURL == "" {
		l.ImageURL = models.PlaceholderImage
	}
	l.URL = productURL(c, base, asin)
	l.IsSponsored = sponsored(c)
	return l, true
}

// sponsored matches each text node on its own; Text() on the container would
// glue a bare "Sponsored" label onto the following title.
func sponsored(c *goquery.Selection) bool {
	found := false
	c.Find("*").AddBack().Contents().EachWithBreak(func(_ int, n *goquery.Selection) bool {
		if goquery.NodeName(n) == "#text" && sponsoredMarker.MatchString(n.Text()) {
			found = true
		}
		return !found
	})
	return found
}

func extractPrice(c *goquery.Selection) (float64, string) {
	for _, strategy := range priceStrategies {
		if v, ok := strategy(c); ok && v > 0 {
			return v, normalize.FormatPrice(v, Source.Currency.Marker)
		}
	}
	return 0, models.PriceUnavailable
}

func offscreenPrice(selector string) priceStrategy {
	return func(c *goquery.Selection) (float64, bool) {
		el := c.Find(selector).First()
		if el.Length() == 0 {
			return 0, false
		}
		return normalize.ParsePrice(strings.TrimSpace(el.Text()))
	}
}

// wholeFractionPrice joins the "1,299." and "99" parts Amazon renders for the
// visible price.
func wholeFractionPrice(c *goquery.Selection) (float64, bool) {
	whole := c.Find("span.a-price-whole").First()
	if whole.Length() == 0 {
		return 0, false
	}
	text := strings.ReplaceAll(strings.TrimSpace(whole.Text()), ",", "")
	text = strings.TrimSuffix(text, ".")
	if fraction := strings.TrimSpace(c.Find("span.a-price-fraction").First().Text()); fraction != "" {
		text += "." + fraction
	}
	return normalize.ParsePrice(text)
}

func textPrice(c *goquery.Selection) (float64, bool) {
	return normalize.PriceFromText(c.Text())
}

func extractReviews(c *goquery.Selection) string {
	for _, selector := range reviewSelectors {
		el := c.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if text, ok := normalize.ReviewsFromText(strings.TrimSpace(el.Text())); ok {
			return text
		}
	}
	return "0"
}

func productURL(c *goquery.Selection, base *url.URL, asin string) string {
	href := strings.TrimSpace(c.Find("a.a-link-normal").First().AttrOr("href", ""))
	if href != "" {
		if ref, err := url.Parse(href); err == nil {
			return base.ResolveReference(ref).String()
		}
	}
	return base.ResolveReference(&url.URL{Path: "/dp/" + asin}).String()
}
