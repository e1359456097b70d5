package daraz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"price-compare/pkg/models"
	"price-compare/pkg/normalize"
)

var itemIDSuffix = regexp.MustCompile(`-i(\d+)`)

type catalogResponse struct {
	Mods struct {
		ListItems []catalogItem `json:"listItems"`
	} `json:"mods"`
}

// Fields are decoded loosely; the API mixes strings and numbers for the
// same key between items.
type catalogItem struct {
	ItemID        any `json:"itemId"`
	Name          any `json:"name"`
	Price         any `json:"price"`
	OriginalPrice any `json:"originalPrice"`
	RatingScore   any `json:"ratingScore"`
	Review        any `json:"review"`
	Image         any `json:"image"`
	ItemURL       any `json:"itemUrl"`
	IsSponsored   any `json:"isSponsored"`
}

// ParseCatalog reads mods.listItems from a catalog response. A body that is
// not valid JSON is reported as models.ErrMalformedResponse; items without a
// name are skipped.
func ParseCatalog(body []byte, baseURL string) ([]models.Listing, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = &url.URL{Scheme: "https", Host: "www.daraz.pk"}
	}

	var resp catalogResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: catalog: %w", models.ErrMalformedResponse, err)
	}

	var out []models.Listing
	for _, item := range resp.Mods.ListItems {
		if l, ok := parseItem(item, base); ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func parseItem(item catalogItem, base *url.URL) (l models.Listing, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("skipping unparseable item", zap.Any("panic", r))
			ok = false
		}
	}()

	l.Title = normalize.Title(text(item.Name))
	if l.Title == "" {
		return l, false
	}

	itemURL := text(item.ItemURL)
	l.ID = itemID(text(item.ItemID), itemURL)
	l.URL = resolve(base, itemURL)

	marker := Source.Currency.Marker
	l.Price, l.PriceDisplay = normalize.Price(item.Price, text(item.Price), marker)
	if v, ok := normalize.ParsePrice(item.OriginalPrice); ok && v > 0 {
		l.OldPrice, l.OldPriceDisplay = v, normalize.FormatPrice(v, marker)
	}

	l.Rating, l.RatingDisplay = normalize.Rating(item.RatingScore)
	l.ReviewsDisplay = normalize.Reviews(item.Review)

	l.ImageURL = models.PlaceholderImage
	if img := text(item.Image); img != "" {
		l.ImageURL = resolve(base, img)
	}

	l.IsSponsored = truthy(item.IsSponsored)
	return l, true
}

// itemID prefers the explicit id, then the "-i<digits>" suffix of the item
// URL, then a random six-digit placeholder.
func itemID(explicit, itemURL string) string {
	if explicit != "" {
		return explicit
	}
	if m := itemIDSuffix.FindStringSubmatch(itemURL); m != nil {
		return m[1]
	}
	return strconv.Itoa(100000 + rand.IntN(900000))
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return base.String()
	}
	u, err := url.Parse(ref)
	if err != nil {
		return base.String() + ref
	}
	return base.ResolveReference(u).String()
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return false
}
