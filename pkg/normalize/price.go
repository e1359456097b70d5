// Package normalize turns the loosely formatted price, rating and review
// fields of both sources into canonical numeric and display values.
//
// Nothing in this package returns an error: a value that cannot be read
// degrades to the sentinel defined in pkg/models.
package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"price-compare/pkg/models"
)

var (
	currencyToken = regexp.MustCompile(`(?i)\b(?:rs\.?|pkr|usd)`)
	nonPriceChars = regexp.MustCompile(`[^\d.]`)
	// A grouped amount needs at least one comma group, otherwise plain digits
	// are taken whole ("Rs. 12345" is 12345, not 123).
	currencyPrice = regexp.MustCompile(`(?i)(?:\bRs\.?|\bPKR|\bUSD|\$)\s*(\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\d+(?:\.\d{2})?)`)
)

// ParsePrice reads a numeric value or a price string such as "$1,299.99".
// Currency words are removed, then anything but digits and dots is dropped,
// and when more than one dot is left only the first two segments are kept
// ("12.99.00" reads as 12.99).
func ParsePrice(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return validPrice(v)
	case float32:
		return validPrice(float64(v))
	case int:
		return validPrice(float64(v))
	case int64:
		return validPrice(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return parsePriceString(v.String())
		}
		return validPrice(f)
	case string:
		return parsePriceString(v)
	}
	return 0, false
}

func parsePriceString(s string) (float64, bool) {
	cleaned := nonPriceChars.ReplaceAllString(currencyToken.ReplaceAllString(s, ""), "")
	if strings.Count(cleaned, ".") > 1 {
		parts := strings.Split(cleaned, ".")
		cleaned = parts[0] + "." + parts[1]
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return validPrice(f)
}

func validPrice(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// PriceFromText searches free text for a currency-prefixed amount.
func PriceFromText(text string) (float64, bool) {
	m := currencyPrice.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return validPrice(f)
}

// FormatPrice renders whole thousands-separated amounts from 1000 up and two
// decimals below that. The branch is chosen on the amount rounded to cents.
func FormatPrice(v float64, marker string) string {
	cents := math.Round(v*100) / 100
	if cents >= 1000 {
		return marker + humanize.Commaf(math.RoundToEven(cents))
	}
	return marker + strconv.FormatFloat(cents, 'f', 2, 64)
}

// Price normalizes raw, falling back to a currency pattern in surrounding.
// A zero or unreadable amount yields the unavailable sentinel.
func Price(raw any, surrounding, marker string) (float64, string) {
	v, ok := ParsePrice(raw)
	if !ok && surrounding != "" {
		v, ok = PriceFromText(surrounding)
	}
	if !ok || v == 0 {
		return 0, models.PriceUnavailable
	}
	return v, FormatPrice(v, marker)
}
