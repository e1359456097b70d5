package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"price-compare/pkg/models"
)

var (
	ratingNumber = regexp.MustCompile(`(\d+\.?\d*)`)
	reviewNumber = regexp.MustCompile(`(?i)(\d+(?:,\d+)?(?:\.\d+)?K?)`)
)

// Rating reads a numeric score or the first decimal number of a text such as
// "4.5 out of 5 stars". Scores outside (0, 5] and the "No rating" marker give
// the sentinel pair.
func Rating(raw any) (float64, string) {
	var v float64
	switch r := raw.(type) {
	case float64:
		v = r
	case float32:
		v = float64(r)
	case int:
		v = float64(r)
	case int64:
		v = float64(r)
	case json.Number:
		f, err := r.Float64()
		if err != nil {
			return 0, models.NoRatings
		}
		v = f
	case string:
		s := strings.TrimSpace(r)
		if s == "" || strings.EqualFold(s, "No rating") || strings.EqualFold(s, models.NoRatings) {
			return 0, models.NoRatings
		}
		m := ratingNumber.FindString(s)
		if m == "" {
			return 0, models.NoRatings
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, models.NoRatings
		}
		v = f
	default:
		return 0, models.NoRatings
	}

	if math.IsNaN(v) || v <= 0 || v > 5 {
		return 0, models.NoRatings
	}
	return v, formatRating(v) + " out of 5 stars"
}

func formatRating(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Reviews renders a review count. Integer counts of 1000 and more are
// abbreviated to whole thousands ("1k+" for 1500); free text is matched for
// its first count and passed through as written.
func Reviews(raw any) string {
	switch r := raw.(type) {
	case float64:
		if r >= 0 && r == math.Trunc(r) && !math.IsInf(r, 0) {
			return countDisplay(int64(r))
		}
	case int:
		if r >= 0 {
			return countDisplay(int64(r))
		}
	case int64:
		if r >= 0 {
			return countDisplay(r)
		}
	case json.Number:
		if n, err := r.Int64(); err == nil && n >= 0 {
			return countDisplay(n)
		}
		return Reviews(r.String())
	case string:
		s := strings.TrimSpace(r)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
			return countDisplay(n)
		}
		if text, ok := ReviewsFromText(s); ok {
			return text
		}
	}
	return "0"
}

// ReviewsFromText returns the first count in text, keeping its grouping
// commas and a trailing K.
func ReviewsFromText(text string) (string, bool) {
	m := reviewNumber.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func countDisplay(n int64) string {
	if n >= 1000 {
		return fmt.Sprintf("%dk+", n/1000)
	}
	return strconv.FormatInt(n, 10)
}

// Title folds compatibility characters and collapses runs of whitespace.
func Title(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
