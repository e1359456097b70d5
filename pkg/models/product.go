package models

import "time"

type Platform string

const (
	PlatformAmazon Platform = "Amazon"
	PlatformDaraz  Platform = "Daraz"
)

// Key is the lowercase form used in URLs, cache keys and ledger fields.
func (p Platform) Key() string {
	switch p {
	case PlatformAmazon:
		return "amazon"
	case PlatformDaraz:
		return "daraz"
	}
	return ""
}

// ParsePlatform accepts the lowercase key or the display name.
func ParsePlatform(s string) (Platform, bool) {
	switch s {
	case "amazon", "Amazon":
		return PlatformAmazon, true
	case "daraz", "Daraz":
		return PlatformDaraz, true
	}
	return "", false
}

type Currency struct {
	Code   string
	Marker string
}

var (
	USD = Currency{Code: "USD", Marker: "$"}
	PKR = Currency{Code: "PKR", Marker: "Rs. "}
)

// Source is the fixed metadata every record from one adapter carries.
type Source struct {
	Platform Platform
	Currency Currency
}

const (
	PlaceholderImage = "https://via.placeholder.com/200?text=No+Image"
	PriceUnavailable = "Price unavailable"
	NoRatings        = "No ratings"
)

// Listing holds the fields an adapter extracted from one raw item, before
// page and timestamp metadata are stamped on.
type Listing struct {
	ID              string
	Title           string
	URL             string
	Price           float64
	PriceDisplay    string
	OldPrice        float64
	OldPriceDisplay string
	Rating          float64
	RatingDisplay   string
	ReviewsDisplay  string
	ImageURL        string
	IsSponsored     bool
}

type Product struct {
	Title           string    `json:"title"`
	ID              string    `json:"identifier"`
	URL             string    `json:"url"`
	PriceDisplay    string    `json:"price_display"`
	Price           float64   `json:"price_numeric"`
	Currency        string    `json:"currency"`
	OldPriceDisplay string    `json:"old_price_display,omitempty"`
	OldPrice        float64   `json:"old_price_numeric,omitempty"`
	RatingDisplay   string    `json:"rating_display"`
	Rating          float64   `json:"rating_numeric"`
	ReviewsDisplay  string    `json:"reviews_display"`
	ImageURL        string    `json:"image_url"`
	IsSponsored     bool      `json:"is_sponsored"`
	Platform        Platform  `json:"platform"`
	PageNumber      int       `json:"page_number"`
	CollectedAt     time.Time `json:"collected_at"`
}
