package models

import (
	"math"
	"time"
)

// Assemble merges adapter fields with the source metadata into the canonical
// record. Out-of-range numbers fall back to the unavailable sentinels.
func Assemble(l Listing, src Source, page int, at time.Time) Product {
	p := Product{
		Title:           l.Title,
		ID:              l.ID,
		URL:             l.URL,
		PriceDisplay:    l.PriceDisplay,
		Price:           l.Price,
		Currency:        src.Currency.Code,
		OldPriceDisplay: l.OldPriceDisplay,
		OldPrice:        l.OldPrice,
		RatingDisplay:   l.RatingDisplay,
		Rating:          l.Rating,
		ReviewsDisplay:  l.ReviewsDisplay,
		ImageURL:        l.ImageURL,
		IsSponsored:     l.IsSponsored,
		Platform:        src.Platform,
		PageNumber:      page,
		CollectedAt:     at,
	}

	if !(p.Price >= 0) || math.IsInf(p.Price, 0) {
		p.Price = 0
		p.PriceDisplay = PriceUnavailable
	}
	if p.PriceDisplay == "" {
		p.PriceDisplay = PriceUnavailable
	}
	if !(p.OldPrice > 0) || math.IsInf(p.OldPrice, 0) {
		p.OldPrice = 0
		p.OldPriceDisplay = ""
	}
	if !(p.Rating > 0 && p.Rating <= 5) {
		p.Rating = 0
		p.RatingDisplay = NoRatings
	}
	if p.ReviewsDisplay == "" {
		p.ReviewsDisplay = "0"
	}
	if p.ImageURL == "" {
		p.ImageURL = PlaceholderImage
	}

	return p
}
