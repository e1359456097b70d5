package compare

import (
	"time"

	"price-compare/pkg/models"
)

type PlatformSummary struct {
	Count               int     `json:"count"`
	Currency            string  `json:"currency"`
	AvgPrice            float64 `json:"avg_price"`
	MinPrice            float64 `json:"min_price"`
	MaxPrice            float64 `json:"max_price"`
	AvgPriceUSD         float64 `json:"avg_price_usd"`
	AvgRating           float64 `json:"avg_rating"`
	SponsoredCount      int     `json:"sponsored_count"`
	SponsoredPercentage float64 `json:"sponsored_percentage"`
}

type Summary struct {
	Query         string                     `json:"query"`
	TotalProducts int                        `json:"total_products"`
	Platforms     map[string]PlatformSummary `json:"platforms"`
	Timestamp     time.Time                  `json:"timestamp"`
}

// Summarize computes per-platform statistics. Prices average over priced
// products only and ratings over rated products only. Platforms without
// products are left out. pkrToUSD converts PKR averages for the USD column.
func Summarize(res Results, pkrToUSD float64) Summary {
	s := Summary{
		Query:     res.Query,
		Platforms: make(map[string]PlatformSummary),
		Timestamp: time.Now().UTC(),
	}

	for _, o := range res.Outcomes {
		if len(o.Products) == 0 {
			continue
		}
		s.Platforms[o.Platform.Key()] = summarize(o.Products, pkrToUSD)
		s.TotalProducts += len(o.Products)
	}
	return s
}

func summarize(products []models.Product, pkrToUSD float64) PlatformSummary {
	ps := PlatformSummary{Count: len(products), Currency: products[0].Currency}

	var priceSum, ratingSum float64
	var priced, rated int
	for _, p := range products {
		if p.Price > 0 {
			if priced == 0 || p.Price < ps.MinPrice {
				ps.MinPrice = p.Price
			}
			if p.Price > ps.MaxPrice {
				ps.MaxPrice = p.Price
			}
			priceSum += p.Price
			priced++
		}
		if p.Rating > 0 {
			ratingSum += p.Rating
			rated++
		}
		if p.IsSponsored {
			ps.SponsoredCount++
		}
	}

	if priced > 0 {
		ps.AvgPrice = priceSum / float64(priced)
	}
	if rated > 0 {
		ps.AvgRating = ratingSum / float64(rated)
	}
	ps.SponsoredPercentage = float64(ps.SponsoredCount) / float64(len(products)) * 100
	ps.AvgPriceUSD = ToUSD(ps.AvgPrice, ps.Currency, pkrToUSD)
	return ps
}

// ToUSD converts an amount in currency to US dollars. Unknown currencies and
// a non-positive rate leave the amount unchanged.
func ToUSD(amount float64, currency string, pkrToUSD float64) float64 {
	if currency == models.PKR.Code && pkrToUSD > 0 {
		return amount / pkrToUSD
	}
	return amount
}

// FindPair looks id up in the product lists of two platforms. Either result is
// nil when that platform has no product with the identifier.
func FindPair(res Results, platform1, platform2 models.Platform, id string) (*models.Product, *models.Product) {
	return find(res.Products(platform1), id), find(res.Products(platform2), id)
}

func find(products []models.Product, id string) *models.Product {
	for i := range products {
		if products[i].ID == id {
			p := products[i]
			return &p
		}
	}
	return nil
}
