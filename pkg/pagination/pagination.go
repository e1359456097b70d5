// Package pagination drives the page-by-page fetch loop shared by every
// platform scraper. Pages are fetched strictly in sequence; the loop ends on
// the first failed fetch, after two consecutive empty pages, or at the page
// cap. Whatever was collected before the stop is always returned.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"price-compare/pkg/models"
	"price-compare/pkg/throttle"
)

// NoPageCap is reported to progress callbacks as the total when the search
// has no page cap.
const NoPageCap = 999

// MaxConsecutiveEmpty is the number of empty pages in a row that ends a search.
const MaxConsecutiveEmpty = 2

type StopReason string

const (
	FetchFailed    StopReason = "fetch_failed"
	Exhausted      StopReason = "exhausted"
	PageCapReached StopReason = "page_cap_reached"
	Error          StopReason = "error"
)

// PageFunc fetches and parses one page. Errors wrapping models.ErrTransport
// end the search as FetchFailed; any other error ends it as Error.
type PageFunc func(ctx context.Context, page int) ([]models.Listing, error)

// ProgressFunc is called once per non-empty page.
type ProgressFunc func(page, totalPages, count int)

// Observer receives page and stop events, typically for metrics.
type Observer interface {
	PageDone(platform models.Platform, page, items int)
	SearchDone(platform models.Platform, reason StopReason, pages, products int, elapsed time.Duration)
}

type Result struct {
	Products []models.Product
	// Pages is the number of the last page attempted.
	Pages int
	Stop  StopReason
	Err   error
}

type Controller struct {
	Source   models.Source
	MaxPages int // 0 means no cap
	Progress ProgressFunc
	Pacer    throttle.Pacer
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

func (c *Controller) Run(ctx context.Context, fetch PageFunc) (res Result) {
	log := c.Logger
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("platform", string(c.Source.Platform)))
	now := c.Now
	if now == nil {
		now = time.Now
	}
	total := c.MaxPages
	if total <= 0 {
		total = NoPageCap
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Stop = Error
			res.Err = fmt.Errorf("panic on page %d: %v", res.Pages, r)
		}
		fields := []zap.Field{
			zap.String("stop", string(res.Stop)),
			zap.Int("pages", res.Pages),
			zap.Int("products", len(res.Products)),
		}
		if res.Err != nil {
			log.Warn("search stopped", append(fields, zap.Error(res.Err))...)
		} else {
			log.Info("search finished", fields...)
		}
		if c.Observer != nil {
			c.Observer.SearchDone(c.Source.Platform, res.Stop, res.Pages, len(res.Products), time.Since(start))
		}
	}()

	empty := 0
	for page := 1; ; page++ {
		res.Pages = page

		if err := c.Pacer.Wait(ctx); err != nil {
			res.Stop, res.Err = Error, err
			return res
		}

		listings, err := fetch(ctx, page)
		if err != nil {
			res.Err = err
			if errors.Is(err, models.ErrTransport) {
				res.Stop = FetchFailed
			} else {
				res.Stop = Error
			}
			return res
		}
		if c.Observer != nil {
			c.Observer.PageDone(c.Source.Platform, page, len(listings))
		}

		if len(listings) == 0 {
			empty++
			log.Debug("empty page", zap.Int("page", page), zap.Int("consecutive", empty))
			if empty >= MaxConsecutiveEmpty {
				res.Stop = Exhausted
				return res
			}
		} else {
			empty = 0
			at := now()
			for _, l := range listings {
				res.Products = append(res.Products, models.Assemble(l, c.Source, page, at))
			}
			log.Debug("page parsed", zap.Int("page", page), zap.Int("items", len(listings)), zap.Int("total", len(res.Products)))
			if c.Progress != nil {
				c.Progress(page, total, len(res.Products))
			}
		}

		if c.MaxPages > 0 && page >= c.MaxPages {
			res.Stop = PageCapReached
			return res
		}
	}
}
