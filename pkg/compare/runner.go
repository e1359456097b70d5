// Package compare runs one query against several platforms side by side and
// derives the comparison views (summary statistics, product pairs) from the
// per-platform results.
package compare

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"price-compare/pkg/logger"
	"price-compare/pkg/models"
	"price-compare/pkg/pagination"
)

// DefaultPlatforms is searched when a request names none.
var DefaultPlatforms = []models.Platform{models.PlatformAmazon, models.PlatformDaraz}

// Searcher is a platform scraper.
type Searcher interface {
	Run(ctx context.Context, query string, maxPages int, progress pagination.ProgressFunc) pagination.Result
}

// Store caches finished searches.
type Store interface {
	Get(platform models.Platform, query string, maxPages int) ([]models.Product, bool)
	Set(platform models.Platform, query string, maxPages int, products []models.Product, collectedAt time.Time)
}

type CacheObserver interface {
	CacheLookup(platform models.Platform, hit bool)
}

// Reporter receives the progress of one platform search. Registering the
// search before it starts is left to the caller.
type Reporter interface {
	Progress(ctx context.Context) func(page, total, count int)
	Complete(ctx context.Context, count int, message string)
	Fail(ctx context.Context, count int, err error)
}

type Request struct {
	Query     string
	Platforms []models.Platform
	MaxPages  int
}

type Outcome struct {
	Platform models.Platform
	Products []models.Product
	Stop     pagination.StopReason
	Err      error
	Cached   bool
}

type Results struct {
	Query    string
	MaxPages int
	Outcomes []Outcome
}

// Products returns the products of platform, or nil when it was not searched.
func (r Results) Products(platform models.Platform) []models.Product {
	for _, o := range r.Outcomes {
		if o.Platform == platform {
			return o.Products
		}
	}
	return nil
}

// ByPlatform keys the product lists by platform key ("amazon", "daraz").
func (r Results) ByPlatform() map[string][]models.Product {
	out := make(map[string][]models.Product, len(r.Outcomes))
	for _, o := range r.Outcomes {
		products := o.Products
		if products == nil {
			products = []models.Product{}
		}
		out[o.Platform.Key()] = products
	}
	return out
}

func (r Results) Counts() map[string]int {
	out := make(map[string]int, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.Platform.Key()] = len(o.Products)
	}
	return out
}

func (r Results) Total() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Products)
	}
	return n
}

type Runner struct {
	Searchers     map[models.Platform]Searcher
	Store         Store
	CacheObserver CacheObserver
	Logger        *zap.Logger

	slots chan struct{}
}

// NewRunner allows at most maxConcurrent platform searches to scrape at once
// across every caller of the runner.
func NewRunner(searchers map[models.Platform]Searcher, maxConcurrent int) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		Searchers: searchers,
		slots:     make(chan struct{}, maxConcurrent),
	}
}

// Platforms resolves the requested platforms against the configured
// searchers, dropping unknown and duplicate entries.
func (r *Runner) Platforms(requested []models.Platform) []models.Platform {
	if len(requested) == 0 {
		requested = DefaultPlatforms
	}
	seen := make(map[models.Platform]bool, len(requested))
	var out []models.Platform
	for _, p := range requested {
		if _, ok := r.Searchers[p]; !ok || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Run searches every requested platform concurrently. report may be nil; when
// set it is asked for a Reporter per platform.
func (r *Runner) Run(ctx context.Context, req Request, report func(models.Platform) Reporter) Results {
	platforms := r.Platforms(req.Platforms)
	res := Results{Query: req.Query, MaxPages: req.MaxPages, Outcomes: make([]Outcome, len(platforms))}

	var wg sync.WaitGroup
	for i, platform := range platforms {
		var rep Reporter
		if report != nil {
			rep = report(platform)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Outcomes[i] = r.search(ctx, platform, req, rep)
		}()
	}
	wg.Wait()
	return res
}

// Cached returns whatever the store holds for req without scraping. ok is
// false when no platform has a cached result.
func (r *Runner) Cached(req Request) (Results, bool) {
	res := Results{Query: req.Query, MaxPages: req.MaxPages}
	if r.Store == nil {
		return res, false
	}
	found := false
	for _, platform := range r.Platforms(req.Platforms) {
		products, ok := r.Store.Get(platform, req.Query, req.MaxPages)
		if ok {
			found = true
		}
		res.Outcomes = append(res.Outcomes, Outcome{Platform: platform, Products: products, Cached: ok})
	}
	return res, found
}

func (r *Runner) search(ctx context.Context, platform models.Platform, req Request, rep Reporter) Outcome {
	log := r.logger().With(zap.String("platform", platform.Key()), zap.String("query", req.Query))
	out := Outcome{Platform: platform}

	if r.Store != nil {
		products, ok := r.Store.Get(platform, req.Query, req.MaxPages)
		if r.CacheObserver != nil {
			r.CacheObserver.CacheLookup(platform, ok)
		}
		if ok {
			logger.Dedup("Cache hit for %s/%s", platform.Key(), req.Query)
			out.Products, out.Cached = products, true
			if rep != nil {
				rep.Complete(ctx, len(products), fmt.Sprintf("Loaded %d products from cache", len(products)))
			}
			return out
		}
	}

	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		out.Stop, out.Err = pagination.Error, ctx.Err()
		if rep != nil {
			rep.Fail(ctx, 0, ctx.Err())
		}
		return out
	}
	defer func() { <-r.slots }()

	var progress pagination.ProgressFunc
	if rep != nil {
		progress = rep.Progress(ctx)
	}
	result := r.Searchers[platform].Run(ctx, req.Query, req.MaxPages, progress)
	out.Products, out.Stop, out.Err = result.Products, result.Stop, result.Err

	if len(out.Products) > 0 && out.Err == nil && r.Store != nil {
		r.Store.Set(platform, req.Query, req.MaxPages, out.Products, time.Now())
	}

	switch {
	case rep == nil:
	case len(out.Products) == 0 && out.Err != nil:
		rep.Fail(ctx, 0, out.Err)
	case out.Err != nil:
		rep.Complete(ctx, len(out.Products),
			fmt.Sprintf("Completed! Found %d products (stopped early: %v)", len(out.Products), out.Err))
	default:
		rep.Complete(ctx, len(out.Products), fmt.Sprintf("Completed! Found %d products", len(out.Products)))
	}

	log.Info("platform search done",
		zap.Int("products", len(out.Products)), zap.String("stop", string(out.Stop)))
	return out
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.L()
}
