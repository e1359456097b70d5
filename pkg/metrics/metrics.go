package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"price-compare/pkg/models"
	"price-compare/pkg/pagination"
)

type Metrics struct {
	registry *prometheus.Registry

	PagesFetched        *prometheus.CounterVec
	ProductsCollected   *prometheus.CounterVec
	SearchesTotal       *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	CacheLookups        *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_fetched_total",
				Help: "Search result pages fetched, by platform and whether they held items.",
			},
			[]string{"platform", "result"},
		),
		ProductsCollected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_products_collected_total",
				Help: "Products collected by finished searches.",
			},
			[]string{"platform"},
		),
		SearchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_searches_total",
				Help: "Finished platform searches by stop reason.",
			},
			[]string{"platform", "stop"},
		),
		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_search_duration_seconds",
				Help:    "Duration of platform searches.",
				Buckets: []float64{1, 5, 10, 15, 30, 60, 120, 300},
			},
			[]string{"platform"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_cache_lookups_total",
				Help: "Search cache lookups by platform and outcome.",
			},
			[]string{"platform", "result"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PageDone(platform models.Platform, _ int, items int) {
	result := "items"
	if items == 0 {
		result = "empty"
	}
	m.PagesFetched.WithLabelValues(platform.Key(), result).Inc()
}

func (m *Metrics) SearchDone(platform models.Platform, reason pagination.StopReason, _ int, products int, elapsed time.Duration) {
	m.SearchesTotal.WithLabelValues(platform.Key(), string(reason)).Inc()
	m.ProductsCollected.WithLabelValues(platform.Key()).Add(float64(products))
	m.SearchDuration.WithLabelValues(platform.Key()).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheLookup(platform models.Platform, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(platform.Key(), result).Inc()
}

// Middleware records request counts and latency labelled by the matched chi
// route pattern, so path parameters do not explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		m.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		m.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

var _ pagination.Observer = (*Metrics)(nil)
