package daraz

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"price-compare/pkg/fetch"
	"price-compare/pkg/models"
	"price-compare/pkg/pagination"
	"price-compare/pkg/throttle"
)

const (
	BaseURL         = "https://www.daraz.pk"
	DefaultTimeout  = 30 * time.Second
	DefaultMinDelay = 1500 * time.Millisecond
	DefaultMaxDelay = 3 * time.Second
)

var Source = models.Source{Platform: models.PlatformDaraz, Currency: models.PKR}

type Scraper struct {
	BaseURL  string
	Fetcher  fetch.Fetcher
	Agent    throttle.AgentFunc
	Pacer    throttle.Pacer
	Observer pagination.Observer
	Logger   *zap.Logger
}

func NewScraper(baseURL string) *Scraper {
	if baseURL == "" {
		baseURL = BaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var hosts []string
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}

	return &Scraper{
		BaseURL: baseURL,
		Fetcher: fetch.NewColly(DefaultTimeout, hosts...),
		Agent:   throttle.RandomAgent(nil),
		Pacer:   throttle.Pacer{Delay: throttle.UniformDelay(DefaultMinDelay, DefaultMaxDelay)},
	}
}

// Search pages through the catalog API for query. maxPages <= 0 means no cap.
func (s *Scraper) Search(ctx context.Context, query string, maxPages int, progress pagination.ProgressFunc) []models.Product {
	return s.Run(ctx, query, maxPages, progress).Products
}

func (s *Scraper) Run(ctx context.Context, query string, maxPages int, progress pagination.ProgressFunc) pagination.Result {
	log := s.logger().With(zap.String("query", query))
	log.Info("searching daraz", zap.Int("max_pages", maxPages))

	c := &pagination.Controller{
		Source:   Source,
		MaxPages: maxPages,
		Progress: progress,
		Pacer:    s.Pacer,
		Observer: s.Observer,
		Logger:   log,
	}
	return c.Run(ctx, s.page(query))
}

func (s *Scraper) page(query string) pagination.PageFunc {
	return func(ctx context.Context, page int) ([]models.Listing, error) {
		body, err := s.Fetcher.Fetch(ctx, fetch.Request{
			URL: s.BaseURL + "/catalog/",
			Query: url.Values{
				"ajax": {"true"},
				"q":    {query},
				"page": {strconv.Itoa(page)},
			},
			Headers: s.headers(),
		})
		if err != nil {
			return nil, err
		}
		return ParseCatalog(body, s.BaseURL)
	}
}

func (s *Scraper) headers() http.Header {
	agent := s.Agent
	if agent == nil {
		agent = throttle.RandomAgent(nil)
	}
	h := http.Header{}
	h.Set("User-Agent", agent())
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Referer", s.BaseURL)
	return h
}

func (s *Scraper) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.L()
}
