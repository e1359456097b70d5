package amazon

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"price-compare/pkg/fetch"
	"price-compare/pkg/models"
	"price-compare/pkg/pagination"
	"price-compare/pkg/throttle"
)

const (
	BaseURL         = "https://www.amazon.com"
	DefaultTimeout  = 15 * time.Second
	DefaultMinDelay = 3 * time.Second
	DefaultMaxDelay = 5 * time.Second
)

var Source = models.Source{Platform: models.PlatformAmazon, Currency: models.USD}

type Scraper struct {
	BaseURL  string
	Fetcher  fetch.Fetcher
	Agent    throttle.AgentFunc
	Pacer    throttle.Pacer
	Observer pagination.Observer
	Logger   *zap.Logger
}

// NewScraper returns a scraper for the storefront at baseURL using a colly
// fetcher restricted to that host.
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

// Search collects results for query page by page. maxPages <= 0 means no cap.
// Failures end the search early; the products collected so far are returned.
func (s *Scraper) Search(ctx context.Context, query string, maxPages int, progress pagination.ProgressFunc) []models.Product {
	return s.Run(ctx, query, maxPages, progress).Products
}

// Run is Search with the stop reason and error kept.
func (s *Scraper) Run(ctx context.Context, query string, maxPages int, progress pagination.ProgressFunc) pagination.Result {
	log := s.logger().With(zap.String("query", query))
	log.Info("searching amazon", zap.Int("max_pages", maxPages))

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
			URL: s.BaseURL + "/s",
			Query: url.Values{
				"k":    {query},
				"page": {strconv.Itoa(page)},
				"ref":  {fmt.Sprintf("nb_sb_noss_%d", page)},
			},
			Headers: s.headers(),
		})
		if err != nil {
			return nil, err
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", models.ErrMalformedResponse, page, err)
		}
		return ParseSearchResults(doc.Selection, s.BaseURL), nil
	}
}

func (s *Scraper) headers() http.Header {
	agent := s.Agent
	if agent == nil {
		agent = throttle.RandomAgent(nil)
	}
	h := http.Header{}
	h.Set("User-Agent", agent())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

func (s *Scraper) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.L()
}
