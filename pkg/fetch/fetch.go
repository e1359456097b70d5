package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"price-compare/pkg/models"
)

// Request is a single GET against a search endpoint.
type Request struct {
	URL     string
	Query   url.Values
	Headers http.Header
}

// Target returns URL with Query merged into its existing query string.
func (r Request) Target() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Fetcher returns the body of a successful response. Network errors and
// non-success statuses are reported wrapped in models.ErrTransport.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Colly fetches pages through a colly collector. Each Fetch runs on a clone,
// so the cookie jar and HTTP client are shared between the pages of a search
// while callbacks are not.
type Colly struct {
	Collector *colly.Collector
}

func NewColly(timeout time.Duration, allowedDomains ...string) *Colly {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.AllowedDomains(allowedDomains...),
	)
	c.SetRequestTimeout(timeout)
	return &Colly{Collector: c}
}

func (f *Colly) Fetch(ctx context.Context, req Request) ([]byte, error) {
	target, err := req.Target()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %w", models.ErrTransport, req.URL, err)
	}

	c := f.Collector.Clone()
	c.Context = ctx
	// Any 2xx is a success; left to itself colly rejects everything from 203.
	c.ParseHTTPErrorResponse = true

	var (
		body   []byte
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		body, status = r.Body, r.StatusCode
	})

	var hdr http.Header
	if req.Headers != nil {
		hdr = req.Headers.Clone()
	}

	if err := c.Request(http.MethodGet, target, nil, nil, hdr); err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", models.ErrTransport, target, err)
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: GET %s: status %d", models.ErrTransport, target, status)
	}
	return body, nil
}
