package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"price-compare/pkg/compare"
	"price-compare/pkg/metrics"
	"price-compare/pkg/models"
	"price-compare/pkg/pagination"
	"price-compare/pkg/progress"
)

// maxBodyBytes caps search request bodies.
const maxBodyBytes = 16 << 10

// Server exposes the comparison runner over HTTP.
type Server struct {
	Runner   *compare.Runner
	Ledger   progress.Ledger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Grace    time.Duration
	PKRToUSD float64
	// SpecDir holds api.yaml for the reference page.
	SpecDir string
	Title   string

	jobs         sync.WaitGroup
	newSessionID func() string
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "No route for "+r.URL.Path, r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteMethodNotAllowed(w, r.Method, r.URL.Path)
	})

	r.Get("/", s.rootHandler)
	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.searchHandler)
		r.Post("/search/async", s.asyncSearchHandler)
		r.Get("/progress/{sessionID}", s.progressHandler)
		r.Get("/summary", s.summaryHandler)
		r.Get("/compare/{platform1}/{platform2}/{productID}", s.compareHandler)
	})

	return r
}

// Wait blocks until every background search has finished.
func (s *Server) Wait() {
	s.jobs.Wait()
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	dir := s.SpecDir
	if dir == "" {
		dir = "./"
	}
	title := s.Title
	if title == "" {
		title = "Price Compare API"
	}
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir(dir),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle(title),
		),
	)
	if err != nil {
		WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type searchRequest struct {
	Query     string   `json:"query"`
	Platforms []string `json:"platforms"`
	// Pages is the page cap per platform; absent means every page.
	Pages *int `json:"pages"`
}

type searchResponse struct {
	Query          string                      `json:"query"`
	Results        map[string][]models.Product `json:"results"`
	TotalProducts  int                         `json:"total_products"`
	PlatformCounts map[string]int              `json:"platform_counts"`
	Timestamp      time.Time                   `json:"timestamp"`
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	res := s.Runner.Run(r.Context(), req, nil)
	writeJSON(w, http.StatusOK, searchResponse{
		Query:          res.Query,
		Results:        res.ByPlatform(),
		TotalProducts:  res.Total(),
		PlatformCounts: res.Counts(),
		Timestamp:      time.Now().UTC(),
	})
}

func (s *Server) asyncSearchHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	id := s.sessionID()
	total := req.MaxPages
	if total <= 0 {
		total = pagination.NoPageCap
	}

	// Entries exist before the response goes out so the first poll finds them.
	ctx := context.WithoutCancel(r.Context())
	trackers := make(map[models.Platform]*progress.Tracker, len(req.Platforms))
	for _, p := range req.Platforms {
		t := &progress.Tracker{Ledger: s.Ledger, SessionID: id, Platform: p, Logger: s.logger()}
		t.Start(ctx, total)
		trackers[p] = t
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		res := s.Runner.Run(ctx, req, func(p models.Platform) compare.Reporter {
			return trackers[p]
		})
		s.logger().Info("background search done",
			zap.String("session", id), zap.String("query", req.Query), zap.Int("products", res.Total()))
	}()

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"status":     "started",
		"message":    fmt.Sprintf("Searching %d platform(s) for %q", len(req.Platforms), req.Query),
		"timestamp":  time.Now().UTC(),
	})
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := s.Ledger.Get(r.Context(), id)
	if errors.Is(err, models.ErrSessionNotFound) {
		WriteNotFound(w, "Session not found", r.URL.Path)
		return
	}
	if err != nil {
		WriteInternalServerError(w, err, r.URL.Path)
		return
	}

	done := session.Finished()
	if done {
		if err := s.Ledger.Release(r.Context(), id, s.Grace); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
			s.logger().Warn("progress release failed", zap.String("session", id), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    id,
		"all_completed": done,
		"platforms":     session,
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	res, found := s.Runner.Cached(req)
	if !found {
		WriteNotFound(w, "No results to export", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, compare.Summarize(res, s.PKRToUSD))
}

func (s *Server) compareHandler(w http.ResponseWriter, r *http.Request) {
	p1, ok1 := models.ParsePlatform(chi.URLParam(r, "platform1"))
	p2, ok2 := models.ParsePlatform(chi.URLParam(r, "platform2"))
	if !ok1 || !ok2 {
		WriteBadRequest(w, "Platform not supported. Available: amazon, daraz", r.URL.Path)
		return
	}
	req, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	req.Platforms = []models.Platform{p1, p2}

	res, found := s.Runner.Cached(req)
	if !found {
		WriteNotFound(w, "No results to compare", r.URL.Path)
		return
	}

	id := chi.URLParam(r, "productID")
	a, b := compare.FindPair(res, p1, p2, id)
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		p1.Key():     a,
		p2.Key():     b,
	})
}

// decodeSearch validates a search body and writes the problem response when
// it is rejected.
func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (compare.Request, bool) {
	var body searchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteTooLarge(w, r.URL.Path)
			return compare.Request{}, false
		}
		WriteBadRequest(w, "Invalid JSON body. Expected {\"query\": ..., \"platforms\": [...], \"pages\": n}.", r.URL.Path)
		return compare.Request{}, false
	}

	req := compare.Request{Query: strings.TrimSpace(body.Query)}
	if req.Query == "" {
		WriteBadRequest(w, "Please enter a search term", r.URL.Path)
		return req, false
	}
	if body.Pages != nil {
		if *body.Pages < 1 {
			WriteBadRequest(w, "pages must be a positive number", r.URL.Path)
			return req, false
		}
		req.MaxPages = *body.Pages
	}

	var requested []models.Platform
	for _, name := range body.Platforms {
		if p, ok := models.ParsePlatform(name); ok {
			requested = append(requested, p)
		}
	}
	if len(body.Platforms) > 0 && len(requested) == 0 {
		WriteBadRequest(w, "No supported platforms. Available: amazon, daraz", r.URL.Path)
		return req, false
	}
	req.Platforms = s.Runner.Platforms(requested)
	if len(req.Platforms) == 0 {
		WriteBadRequest(w, "No supported platforms. Available: amazon, daraz", r.URL.Path)
		return req, false
	}
	return req, true
}

// queryParams reads ?query=&pages= for the views over cached results.
func (s *Server) queryParams(w http.ResponseWriter, r *http.Request) (compare.Request, bool) {
	req := compare.Request{Query: strings.TrimSpace(r.URL.Query().Get("query"))}
	if req.Query == "" {
		WriteBadRequest(w, "Please enter a search term", r.URL.Path)
		return req, false
	}
	if raw := r.URL.Query().Get("pages"); raw != "" && raw != "all" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteBadRequest(w, fmt.Sprintf("Invalid pages value: %s", raw), r.URL.Path)
			return req, false
		}
		req.MaxPages = n
	}
	return req, true
}

func (s *Server) sessionID() string {
	if s.newSessionID != nil {
		return s.newSessionID()
	}
	return uuid.NewString()
}

func (s *Server) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.L()
}

