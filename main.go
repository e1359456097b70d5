package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"price-compare/pkg/api"
	"price-compare/pkg/cache"
	"price-compare/pkg/compare"
	"price-compare/pkg/config"
	"price-compare/pkg/fetch"
	"price-compare/pkg/logger"
	"price-compare/pkg/metrics"
	"price-compare/pkg/models"
	"price-compare/pkg/pagination"
	"price-compare/pkg/progress"
	"price-compare/pkg/scrapers/amazon"
	"price-compare/pkg/scrapers/daraz"
	"price-compare/pkg/throttle"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "price-compare",
		Short:        "Search Amazon and Daraz and compare the results",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the env file with configuration")

	serve := newServeCmd(&envFile)
	root.AddCommand(serve, newSearchCmd(&envFile))
	root.RunE = serve.RunE
	return root
}

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newSearchCmd(envFile *string) *cobra.Command {
	var (
		pages     int
		platforms []string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search from the console and print the products as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errors.New("please enter a search term")
			}
			if pages < 0 {
				return fmt.Errorf("pages must not be negative, got %d", pages)
			}
			selected, err := parsePlatforms(platforms)
			if err != nil {
				return err
			}

			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return search(cmd.Context(), cfg, compare.Request{Query: query, Platforms: selected, MaxPages: pages},
				cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 0, "page cap per platform (0 fetches every page)")
	cmd.Flags().StringSliceVar(&platforms, "platforms", []string{"amazon", "daraz"}, "platforms to search")
	return cmd
}

func parsePlatforms(names []string) ([]models.Platform, error) {
	var out []models.Platform
	for _, name := range names {
		p, ok := models.ParsePlatform(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("platform %q not supported. Available: amazon, daraz", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// app holds the components shared by both commands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	cache   *cache.Cache
	metrics *metrics.Metrics
	runner  *compare.Runner
}

func newApp(cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	productCache, err := cache.New(cfg.CacheDBPath, cfg.CacheTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	if n, err := productCache.Prune(); err != nil {
		log.Warn("cache prune failed", zap.Error(err))
	} else if n > 0 {
		log.Info("pruned expired cache entries", zap.Int64("removed", n))
	}
	log.Info("cache initialized", zap.String("path", cfg.CacheDBPath), zap.Duration("ttl", cfg.CacheTTL()))

	m := metrics.New()
	runner := compare.NewRunner(newSearchers(cfg, m, log), cfg.MaxConcurrentScrapes)
	runner.Store = productCache
	runner.CacheObserver = m
	runner.Logger = log

	return &app{cfg: cfg, log: log, cache: productCache, metrics: m, runner: runner}, nil
}

func (a *app) Close() {
	a.cache.Close()
	a.log.Sync()
}

// newSearchers builds one scraper per platform from the configuration. Both
// share the metrics observer; each gets its own upstream limiter.
func newSearchers(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) map[models.Platform]compare.Searcher {
	az := amazon.NewScraper(cfg.AmazonDomain)
	if cfg.AmazonHeadless {
		az.Fetcher = fetch.NewChrome(cfg.AmazonTimeout)
	} else {
		az.Fetcher = fetch.NewColly(cfg.AmazonTimeout, hostnames(az.BaseURL)...)
	}
	az.Pacer = throttle.Pacer{
		Delay:   throttle.UniformDelay(cfg.AmazonMinDelay, cfg.AmazonMaxDelay),
		Limiter: throttle.PerMinute(cfg.UpstreamPerMinute),
	}
	az.Observer = m
	az.Logger = log.Named("amazon")

	dz := daraz.NewScraper(cfg.DarazDomain)
	dz.Fetcher = fetch.NewColly(cfg.DarazTimeout, hostnames(dz.BaseURL)...)
	dz.Pacer = throttle.Pacer{
		Delay:   throttle.UniformDelay(cfg.DarazMinDelay, cfg.DarazMaxDelay),
		Limiter: throttle.PerMinute(cfg.UpstreamPerMinute),
	}
	dz.Observer = m
	dz.Logger = log.Named("daraz")

	return map[models.Platform]compare.Searcher{
		models.PlatformAmazon: az,
		models.PlatformDaraz:  dz,
	}
}

func hostnames(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}

func newLedger(ctx context.Context, cfg *config.Config, log *zap.Logger) (progress.Ledger, func(), error) {
	if cfg.RedisAddr == "" {
		ledger := progress.NewMemoryLedger()
		sweepCtx, cancel := context.WithCancel(ctx)
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					if n := ledger.Sweep(); n > 0 {
						log.Debug("swept expired progress sessions", zap.Int("removed", n))
					}
				}
			}
		}()
		log.Info("progress ledger in memory")
		return ledger, cancel, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Info("progress ledger in redis", zap.String("addr", cfg.RedisAddr))
	return progress.NewRedisLedger(client), func() { client.Close() }, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ledger, closeLedger, err := newLedger(ctx, cfg, a.log)
	if err != nil {
		return err
	}
	defer closeLedger()

	srv := &api.Server{
		Runner:   a.runner,
		Ledger:   ledger,
		Metrics:  a.metrics,
		Logger:   a.log.Named("api"),
		Grace:    cfg.ProgressGrace(),
		PKRToUSD: cfg.PKRToUSDRate,
		SpecDir:  "./",
	}

	port := cfg.ServerPort
	ip := GetOutboundIP()
	if ip != nil {
		fmt.Printf("Local Network URL: http://%s:%s\n", ip.String(), port)
	} else {
		fmt.Println("Could not determine local IP address.")
	}
	fmt.Printf("Access URL: http://localhost:%s\n", port)
	fmt.Printf("API Docs: http://localhost:%s/\n", port)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("http shutdown", zap.Error(err))
		}
	}
	srv.Wait()
	return nil
}

func search(ctx context.Context, cfg *config.Config, req compare.Request, out, status io.Writer) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.runner.Run(ctx, req, func(p models.Platform) compare.Reporter {
		return &consoleReporter{w: status, platform: p}
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"query":           res.Query,
		"results":         res.ByPlatform(),
		"total_products":  res.Total(),
		"platform_counts": res.Counts(),
		"timestamp":       time.Now().UTC(),
	})
}

// consoleReporter prints search progress for the search command.
type consoleReporter struct {
	w        io.Writer
	platform models.Platform
}

func (r *consoleReporter) Progress(context.Context) func(page, total, count int) {
	return func(page, total, count int) {
		if total == pagination.NoPageCap {
			fmt.Fprintf(r.w, "[%s] page %d: %d products so far\n", r.platform, page, count)
			return
		}
		fmt.Fprintf(r.w, "[%s] page %d/%d: %d products so far\n", r.platform, page, total, count)
	}
}

func (r *consoleReporter) Complete(_ context.Context, _ int, message string) {
	fmt.Fprintf(r.w, "[%s] %s\n", r.platform, message)
}

func (r *consoleReporter) Fail(_ context.Context, _ int, err error) {
	fmt.Fprintf(r.w, "[%s] error: %v\n", r.platform, err)
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}
