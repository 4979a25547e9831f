// Command reviewrank runs the review aggregation pipeline: it scrapes
// opinion sources for a product, analyzes the corpus, and stores a 0-100
// rating.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shopii/reviewrank/internal/analyzer"
	"github.com/shopii/reviewrank/internal/config"
	"github.com/shopii/reviewrank/internal/fetch"
	"github.com/shopii/reviewrank/internal/fingerprint"
	"github.com/shopii/reviewrank/internal/metrics"
	"github.com/shopii/reviewrank/internal/pipeline"
	"github.com/shopii/reviewrank/internal/rating"
	"github.com/shopii/reviewrank/internal/report"
	"github.com/shopii/reviewrank/internal/source"
	"github.com/shopii/reviewrank/internal/storage"
	"github.com/shopii/reviewrank/internal/storage/postgres"
	"github.com/shopii/reviewrank/internal/storage/sqlite"
	"github.com/shopii/reviewrank/pkg/proxy"
	"github.com/shopii/reviewrank/pkg/ratelimit"
)

var version = "dev"

var (
	cfgFile string
	debug   bool
	jsonOut bool

	rootCmd = &cobra.Command{
		Use:   "reviewrank",
		Short: "Review aggregation and rating engine",
		Long:  "Scrapes reviews from editorial sites, forums, Reddit and YouTube, analyzes them, and computes per-product ratings.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit run reports as JSON")

	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(refreshCommand())
	rootCmd.AddCommand(scrapeURLCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("reviewrank %s\n", version)
		},
	})
}

func runCommand() *cobra.Command {
	var productID, productName, category string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for one product",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.orchestrator.RunWithRetry(cmd.Context(), productID, productName, category)
			if writeErr := writeReport(productName, result); writeErr != nil {
				app.logger.Warn("report output failed", "err", writeErr)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&productID, "product-id", "", "product identifier")
	cmd.Flags().StringVar(&productName, "product-name", "", "product name used as the search query")
	cmd.Flags().StringVar(&category, "category", "", "product category for adapter selection")
	_ = cmd.MarkFlagRequired("product-id")
	_ = cmd.MarkFlagRequired("product-name")

	return cmd
}

func scrapeURLCommand() *cobra.Command {
	var productID, pageURL string

	cmd := &cobra.Command{
		Use:   "scrape-url",
		Short: "Scrape one review page and attach it to a product",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			item, err := app.orchestrator.ScrapeURL(cmd.Context(), productID, pageURL)
			if err != nil {
				return err
			}

			fmt.Printf("scraped %s (%s, %d chars)\n", item.SourceURL, item.SourceType, len(item.Content))
			return nil
		},
	}

	cmd.Flags().StringVar(&productID, "product-id", "", "product identifier")
	cmd.Flags().StringVar(&pageURL, "url", "", "review page url")
	_ = cmd.MarkFlagRequired("product-id")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-run the pipeline for products with stale or missing ratings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			cutoff := time.Now().UTC().Add(-app.config.Pipeline.Freshness.Std())
			stale, err := app.backend.StaleProducts(cmd.Context(), cutoff, app.config.Pipeline.RefreshLimit)
			if err != nil {
				return fmt.Errorf("list stale products: %w", err)
			}
			if len(stale) == 0 {
				app.logger.Info("no stale products")
				return nil
			}

			app.logger.Info("refreshing stale products", "count", len(stale))

			var failures int
			for _, p := range stale {
				result, err := app.orchestrator.RunWithRetry(cmd.Context(), p.ID, p.Name, p.Category)
				if err != nil {
					failures++
					app.logger.Error("refresh failed", "product_id", p.ID, "err", err)
				}
				if writeErr := writeReport(p.Name, result); writeErr != nil {
					app.logger.Warn("report output failed", "err", writeErr)
				}
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d refreshes failed", failures, len(stale))
			}
			return nil
		},
	}
}

// app holds the wired engine and everything that needs shutdown.
type app struct {
	config       config.Config
	logger       *slog.Logger
	backend      storage.Backend
	orchestrator *pipeline.Orchestrator
	metricsSrv   *metrics.Server
}

func buildApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	backend, err := openBackend(cfg.Database)
	if err != nil {
		return nil, err
	}

	fetcher, err := buildFetcher(cfg.Scraper, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	adapters := buildAdapters(cfg, fetcher, logger)

	var completer analyzer.Completer
	if cfg.Analyzer.APIKey != "" {
		completer, err = analyzer.NewClaude(analyzer.ClaudeConfig{
			APIKey:   cfg.Analyzer.APIKey,
			Model:    cfg.Analyzer.Model,
			Endpoint: cfg.Analyzer.Endpoint,
			Timeout:  cfg.Analyzer.Timeout.Std(),
		})
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
	} else {
		logger.Warn("no analyzer api key configured, ratings will use neutral analysis")
	}

	an := analyzer.New(completer, analyzer.NewCredibilityModel(cfg.Credibility), logger)
	aggregator := rating.NewAggregator(an, completer, logger)

	orchestrator := pipeline.New(adapters, backend, aggregator, pipeline.Config{
		ItemsPerAdapter: cfg.Pipeline.ItemsPerAdapter,
		AdapterTimeout:  cfg.Pipeline.AdapterTimeout.Std(),
		RunTimeout:      cfg.Pipeline.RunTimeout.Std(),
		MaxRetries:      cfg.Pipeline.MaxRetries,
		RetryBackoff:    cfg.Pipeline.RetryBackoff.Std(),
	}, logger)

	a := &app{
		config:       cfg,
		logger:       logger,
		backend:      backend,
		orchestrator: orchestrator,
	}
	if cfg.Metrics.Enabled {
		a.metricsSrv = metrics.Start(cfg.Metrics.Port)
		logger.Info("metrics server started", "port", cfg.Metrics.Port)
	}
	return a, nil
}

func (a *app) close() {
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Stop(context.Background())
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("backend close failed", "err", err)
	}
}

func openBackend(cfg config.DatabaseConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.New(context.Background(), cfg.DSN)
	case "sqlite", "":
		return sqlite.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func buildFetcher(cfg config.ScraperConfig, logger *slog.Logger) (*fetch.Fetcher, error) {
	var proxyPool *proxy.Pool
	if cfg.ProxyFile != "" {
		proxyPool = proxy.NewPool(proxy.Config{})
		if err := proxyPool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		logger.Info("proxy pool loaded", "file", cfg.ProxyFile)
	}

	var limiter *ratelimit.Limiter
	if interval := cfg.RequestInterval.Std(); interval > 0 {
		jitter := float64(cfg.Jitter.Std()) / float64(interval)
		limiter = ratelimit.NewLimiter(1/interval.Seconds(), jitter)
	}

	return fetch.NewFetcher(fetch.Config{
		Timeout:      cfg.Timeout.Std(),
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		ProxyPool:    proxyPool,
		Fingerprint:  fingerprint.Profile(cfg.Fingerprint),
		Limiter:      limiter,
	})
}

func buildAdapters(cfg config.Config, fetcher *fetch.Fetcher, logger *slog.Logger) []source.Adapter {
	robots := fetch.NewRobotsAuditor(fetcher, logger)
	sitemaps := fetch.NewSitemapFetcher(fetcher, logger)

	var adapters []source.Adapter
	if cfg.Sources.Editorial {
		for _, profile := range []source.SiteProfile{
			source.WirecutterProfile,
			source.RTINGSProfile,
			source.TechRadarProfile,
		} {
			adapters = append(adapters, source.NewEditorial(profile, fetcher, robots, sitemaps, logger))
		}
	}
	if cfg.Sources.Forums {
		for _, profile := range []source.ForumProfile{
			source.HeadFiProfile,
			source.AVSForumProfile,
		} {
			adapters = append(adapters, source.NewForum(profile, fetcher, logger))
		}
	}
	if cfg.Sources.Reddit {
		adapters = append(adapters, source.NewReddit(fetcher, logger, ""))
	}
	if cfg.Sources.YouTube && cfg.Sources.YouTubeAPIKey != "" {
		adapters = append(adapters, source.NewYouTube(fetcher, logger, cfg.Sources.YouTubeAPIKey, ""))
	}
	return adapters
}

func writeReport(productName string, result pipeline.RunResult) error {
	summary := report.New(productName, result)
	if jsonOut {
		return summary.WriteJSON(os.Stdout)
	}
	return summary.WriteText(os.Stdout)
}
