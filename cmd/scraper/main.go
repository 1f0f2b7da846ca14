package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/llm"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := applyEnvDefaults(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Harvest the product catalog of an authenticated storefront",
		Long: `scraper logs into a storefront with EMAIL and PASSWORD, finds its product
catalog, walks the listing pages, reads each product's barcode from its detail
page, translates the records to English and saves them.

Secrets are read from the environment (or a .env file) only:
  EMAIL, PASSWORD, OPENAI_API_KEY`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Storefront home page")
	flags.StringVar(&cfg.CatalogURL, "catalog-url", cfg.CatalogURL, "Listing start page (skips link discovery and catalog selection)")
	flags.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum listing pages to scrape")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	flags.DurationVar(&cfg.PageDelayMin, "delay-min", cfg.PageDelayMin, "Minimum delay between sequential requests")
	flags.DurationVar(&cfg.PageDelayMax, "delay-max", cfg.PageDelayMax, "Maximum delay between sequential requests")
	flags.StringVar(&cfg.Model, "model", cfg.Model, "Chat model used for catalog selection and translation")
	flags.StringVar(&cfg.LLMBaseURL, "llm-base-url", cfg.LLMBaseURL, "OpenAI-compatible API base URL")
	flags.IntVar(&cfg.TranslateWorkers, "workers", cfg.TranslateWorkers, "Concurrent translation workers")
	flags.DurationVar(&cfg.TranslateInterval, "translate-interval", cfg.TranslateInterval, "Minimum spacing between translation requests")
	flags.IntVar(&cfg.TranslationCacheSize, "translation-cache", cfg.TranslationCacheSize, "Distinct records memoized by the translator (0 disables)")
	flags.BoolVar(&cfg.SkipTranslation, "skip-translation", cfg.SkipTranslation, "Save the records untranslated")
	flags.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output sinks, comma-separated: csv, json, postgres (dual = csv,json)")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres connection string for the postgres sink")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	return cmd
}

// applyEnvDefaults lets SCRAPER_* variables override the built-in defaults.
// Flags still take precedence.
func applyEnvDefaults(cfg *config.Config) error {
	stringVars := map[string]*string{
		"SCRAPER_BASE_URL":     &cfg.BaseURL,
		"SCRAPER_CATALOG_URL":  &cfg.CatalogURL,
		"SCRAPER_OUTPUT":       &cfg.OutputFile,
		"SCRAPER_FORMAT":       &cfg.OutputFormat,
		"SCRAPER_DATABASE_URL": &cfg.DatabaseURL,
		"SCRAPER_METRICS_ADDR": &cfg.MetricsAddr,
		"SCRAPER_MODEL":        &cfg.Model,
		"SCRAPER_LLM_BASE_URL": &cfg.LLMBaseURL,
	}
	for key, target := range stringVars {
		if value, ok := config.EnvString(key); ok {
			*target = value
		}
	}

	ints := map[string]*int{
		"SCRAPER_PAGES":   &cfg.MaxPages,
		"SCRAPER_WORKERS": &cfg.TranslateWorkers,
	}
	for key, target := range ints {
		value, ok, err := config.EnvInt(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*target = value
		}
	}

	durations := map[string]*time.Duration{
		"SCRAPER_TIMEOUT":   &cfg.Timeout,
		"SCRAPER_DELAY_MIN": &cfg.PageDelayMin,
		"SCRAPER_DELAY_MAX": &cfg.PageDelayMax,
	}
	for key, target := range durations {
		value, ok, err := config.EnvDuration(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*target = value
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.LoadCredentials()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return err
	}

	slog.Info("starting harvest",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.MaxPages),
		slog.Any("credential", cfg.Credential),
		slog.String("format", cfg.OutputFormat),
	)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current request")
	}()

	metrics := scraper.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	deps := pipeline.OrchestratorDeps{
		Session:   scraper.NewSession(cfg, metrics, logger),
		NewWriter: writerFactory(cfg),
		Metrics:   metrics,
		Logger:    logger,
	}
	if cfg.NeedsTextService() {
		deps.Completer = llm.NewOpenAIClient(cfg)
	}

	orchestrator, err := pipeline.NewOrchestrator(cfg, deps)
	if err != nil {
		slog.Error("initialising pipeline", slog.Any("error", err))
		return err
	}

	result, err := orchestrator.Run(ctx)
	printSummary(result, cfg, err)
	return err
}

// writerFactory opens one writer per configured sink. Several sinks are
// combined in a MultiWriter.
func writerFactory(cfg *config.Config) pipeline.WriterFactory {
	return func(ctx context.Context, runID string) (pipeline.OutputWriter, error) {
		sinks := cfg.Sinks()
		opened := make([]pipeline.NamedWriter, 0, len(sinks))
		closeOpened := func() {
			for _, s := range opened {
				s.Writer.Close()
			}
		}

		for _, sink := range sinks {
			writer, err := openSink(ctx, cfg, sink, runID)
			if err != nil {
				closeOpened()
				return nil, err
			}
			opened = append(opened, pipeline.NamedWriter{Name: sink, Writer: writer})
		}

		switch len(opened) {
		case 0:
			return nil, fmt.Errorf("unsupported format: %q", cfg.OutputFormat)
		case 1:
			return opened[0].Writer, nil
		default:
			return pipeline.NewMultiWriter(opened...)
		}
	}
}

func openSink(ctx context.Context, cfg *config.Config, sink, runID string) (pipeline.OutputWriter, error) {
	switch sink {
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "json":
		// Next to the CSV file when both are written.
		if hasSink(cfg, "csv") {
			return pipeline.NewJSONWriter(strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile)) + ".json")
		}
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "postgres":
		return pipeline.NewPostgresWriter(ctx, cfg.DatabaseURL, runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", sink)
	}
}

func hasSink(cfg *config.Config, name string) bool {
	for _, sink := range cfg.Sinks() {
		if sink == name {
			return true
		}
	}
	return false
}

func printSummary(result *models.RunResult, cfg *config.Config, runErr error) {
	if result == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if runErr != nil {
		fmt.Printf("Run halted: %s\n", pipeline.ErrorReason(runErr))
	} else {
		fmt.Println("Harvest complete")
	}

	fmt.Printf("  Run id:        %s\n", result.RunID)
	if result.LoginURL != "" {
		fmt.Printf("  Login page:    %s\n", result.LoginURL)
	}
	if result.CatalogURL != "" {
		fmt.Printf("  Catalog page:  %s\n", result.CatalogURL)
	}
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Products:      %d\n", len(result.Products))
	fmt.Printf("  Barcodes:      %d\n", result.BarcodesFound)
	if !cfg.SkipTranslation {
		fmt.Printf("  Untranslated:  %d\n", result.TranslationFallbacks)
	}
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	if runErr == nil {
		fmt.Printf("  Sinks:         %s\n", strings.Join(cfg.Sinks(), ", "))
		if result.OutputFile != "" {
			fmt.Printf("  Output file:   %s\n", result.OutputFile)
		}
		if hasSink(cfg, "postgres") {
			fmt.Printf("  Postgres:      table products (run_id %s)\n", result.RunID)
		}
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
