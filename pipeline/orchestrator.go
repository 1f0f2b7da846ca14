package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/llm"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/google/uuid"
)

var (
	// ErrNoLinks stops a run when the home page yields no next-level link.
	ErrNoLinks = errors.New("pipeline: no next-level links found")
	// ErrNoProducts stops a run when the listing pages yield no product.
	ErrNoProducts = errors.New("pipeline: no products extracted")

	errNilRecord = errors.New("nil record")
)

// WriterFactory opens the output sink for a run. It is called only once
// records are ready to be persisted.
type WriterFactory func(ctx context.Context, runID string) (OutputWriter, error)

// OrchestratorDeps are the collaborators of one run.
type OrchestratorDeps struct {
	Session   *scraper.Session
	Completer llm.Completer
	NewWriter WriterFactory
	Metrics   *scraper.Metrics
	Logger    *slog.Logger
}

// Orchestrator drives one harvesting run from login to persistence.
type Orchestrator struct {
	cfg    *config.Config
	deps   OrchestratorDeps
	runID  string
	logger *slog.Logger
}

// NewOrchestrator validates the dependencies and assigns a run id.
func NewOrchestrator(cfg *config.Config, deps OrchestratorDeps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if deps.Session == nil {
		return nil, errors.New("pipeline: session is required")
	}
	if deps.NewWriter == nil {
		return nil, errors.New("pipeline: writer factory is required")
	}
	if deps.Completer == nil && cfg.NeedsTextService() {
		return nil, errors.New("pipeline: text service completer is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		runID:  runID,
		logger: logger.With(slog.String("run_id", runID)),
	}, nil
}

// RunID identifies the run in logs and in the postgres sink.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes every stage in order. It always returns a result describing
// how far the run got; a non-nil error means the run halted before output
// was persisted.
func (o *Orchestrator) Run(ctx context.Context) (result *models.RunResult, err error) {
	result = &models.RunResult{
		RunID:     o.runID,
		StartTime: time.Now(),
	}
	session := o.deps.Session
	defer func() {
		result.EndTime = time.Now()
		result.RequestCount = session.RequestCount()
		result.ErrorCount = session.ErrorCount()
		result.ErrorsByType = session.ErrorsByType()
		if err != nil {
			o.logger.Error("halting run", slog.String("reason", ErrorReason(err)), slog.Any("error", err))
		}
	}()

	pacer := scraper.NewPacer(o.cfg.PageDelayMin, o.cfg.PageDelayMax, o.logger)

	resolver := scraper.NewLoginResolver(session, o.logger)
	candidates, err := resolver.FindCandidates(ctx, o.cfg.BaseURL)
	if err != nil {
		return result, fmt.Errorf("find login links: %w", err)
	}
	if _, err := resolver.Login(ctx, candidates, o.cfg.Credential); err != nil {
		return result, err
	}
	result.LoginURL = resolver.LoginURL()

	catalogURL, err := o.catalogURL(ctx, session)
	if err != nil {
		return result, err
	}
	result.CatalogURL = catalogURL

	listing := scraper.NewListingScraper(session, o.cfg.Selectors, pacer, o.deps.Metrics, o.logger)
	records, err := listing.Scrape(ctx, catalogURL, o.cfg.MaxPages)
	result.PageCount = listing.PagesVisited()
	if len(records) == 0 {
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrNoProducts, err)
		}
		return result, ErrNoProducts
	}
	if err != nil {
		o.logger.Warn("continuing with partial listing results",
			slog.Int("products", len(records)),
			slog.Any("error", err),
		)
	}

	enricher := scraper.NewDetailEnricher(session, o.cfg.Selectors.Barcode, pacer, o.deps.Metrics, o.logger)
	result.BarcodesFound = enricher.Enrich(ctx, records)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if o.cfg.SkipTranslation {
		o.logger.Info("translation skipped")
	} else {
		translator, err := llm.NewTranslator(o.deps.Completer, o.cfg.TranslationCacheSize, o.logger)
		if err != nil {
			return result, err
		}
		records, result.TranslationFallbacks = TranslateAll(ctx, records, translator, TranslateOptions{
			Workers:  o.cfg.TranslateWorkers,
			Interval: o.cfg.TranslateInterval,
			Metrics:  o.deps.Metrics,
			Logger:   o.logger,
		})
	}
	result.Products = records

	if err := o.persist(ctx, records); err != nil {
		return result, err
	}
	if o.cfg.WritesFile() {
		result.OutputFile = o.cfg.OutputFile
	}

	o.logger.Info("run complete",
		slog.Int("products", len(records)),
		slog.Int("barcodes", result.BarcodesFound),
		slog.Int("translation_fallbacks", result.TranslationFallbacks),
	)
	return result, nil
}

func (o *Orchestrator) catalogURL(ctx context.Context, session *scraper.Session) (string, error) {
	if o.cfg.CatalogURL != "" {
		o.logger.Info("using configured catalog page", slog.String("url", o.cfg.CatalogURL))
		return o.cfg.CatalogURL, nil
	}

	links, err := scraper.NewLinkDiscoverer(session, o.logger).DiscoverNextLevel(ctx, o.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoLinks, err)
	}
	if len(links) == 0 {
		return "", ErrNoLinks
	}

	return llm.NewCatalogSelector(o.deps.Completer, o.logger).Select(ctx, links)
}

func (o *Orchestrator) persist(ctx context.Context, records []*models.ProductRecord) (err error) {
	writer, err := o.deps.NewWriter(ctx, o.runID)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close writer: %w", closeErr)
		}
	}()

	if err := writer.Write(records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}
	o.logger.Info("data saved", slog.Int("records", len(records)))
	return nil
}

// ErrorReason labels why a run halted.
func ErrorReason(err error) string {
	var svcErr *llm.ServiceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, scraper.ErrAuthFailure):
		return "authentication failed"
	case errors.Is(err, ErrNoLinks):
		return "no links"
	case errors.Is(err, ErrNoProducts):
		return "no products"
	case errors.As(err, &svcErr):
		return "text service"
	default:
		return scraper.ErrorTypeLabel(err)
	}
}
