package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"golang.org/x/time/rate"
)

// RecordTranslator translates one record into a new one.
type RecordTranslator interface {
	Translate(ctx context.Context, rec *models.ProductRecord) (*models.ProductRecord, error)
}

// TranslateOptions tunes the translation stage.
type TranslateOptions struct {
	Workers  int
	Interval time.Duration
	Metrics  *scraper.Metrics
	Logger   *slog.Logger
}

const (
	defaultTranslateWorkers = 4

	outcomeTranslated = "translated"
	outcomeFallback   = "fallback"
)

// TranslateAll translates every record with a fixed pool of workers and
// returns a slice of the same length and order. Requests to the service start
// at most once per Interval. A record whose translation fails for any reason
// keeps its original value at its position; the second return value counts
// those fallbacks.
func TranslateAll(ctx context.Context, records []*models.ProductRecord, translator RecordTranslator, opts TranslateOptions) ([]*models.ProductRecord, int) {
	results := make([]*models.ProductRecord, len(records))
	if len(records) == 0 {
		return results, 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultTranslateWorkers
	}
	if workers > len(records) {
		workers = len(records)
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	logger.Info("translating products", slog.Int("count", len(records)), slog.Int("workers", workers))

	var fallbacks atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				translated, err := translateOne(ctx, limiter, translator, records[i])
				if err != nil {
					results[i] = records[i]
					fallbacks.Add(1)
					opts.Metrics.IncTranslation(outcomeFallback)
					logger.Error("error translating product, keeping original",
						slog.Int("index", i),
						slog.Any("error", err),
					)
					continue
				}
				results[i] = translated
				opts.Metrics.IncTranslation(outcomeTranslated)
			}
		}()
	}

	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	logger.Info("translation finished",
		slog.Int("count", len(records)),
		slog.Int64("fallbacks", fallbacks.Load()),
	)
	return results, int(fallbacks.Load())
}

func translateOne(ctx context.Context, limiter *rate.Limiter, translator RecordTranslator, rec *models.ProductRecord) (*models.ProductRecord, error) {
	if rec == nil {
		return nil, errNilRecord
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return translator.Translate(ctx, rec)
}
