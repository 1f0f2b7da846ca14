package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// DetailEnricher visits product detail pages and fills in the barcode.
type DetailEnricher struct {
	session  *Session
	selector string
	pacer    *Pacer
	metrics  *Metrics
	logger   *slog.Logger
}

// NewDetailEnricher returns an enricher reading the barcode from selector.
func NewDetailEnricher(session *Session, selector string, pacer *Pacer, metrics *Metrics, logger *slog.Logger) *DetailEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailEnricher{
		session:  session,
		selector: selector,
		pacer:    pacer,
		metrics:  metrics,
		logger:   logger,
	}
}

// Enrich fetches the detail page of every record that has one, one at a
// time, and sets Barcode in place. Every fetch is followed by a politeness
// delay whatever its outcome. It returns the number of barcodes found.
func (d *DetailEnricher) Enrich(ctx context.Context, records []*models.ProductRecord) int {
	found := 0
	for _, record := range records {
		if record == nil || record.DetailURL == nil {
			continue
		}
		if ctx.Err() != nil {
			d.logger.Warn("barcode enrichment interrupted", slog.Any("error", ctx.Err()))
			return found
		}

		logger := d.logger.With(slog.String("product", record.Name), slog.String("url", *record.DetailURL))
		logger.Info("scraping barcode")

		barcode, present, err := d.fetchBarcode(ctx, *record.DetailURL)
		switch {
		case err != nil:
			logger.Error("error scraping barcode",
				slog.String("category", ErrorTypeLabel(err)),
				slog.Any("error", err),
			)
		case !present:
			logger.Warn("barcode not found")
		case barcode == "":
			logger.Warn("barcode empty")
		default:
			record.Barcode = &barcode
			found++
			d.metrics.IncBarcodes()
			logger.Info("found barcode", slog.String("barcode", barcode))
		}

		if err := d.pacer.Wait(ctx); err != nil {
			d.logger.Warn("barcode enrichment interrupted", slog.Any("error", err))
			return found
		}
	}
	return found
}

// fetchBarcode reports whether the barcode element exists separately from
// its text, which may be blank.
func (d *DetailEnricher) fetchBarcode(ctx context.Context, detailURL string) (string, bool, error) {
	page, err := d.session.Get(ctx, StageDetail, detailURL)
	if err != nil {
		return "", false, err
	}
	doc, err := page.Document()
	if err != nil {
		return "", false, err
	}
	node := doc.Find(d.selector).First()
	if node.Length() == 0 {
		return "", false, nil
	}
	return strings.TrimSpace(node.Text()), true, nil
}
