package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// ListingScraper walks paginated listing pages and extracts product summaries.
type ListingScraper struct {
	session   *Session
	selectors config.Selectors
	pacer     *Pacer
	metrics   *Metrics
	logger    *slog.Logger

	pages int
}

// NewListingScraper returns a paginator using the given selectors.
func NewListingScraper(session *Session, selectors config.Selectors, pacer *Pacer, metrics *Metrics, logger *slog.Logger) *ListingScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingScraper{
		session:   session,
		selectors: selectors,
		pacer:     pacer,
		metrics:   metrics,
		logger:    logger,
	}
}

// PagesVisited returns the number of listing pages fetched by the last Scrape.
func (l *ListingScraper) PagesVisited() int {
	return l.pages
}

// Scrape follows "next page" links from startURL for at most maxPages pages.
// A failing page stops pagination; the records gathered so far are returned
// together with the error. A failing container is skipped.
func (l *ListingScraper) Scrape(ctx context.Context, startURL string, maxPages int) ([]*models.ProductRecord, error) {
	var records []*models.ProductRecord
	current := startURL
	l.pages = 0

	l.logger.Info("starting product listing scraping", slog.String("url", startURL))

	for current != "" && l.pages < maxPages {
		l.pages++
		l.logger.Info("scraping listing page", slog.Int("page", l.pages), slog.String("url", current))

		next, pageRecords, err := l.scrapePage(ctx, current)
		records = append(records, pageRecords...)
		if err != nil {
			l.logger.Error("stopping pagination",
				slog.String("url", current),
				slog.String("category", ErrorTypeLabel(err)),
				slog.Any("error", err),
			)
			return records, err
		}

		if next == "" {
			l.logger.Info("no next page link found, reached the last page")
			break
		}
		if l.pages >= maxPages {
			break
		}
		if err := l.pacer.Wait(ctx); err != nil {
			return records, err
		}
		current = next
	}

	l.logger.Info("completed listing scraping",
		slog.Int("products", len(records)),
		slog.Int("pages", l.pages),
	)
	return records, nil
}

func (l *ListingScraper) scrapePage(ctx context.Context, pageURL string) (string, []*models.ProductRecord, error) {
	page, err := l.session.Get(ctx, StageListing, pageURL)
	if err != nil {
		return "", nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return "", nil, err
	}

	containers := doc.Find(l.selectors.ProductContainer)
	l.logger.Info("found products on page", slog.Int("count", containers.Length()))

	records := make([]*models.ProductRecord, 0, containers.Length())
	containers.Each(func(i int, container *goquery.Selection) {
		record, err := ExtractProduct(container, l.selectors, page.URL)
		if err != nil {
			l.metrics.IncError(ErrorTypeLabel(err))
			l.logger.Error("error extracting product data", slog.Int("index", i), slog.Any("error", err))
			return
		}
		l.metrics.IncProducts()
		records = append(records, record)
	})

	next, ok := nextPageURL(doc, l.selectors.NextPage)
	if !ok {
		return "", records, nil
	}
	resolved, err := page.Resolve(next)
	if err != nil {
		return "", records, err
	}
	return resolved, records, nil
}

func nextPageURL(doc *goquery.Document, selector string) (string, bool) {
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	return href, true
}

// ExtractProduct builds a record from one listing container. Missing fields
// take their documented defaults: "Unknown Product" for the name, "0,00 €"
// (normalized to "0.00") for the carton price and nil for the rest.
func ExtractProduct(container *goquery.Selection, selectors config.Selectors, pageURL string) (*models.ProductRecord, error) {
	record := &models.ProductRecord{Name: models.UnknownProductName}

	name, href, ok := extractTitle(container, selectors.TitleLink)
	if ok {
		if name != "" {
			record.Name = name
		}
		if href != "" {
			detail, err := resolveAgainst(pageURL, href)
			if err != nil {
				return nil, fmt.Errorf("detail link of %q: %w", name, err)
			}
			record.DetailURL = &detail
		}
	}

	price, ok := extractText(container, selectors.Price)
	if !ok {
		price = models.MissingPrice
	}
	record.PricePerCarton = parser.NormalizePrice(price)

	desc, _ := extractText(container, selectors.ShortDescription)
	if unit, ok := parser.ParsePricePerUnit(desc); ok {
		record.PricePerUnit = &unit
	}
	if units, packaging, ok := parser.ParsePackaging(desc); ok {
		record.UnitsPerCarton = &units
		record.PackagingType = &packaging
	}

	return record, nil
}

func extractTitle(container *goquery.Selection, selector string) (name, href string, ok bool) {
	link := container.Find(selector).First()
	if link.Length() == 0 {
		return "", "", false
	}
	href, _ = link.Attr("href")
	return strings.TrimSpace(link.Text()), strings.TrimSpace(href), true
}

func extractText(container *goquery.Selection, selector string) (string, bool) {
	el := container.Find(selector).First()
	if el.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(el.Text()), true
}
