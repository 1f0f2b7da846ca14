package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one harvesting run.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ProductsExtracted prometheus.Counter
	BarcodesFound     prometheus.Counter
	TranslationsTotal *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued against the storefront.",
		},
		[]string{"stage"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for storefront requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_extracted_total",
			Help: "Total number of product containers extracted from listing pages.",
		},
	)
	barcodes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_barcodes_found_total",
			Help: "Total number of barcodes found on detail pages.",
		},
	)
	translations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_translations_total",
			Help: "Translation results by outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of harvester errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, products, barcodes, translations, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ProductsExtracted: products,
		BarcodesFound:     barcodes,
		TranslationsTotal: translations,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests counter for a pipeline stage.
func (m *Metrics) IncRequest(stage string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(stage).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncProducts increments the extracted products counter.
func (m *Metrics) IncProducts() {
	if m == nil {
		return
	}
	m.ProductsExtracted.Inc()
}

// IncBarcodes increments the barcodes counter.
func (m *Metrics) IncBarcodes() {
	if m == nil {
		return
	}
	m.BarcodesFound.Inc()
}

// IncTranslation counts a translation by outcome (translated, cached, fallback).
func (m *Metrics) IncTranslation(outcome string) {
	if m == nil {
		return
	}
	m.TranslationsTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
