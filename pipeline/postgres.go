package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createProductsTable = `
CREATE TABLE IF NOT EXISTS products (
	id               BIGSERIAL PRIMARY KEY,
	run_id           TEXT NOT NULL,
	name             TEXT NOT NULL,
	price_per_unit   TEXT,
	price_per_carton TEXT NOT NULL,
	units_per_carton TEXT,
	packaging_type   TEXT,
	detail_url       TEXT,
	barcode          TEXT,
	scraped_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

var productColumns = []string{
	"run_id",
	"name",
	"price_per_unit",
	"price_per_carton",
	"units_per_carton",
	"packaging_type",
	"detail_url",
	"barcode",
}

// PostgresWriter copies records into the products table, tagging every row
// with the run id.
type PostgresWriter struct {
	pool    *pgxpool.Pool
	runID   string
	timeout time.Duration

	mu sync.Mutex
}

// NewPostgresWriter connects to databaseURL and creates the products table
// if it is missing.
func NewPostgresWriter(ctx context.Context, databaseURL, runID string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createProductsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}
	return &PostgresWriter{pool: pool, runID: runID, timeout: 30 * time.Second}, nil
}

// Write copies the records in a single COPY.
func (pw *PostgresWriter) Write(records []*models.ProductRecord) error {
	rows := productRows(pw.runID, records)
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), pw.timeout)
	defer cancel()

	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, err := pw.pool.CopyFrom(ctx, pgx.Identifier{"products"}, productColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy products: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	pw.pool.Close()
	return nil
}

// Validate checks that this run stored at least one row.
func (pw *PostgresWriter) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), pw.timeout)
	defer cancel()

	var count int64
	if err := pw.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE run_id = $1`, pw.runID).Scan(&count); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count == 0 {
		return errors.New("no products stored for run " + pw.runID)
	}
	return nil
}

// productRows converts records to COPY rows in productColumns order. Absent
// values stay nil so they are stored as NULL.
func productRows(runID string, records []*models.ProductRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		rows = append(rows, []any{
			runID,
			r.Name,
			r.PricePerUnit,
			r.PricePerCarton,
			r.UnitsPerCarton,
			r.PackagingType,
			r.DetailURL,
			r.Barcode,
		})
	}
	return rows
}
