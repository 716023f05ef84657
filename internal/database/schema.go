package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the upsert targets and the sync history. Every statement
// is idempotent so Migrate can run on every deploy.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id               BIGSERIAL PRIMARY KEY,
		vendlive_id      TEXT NOT NULL UNIQUE,
		sale_id          TEXT,
		machine_id       TEXT,
		machine_name     TEXT,
		venue_id         TEXT,
		venue_name       TEXT,
		product_name     TEXT NOT NULL,
		product_category TEXT NOT NULL,
		is_placeholder   BOOLEAN NOT NULL DEFAULT FALSE,
		quantity         INTEGER NOT NULL DEFAULT 1,
		price_ht         NUMERIC NOT NULL DEFAULT 0,
		price_ttc        NUMERIC NOT NULL DEFAULT 0,
		discount_amount  NUMERIC NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		is_refunded      BOOLEAN NOT NULL DEFAULT FALSE,
		promo_code       TEXT,
		customer_email   TEXT,
		created_at       TIMESTAMPTZ NOT NULL,
		raw_data         JSONB,
		synced_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_venue_created_at ON orders (venue_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_sale_id ON orders (sale_id)`,

	`CREATE TABLE IF NOT EXISTS sales (
		id             BIGSERIAL PRIMARY KEY,
		vendlive_id    TEXT NOT NULL UNIQUE,
		machine_id     TEXT,
		machine_name   TEXT,
		venue_id       TEXT,
		venue_name     TEXT,
		total_ttc      NUMERIC NOT NULL DEFAULT 0,
		total_ht       NUMERIC NOT NULL DEFAULT 0,
		discount_total NUMERIC NOT NULL DEFAULT 0,
		product_count  INTEGER NOT NULL DEFAULT 0,
		products       JSONB NOT NULL DEFAULT '[]'::jsonb,
		categories     JSONB NOT NULL DEFAULT '[]'::jsonb,
		status         TEXT NOT NULL,
		has_refund     BOOLEAN NOT NULL DEFAULT FALSE,
		promo_code     TEXT,
		customer_email TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		synced_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_venue_created_at ON sales (venue_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS sync_runs (
		id              UUID PRIMARY KEY,
		mode            TEXT NOT NULL,
		status          TEXT NOT NULL,
		start_date      TEXT NOT NULL DEFAULT '',
		end_date        TEXT NOT NULL DEFAULT '',
		pages           INTEGER NOT NULL DEFAULT 0,
		sales_seen      INTEGER NOT NULL DEFAULT 0,
		line_items      INTEGER NOT NULL DEFAULT 0,
		order_summaries INTEGER NOT NULL DEFAULT 0,
		skipped         INTEGER NOT NULL DEFAULT 0,
		error           TEXT,
		started_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs (started_at DESC)`,
}

// Migrate creates the tables and indexes
func Migrate(ctx context.Context, p *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
