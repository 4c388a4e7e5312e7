package forecast

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements merch 스키마 DDL (멱등)
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS merch`,

	`CREATE TABLE IF NOT EXISTS merch.vendors (
		id         BIGSERIAL PRIMARY KEY,
		code       TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS merch.forecast_snapshots (
		id              BIGSERIAL PRIMARY KEY,
		vendor_id       BIGINT NOT NULL REFERENCES merch.vendors(id),
		vendor_code     TEXT NOT NULL DEFAULT '',
		sku             TEXT NOT NULL,
		sku_description TEXT NOT NULL DEFAULT '',
		brand           TEXT NOT NULL DEFAULT '',
		product_class   TEXT NOT NULL DEFAULT '',
		collection      TEXT NOT NULL DEFAULT '',
		target_year     INT NOT NULL,
		target_month    INT NOT NULL CHECK (target_month BETWEEN 1 AND 12),
		order_type      TEXT NOT NULL,
		forecast_value  BIGINT NOT NULL,
		quantity        BIGINT NOT NULL DEFAULT 0,
		captured_at     DATE NOT NULL,
		category_group  TEXT NOT NULL DEFAULT '',
		imported_by     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (vendor_id, sku, target_year, target_month, captured_at)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_forecast_snapshots_target
		ON merch.forecast_snapshots (target_year, target_month, captured_at)`,

	`CREATE TABLE IF NOT EXISTS merch.active_beliefs (
		id                 BIGSERIAL PRIMARY KEY,
		vendor_id          BIGINT NOT NULL REFERENCES merch.vendors(id),
		vendor_code        TEXT NOT NULL DEFAULT '',
		sku                TEXT NOT NULL,
		sku_description    TEXT NOT NULL DEFAULT '',
		brand              TEXT NOT NULL DEFAULT '',
		collection         TEXT NOT NULL DEFAULT '',
		category_group     TEXT NOT NULL DEFAULT '',
		target_year        INT NOT NULL,
		target_month       INT NOT NULL CHECK (target_month BETWEEN 1 AND 12),
		order_type         TEXT NOT NULL,
		forecast_value     BIGINT NOT NULL,
		quantity           BIGINT NOT NULL DEFAULT 0,
		match_status       TEXT NOT NULL DEFAULT 'unmatched',
		matched_order_ref  VARCHAR(255),
		matched_at         TIMESTAMPTZ,
		actual_quantity    BIGINT,
		actual_value       BIGINT,
		quantity_variance  BIGINT,
		value_variance     BIGINT,
		variance_pct       INT,
		last_snapshot_date DATE NOT NULL,
		comment            TEXT,
		commented_by       TEXT,
		status_note        TEXT,
		status_by          TEXT,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (vendor_id, sku, target_year, target_month),
		CHECK (match_status NOT IN ('matched', 'partial') OR matched_order_ref IS NOT NULL)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_active_beliefs_status
		ON merch.active_beliefs (target_year, match_status)`,

	`CREATE TABLE IF NOT EXISTS merch.purchase_order_lines (
		id          BIGSERIAL PRIMARY KEY,
		vendor_id   BIGINT NOT NULL REFERENCES merch.vendors(id),
		po_number   TEXT NOT NULL,
		sku         TEXT NOT NULL DEFAULT '',
		collection  TEXT NOT NULL DEFAULT '',
		ship_date   DATE NOT NULL,
		quantity    BIGINT NOT NULL DEFAULT 0,
		value_minor BIGINT NOT NULL DEFAULT 0,
		order_type  TEXT NOT NULL DEFAULT 'standard',
		line_kind   TEXT NOT NULL DEFAULT 'regular'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_purchase_order_lines_ship
		ON merch.purchase_order_lines (vendor_id, ship_date)`,
}

// Migrate merch 스키마 생성
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
