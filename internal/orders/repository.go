package orders

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// ExcludedLineKinds 집계에서 제외하는 발주 라인 유형
var ExcludedLineKinds = []string{"sample", "swatch"}

// Repository purchase_order_lines 기반 실제 발주 집계
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository 새 저장소 생성
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.OrderSource = (*Repository)(nil)

// Aggregates (vendor, 선적월, SKU 또는 컬렉션) 단위 합계
func (r *Repository) Aggregates(ctx context.Context, year int, vendorID *int64) (map[contracts.OrderKey]contracts.OrderAggregate, error) {
	query := `
		SELECT
			vendor_id,
			EXTRACT(MONTH FROM ship_date)::int AS ship_month,
			CASE WHEN order_type = 'make-to-order' THEN collection ELSE sku END AS item_key,
			order_type,
			SUM(quantity)::bigint,
			SUM(value_minor)::bigint,
			array_agg(DISTINCT po_number ORDER BY po_number)
		FROM merch.purchase_order_lines
		WHERE ship_date >= make_date($1, 1, 1)
		  AND ship_date < make_date($1 + 1, 1, 1)
		  AND ($2::bigint IS NULL OR vendor_id = $2)
		  AND line_kind <> ALL($3)
		  AND value_minor <> 0
		GROUP BY vendor_id, ship_month, item_key, order_type`

	rows, err := r.pool.Query(ctx, query, year, vendorID, ExcludedLineKinds)
	if err != nil {
		return nil, fmt.Errorf("query order aggregates: %w", err)
	}
	defer rows.Close()

	aggs := make(map[contracts.OrderKey]contracts.OrderAggregate)
	for rows.Next() {
		var (
			agg       contracts.OrderAggregate
			orderType string
		)
		if err := rows.Scan(
			&agg.Key.VendorID, &agg.Key.Month, &agg.Key.ItemKey, &orderType,
			&agg.TotalQuantity, &agg.TotalValue, &agg.OrderRefs,
		); err != nil {
			return nil, fmt.Errorf("scan order aggregate: %w", err)
		}
		agg.Key.OrderType = contracts.OrderType(orderType)
		aggs[agg.Key] = agg
	}

	return aggs, rows.Err()
}

// ReferenceTotals 특정 PO의 벤더별 합계
func (r *Repository) ReferenceTotals(ctx context.Context, vendorID int64, orderRef string) (*contracts.OrderAggregate, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(quantity), 0)::bigint, COALESCE(SUM(value_minor), 0)::bigint
		FROM merch.purchase_order_lines
		WHERE vendor_id = $1
		  AND po_number = $2
		  AND line_kind <> ALL($3)
		  AND value_minor <> 0`

	var (
		lines int
		agg   = contracts.OrderAggregate{OrderRefs: []string{orderRef}}
	)
	if err := r.pool.QueryRow(ctx, query, vendorID, orderRef, ExcludedLineKinds).Scan(
		&lines, &agg.TotalQuantity, &agg.TotalValue,
	); err != nil {
		return nil, fmt.Errorf("query order %s: %w", orderRef, err)
	}
	if lines == 0 {
		return nil, fmt.Errorf("order %s for vendor %d: %w", orderRef, vendorID, contracts.ErrNotFound)
	}
	agg.Key.VendorID = vendorID

	return &agg, nil
}

// MonthlyTotals 월별 합계 (orderType 빈 값 = 전체)
func (r *Repository) MonthlyTotals(ctx context.Context, year int, orderType contracts.OrderType) (map[int]contracts.MonthlyOrderTotal, error) {
	query := `
		SELECT
			EXTRACT(MONTH FROM ship_date)::int AS ship_month,
			SUM(quantity)::bigint,
			SUM(value_minor)::bigint
		FROM merch.purchase_order_lines
		WHERE ship_date >= make_date($1, 1, 1)
		  AND ship_date < make_date($1 + 1, 1, 1)
		  AND ($2 = '' OR order_type = $2)
		  AND line_kind <> ALL($3)
		  AND value_minor <> 0
		GROUP BY ship_month`

	rows, err := r.pool.Query(ctx, query, year, string(orderType), ExcludedLineKinds)
	if err != nil {
		return nil, fmt.Errorf("query monthly order totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[int]contracts.MonthlyOrderTotal)
	for rows.Next() {
		var t contracts.MonthlyOrderTotal
		if err := rows.Scan(&t.Month, &t.Quantity, &t.Value); err != nil {
			return nil, fmt.Errorf("scan monthly order total: %w", err)
		}
		totals[t.Month] = t
	}

	return totals, rows.Err()
}
