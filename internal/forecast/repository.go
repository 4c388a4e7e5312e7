package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/pkg/database"
)

// Repository 스냅샷 아카이브 + active belief 저장소 (PostgreSQL)
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository 새 저장소 생성
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.ForecastStore = (*Repository)(nil)

const beliefColumns = `
	id, vendor_id, vendor_code, sku, sku_description, brand, collection, category_group,
	target_year, target_month, order_type, forecast_value, quantity,
	match_status, matched_order_ref, matched_at, actual_quantity, actual_value,
	quantity_variance, value_variance, variance_pct, last_snapshot_date,
	comment, commented_by, status_note, status_by, updated_at`

const snapshotColumns = `
	id, vendor_id, vendor_code, sku, sku_description, brand, product_class, collection,
	target_year, target_month, order_type, forecast_value, quantity,
	captured_at, category_group, imported_by, created_at`

// ReplaceCohort cohort 교체 (삭제 → 삽입을 한 트랜잭션으로)
func (r *Repository) ReplaceCohort(ctx context.Context, w contracts.CohortWrite) (contracts.CohortCounts, error) {
	var pre contracts.CohortCounts

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		pre, err = countCohort(ctx, tx, w.Key, w.CapturedAt)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM merch.forecast_snapshots
			WHERE vendor_id = $1 AND target_year = $2 AND category_group = $3 AND captured_at = $4`,
			w.Key.VendorID, w.Key.TargetYear, w.Key.CategoryGroup, w.CapturedAt,
		); err != nil {
			return fmt.Errorf("delete snapshots: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM merch.active_beliefs
			WHERE vendor_id = $1 AND target_year = $2 AND category_group = $3`,
			w.Key.VendorID, w.Key.TargetYear, w.Key.CategoryGroup,
		); err != nil {
			return fmt.Errorf("delete beliefs: %w", err)
		}

		// 다른 카테고리 그룹으로 옮겨 온 품목: 같은 키의 기존 행 교체
		if err := deleteIncomingKeys(ctx, tx, w); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, s := range w.Snapshots {
			batch.Queue(`
				INSERT INTO merch.forecast_snapshots
					(vendor_id, vendor_code, sku, sku_description, brand, product_class, collection,
					 target_year, target_month, order_type, forecast_value, quantity,
					 captured_at, category_group, imported_by)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
				s.VendorID, s.VendorCode, s.SKU, s.SKUDescription, s.Brand, s.ProductClass, s.Collection,
				s.TargetYear, s.TargetMonth, string(s.OrderType), s.ForecastValue, s.Quantity,
				s.CapturedAt, s.CategoryGroup, s.ImportedBy,
			)
		}
		for _, b := range w.Beliefs {
			batch.Queue(`
				INSERT INTO merch.active_beliefs
					(vendor_id, vendor_code, sku, sku_description, brand, collection, category_group,
					 target_year, target_month, order_type, forecast_value, quantity,
					 match_status, last_snapshot_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				b.VendorID, b.VendorCode, b.SKU, b.SKUDescription, b.Brand, b.Collection, b.CategoryGroup,
				b.TargetYear, b.TargetMonth, string(b.OrderType), b.ForecastValue, b.Quantity,
				string(b.MatchStatus), b.LastSnapshotDate,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert cohort row %d: %w", i, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return contracts.CohortCounts{}, fmt.Errorf("replace cohort vendor=%d year=%d: %w", w.Key.VendorID, w.Key.TargetYear, err)
	}

	return pre, nil
}

// deleteIncomingKeys 그룹과 무관하게 (vendor, sku, year, month) 키가 겹치는 행 삭제
// 스냅샷은 같은 captured_at만 대상
func deleteIncomingKeys(ctx context.Context, tx pgx.Tx, w contracts.CohortWrite) error {
	if len(w.Beliefs) > 0 {
		skus := make([]string, len(w.Beliefs))
		months := make([]int32, len(w.Beliefs))
		for i, b := range w.Beliefs {
			skus[i] = b.SKU
			months[i] = int32(b.TargetMonth)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM merch.active_beliefs b
			USING unnest($3::text[], $4::int[]) AS k(sku, target_month)
			WHERE b.vendor_id = $1 AND b.target_year = $2
			  AND b.sku = k.sku AND b.target_month = k.target_month`,
			w.Key.VendorID, w.Key.TargetYear, skus, months,
		); err != nil {
			return fmt.Errorf("delete moved beliefs: %w", err)
		}
	}

	if len(w.Snapshots) > 0 {
		skus := make([]string, len(w.Snapshots))
		months := make([]int32, len(w.Snapshots))
		for i, s := range w.Snapshots {
			skus[i] = s.SKU
			months[i] = int32(s.TargetMonth)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM merch.forecast_snapshots f
			USING unnest($4::text[], $5::int[]) AS k(sku, target_month)
			WHERE f.vendor_id = $1 AND f.target_year = $2 AND f.captured_at = $3
			  AND f.sku = k.sku AND f.target_month = k.target_month`,
			w.Key.VendorID, w.Key.TargetYear, w.CapturedAt, skus, months,
		); err != nil {
			return fmt.Errorf("delete moved snapshots: %w", err)
		}
	}
	return nil
}

// CountCohort cohort 행 수 (스냅샷은 capturedAt 기준)
func (r *Repository) CountCohort(ctx context.Context, key contracts.CohortKey, capturedAt time.Time) (contracts.CohortCounts, error) {
	return countCohort(ctx, r.pool, key, capturedAt)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countCohort(ctx context.Context, q queryer, key contracts.CohortKey, capturedAt time.Time) (contracts.CohortCounts, error) {
	var c contracts.CohortCounts
	err := q.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM merch.active_beliefs
			 WHERE vendor_id = $1 AND target_year = $2 AND category_group = $3),
			(SELECT COUNT(*) FROM merch.forecast_snapshots
			 WHERE vendor_id = $1 AND target_year = $2 AND category_group = $3 AND captured_at = $4)`,
		key.VendorID, key.TargetYear, key.CategoryGroup, capturedAt,
	).Scan(&c.Beliefs, &c.Snapshots)
	if err != nil {
		return c, fmt.Errorf("count cohort: %w", err)
	}
	return c, nil
}

// ListBeliefs 필터 조회 (0/빈 값 필드는 조건 제외)
func (r *Repository) ListBeliefs(ctx context.Context, f contracts.BeliefFilter) ([]contracts.ActiveBelief, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Year > 0 {
		add("target_year = $%d", f.Year)
	}
	if f.VendorID != nil {
		add("vendor_id = $%d", *f.VendorID)
	}
	if f.Month > 0 {
		add("target_month = $%d", f.Month)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("match_status = ANY($%d)", statuses)
	}
	if f.OrderType != "" {
		add("order_type = $%d", string(f.OrderType))
	}
	if f.Brand != "" {
		add("brand = $%d", f.Brand)
	}

	query := "SELECT " + beliefColumns + " FROM merch.active_beliefs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY target_year, target_month, vendor_id, sku"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query beliefs: %w", err)
	}
	defer rows.Close()

	var beliefs []contracts.ActiveBelief
	for rows.Next() {
		b, err := scanBelief(rows)
		if err != nil {
			return nil, err
		}
		beliefs = append(beliefs, *b)
	}
	return beliefs, rows.Err()
}

// GetBelief 단건 조회
func (r *Repository) GetBelief(ctx context.Context, id int64) (*contracts.ActiveBelief, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+beliefColumns+" FROM merch.active_beliefs WHERE id = $1", id)
	b, err := scanBelief(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("belief %d: %w", id, contracts.ErrNotFound)
	}
	return b, err
}

// SaveBelief 가변 필드 갱신
func (r *Repository) SaveBelief(ctx context.Context, b *contracts.ActiveBelief) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE merch.active_beliefs SET
			order_type = $2,
			match_status = $3,
			matched_order_ref = $4,
			matched_at = $5,
			actual_quantity = $6,
			actual_value = $7,
			quantity_variance = $8,
			value_variance = $9,
			variance_pct = $10,
			comment = $11,
			commented_by = $12,
			status_note = $13,
			status_by = $14,
			updated_at = $15
		WHERE id = $1`,
		b.ID, string(b.OrderType), string(b.MatchStatus),
		b.MatchedOrderRef, b.MatchedAt, b.ActualQuantity, b.ActualValue,
		b.QuantityVariance, b.ValueVariance, b.VariancePct,
		b.Comment, b.CommentedBy, b.StatusNote, b.StatusBy, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update belief %d: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("belief %d: %w", b.ID, contracts.ErrNotFound)
	}
	return nil
}

// ListSnapshots 스냅샷 조회 (캡처 일자 오름차순)
func (r *Repository) ListSnapshots(ctx context.Context, f contracts.SnapshotFilter) ([]contracts.ForecastSnapshot, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Year > 0 {
		add("target_year = $%d", f.Year)
	}
	if f.Month > 0 {
		add("target_month = $%d", f.Month)
	}
	if f.VendorID != nil {
		add("vendor_id = $%d", *f.VendorID)
	}
	if f.SKU != "" {
		add("sku = $%d", f.SKU)
	}
	if f.OrderType != "" {
		add("order_type = $%d", string(f.OrderType))
	}

	query := "SELECT " + snapshotColumns + " FROM merch.forecast_snapshots"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY captured_at, vendor_id, sku"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []contracts.ForecastSnapshot
	for rows.Next() {
		var (
			s         contracts.ForecastSnapshot
			orderType string
		)
		if err := rows.Scan(
			&s.ID, &s.VendorID, &s.VendorCode, &s.SKU, &s.SKUDescription, &s.Brand, &s.ProductClass, &s.Collection,
			&s.TargetYear, &s.TargetMonth, &orderType, &s.ForecastValue, &s.Quantity,
			&s.CapturedAt, &s.CategoryGroup, &s.ImportedBy, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.OrderType = contracts.OrderType(orderType)
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func scanBelief(row pgx.Row) (*contracts.ActiveBelief, error) {
	var (
		b                 contracts.ActiveBelief
		orderType, status string
	)
	err := row.Scan(
		&b.ID, &b.VendorID, &b.VendorCode, &b.SKU, &b.SKUDescription, &b.Brand, &b.Collection, &b.CategoryGroup,
		&b.TargetYear, &b.TargetMonth, &orderType, &b.ForecastValue, &b.Quantity,
		&status, &b.MatchedOrderRef, &b.MatchedAt, &b.ActualQuantity, &b.ActualValue,
		&b.QuantityVariance, &b.ValueVariance, &b.VariancePct, &b.LastSnapshotDate,
		&b.Comment, &b.CommentedBy, &b.StatusNote, &b.StatusBy, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan belief: %w", err)
	}
	b.OrderType = contracts.OrderType(orderType)
	b.MatchStatus = contracts.MatchStatus(status)
	return &b, nil
}
