package vendors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// Repository 벤더 참조 테이블
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository 새 저장소 생성
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.VendorDirectory = (*Repository)(nil)

// ListVendors 전체 벤더 (ID 오름차순)
func (r *Repository) ListVendors(ctx context.Context) ([]contracts.Vendor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name FROM merch.vendors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query vendors: %w", err)
	}
	defer rows.Close()

	var vendors []contracts.Vendor
	for rows.Next() {
		var v contracts.Vendor
		if err := rows.Scan(&v.ID, &v.Code, &v.Name); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// GetVendor 단건 조회
func (r *Repository) GetVendor(ctx context.Context, id int64) (*contracts.Vendor, error) {
	var v contracts.Vendor
	err := r.pool.QueryRow(ctx, `SELECT id, code, name FROM merch.vendors WHERE id = $1`, id).
		Scan(&v.ID, &v.Code, &v.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("vendor %d: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query vendor %d: %w", id, err)
	}
	return &v, nil
}

// CreateVendor 검토 완료 흐름에서만 호출되는 벤더 생성
func (r *Repository) CreateVendor(ctx context.Context, code, name string) (*contracts.Vendor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("vendor name is required")
	}

	v := contracts.Vendor{Code: strings.TrimSpace(code), Name: name}
	if err := r.pool.QueryRow(ctx,
		`INSERT INTO merch.vendors (code, name) VALUES ($1, $2) RETURNING id`,
		v.Code, v.Name,
	).Scan(&v.ID); err != nil {
		return nil, fmt.Errorf("insert vendor: %w", err)
	}
	return &v, nil
}
