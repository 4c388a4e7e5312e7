package contracts

import (
	"context"
	"errors"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// ErrNotFound 조회 대상 없음
var ErrNotFound = errors.New("not found")

// ForecastStore 스냅샷 아카이브 + active belief 저장소
type ForecastStore interface {
	// ReplaceCohort 한 트랜잭션에서 cohort 삭제 후 재삽입, 삭제 전 행 수 반환
	ReplaceCohort(ctx context.Context, w CohortWrite) (CohortCounts, error)
	CountCohort(ctx context.Context, key CohortKey, capturedAt time.Time) (CohortCounts, error)

	ListBeliefs(ctx context.Context, f BeliefFilter) ([]ActiveBelief, error)
	// GetBelief 없으면 ErrNotFound를 감싼 에러
	GetBelief(ctx context.Context, id int64) (*ActiveBelief, error)
	// SaveBelief 가변 필드(상태, 매칭, 코멘트, 주문 유형) 단건 갱신
	SaveBelief(ctx context.Context, b *ActiveBelief) error

	ListSnapshots(ctx context.Context, f SnapshotFilter) ([]ForecastSnapshot, error)
}

// OrderSource 실제 발주 집계 제공자
type OrderSource interface {
	Aggregates(ctx context.Context, year int, vendorID *int64) (map[OrderKey]OrderAggregate, error)
	// ReferenceTotals 특정 PO의 벤더별 합계, 없으면 ErrNotFound
	ReferenceTotals(ctx context.Context, vendorID int64, orderRef string) (*OrderAggregate, error)
	// MonthlyTotals orderType이 빈 값이면 전체
	MonthlyTotals(ctx context.Context, year int, orderType OrderType) (map[int]MonthlyOrderTotal, error)
}

// VendorDirectory 벤더 참조 테이블
type VendorDirectory interface {
	ListVendors(ctx context.Context) ([]Vendor, error)
	// GetVendor 없으면 ErrNotFound
	GetVendor(ctx context.Context, id int64) (*Vendor, error)
	CreateVendor(ctx context.Context, code, name string) (*Vendor, error)
}
