package contracts

import (
	"strings"
	"time"
)

// OrderType 주문 유형
type OrderType string

const (
	// OrderTypeStandard 일반 주문 (SKU 기준 매칭, 90일 리드타임)
	OrderTypeStandard OrderType = "standard"
	// OrderTypeMTO 주문 생산 (컬렉션 기준 매칭, 30일 리드타임)
	OrderTypeMTO OrderType = "make-to-order"
)

// Valid 유효한 주문 유형인지 확인
func (t OrderType) Valid() bool {
	return t == OrderTypeStandard || t == OrderTypeMTO
}

// ParseOrderType 문자열을 주문 유형으로 변환 ("mto" 축약 허용)
func ParseOrderType(s string) (OrderType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return OrderTypeStandard, true
	case "make-to-order", "mto":
		return OrderTypeMTO, true
	}
	return "", false
}

// MatchStatus 예측-주문 대사 상태
type MatchStatus string

const (
	MatchUnmatched         MatchStatus = "unmatched"          // 주문 없음
	MatchPartial           MatchStatus = "partial"            // 주문 수량 < 예측 수량
	MatchMatched           MatchStatus = "matched"            // 주문 수량 >= 예측 수량
	MatchExpired           MatchStatus = "expired"            // 발주 기한 경과
	MatchVerifiedUnmatched MatchStatus = "verified_unmatched" // 관리자 확인: 실제 미발주
	MatchRemoved           MatchStatus = "removed"            // 관리자 제외
)

// AllMatchStatuses 전체 상태 목록
var AllMatchStatuses = []MatchStatus{
	MatchUnmatched, MatchPartial, MatchMatched,
	MatchExpired, MatchVerifiedUnmatched, MatchRemoved,
}

// Valid 유효한 상태인지 확인
func (s MatchStatus) Valid() bool {
	for _, st := range AllMatchStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Open 매칭/만료 대상 상태 (unmatched, partial)
func (s MatchStatus) Open() bool {
	return s == MatchUnmatched || s == MatchPartial
}

// ForecastRow 상위 파서가 넘겨주는 정규화된 예측 행
// 금액 필드는 원문 문자열 그대로 전달되고 엔진이 파싱한다
type ForecastRow struct {
	VendorCode      string `json:"vendor_code"`
	VendorName      string `json:"vendor_name"`
	SKU             string `json:"sku"`
	SKUDescription  string `json:"sku_description"`
	Brand           string `json:"brand"`
	ProductClass    string `json:"product_class"`
	Collection      string `json:"collection"`
	LeadTimeMarker  string `json:"lead_time_marker"`
	CountryOfOrigin string `json:"country_of_origin"`
	UnitCost        string `json:"unit_cost"`
	TargetYear      int    `json:"target_year"`
	TargetMonth     int    `json:"target_month"`
	ForecastValue   string `json:"forecast_value"`
}

// ForecastSnapshot 불변 예측 스냅샷 (append-only)
// MTO 행은 SKU 자리에 컬렉션명이 들어간다
type ForecastSnapshot struct {
	ID             int64     `json:"id"`
	VendorID       int64     `json:"vendor_id"`
	VendorCode     string    `json:"vendor_code"`
	SKU            string    `json:"sku"`
	SKUDescription string    `json:"sku_description"`
	Brand          string    `json:"brand"`
	ProductClass   string    `json:"product_class"`
	Collection     string    `json:"collection"`
	TargetYear     int       `json:"target_year"`
	TargetMonth    int       `json:"target_month"`
	OrderType      OrderType `json:"order_type"`
	ForecastValue  int64     `json:"forecast_value"` // 최소 통화 단위
	Quantity       int64     `json:"quantity"`
	CapturedAt     time.Time `json:"captured_at"`
	CategoryGroup  string    `json:"category_group"`
	ImportedBy     string    `json:"imported_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// ActiveBelief 현재 예측 + 대사 결과 (vendor, sku, year, month 당 1행)
type ActiveBelief struct {
	ID               int64       `json:"id"`
	VendorID         int64       `json:"vendor_id"`
	VendorCode       string      `json:"vendor_code"`
	SKU              string      `json:"sku"`
	SKUDescription   string      `json:"sku_description"`
	Brand            string      `json:"brand"`
	Collection       string      `json:"collection"`
	CategoryGroup    string      `json:"category_group"`
	TargetYear       int         `json:"target_year"`
	TargetMonth      int         `json:"target_month"`
	OrderType        OrderType   `json:"order_type"`
	ForecastValue    int64       `json:"forecast_value"`
	Quantity         int64       `json:"quantity"`
	MatchStatus      MatchStatus `json:"match_status"`
	MatchedOrderRef  *string     `json:"matched_order_ref"`
	MatchedAt        *time.Time  `json:"matched_at"`
	ActualQuantity   *int64      `json:"actual_quantity"`
	ActualValue      *int64      `json:"actual_value"`
	QuantityVariance *int64      `json:"quantity_variance"`
	ValueVariance    *int64      `json:"value_variance"`
	VariancePct      *int        `json:"variance_pct"` // forecast_value > 0 일 때만 정의
	LastSnapshotDate time.Time   `json:"last_snapshot_date"`
	Comment          *string     `json:"comment"`
	CommentedBy      *string     `json:"commented_by"`
	StatusNote       *string     `json:"status_note"` // 제외 사유 / 검증 메모
	StatusBy         *string     `json:"status_by"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TargetMonthStart 대상 월의 1일 (UTC)
func (b ActiveBelief) TargetMonthStart() time.Time {
	return time.Date(b.TargetYear, time.Month(b.TargetMonth), 1, 0, 0, 0, 0, time.UTC)
}

// ClearMatch 매칭 관련 필드 초기화
func (b *ActiveBelief) ClearMatch() {
	b.MatchedOrderRef = nil
	b.MatchedAt = nil
	b.ActualQuantity = nil
	b.ActualValue = nil
	b.QuantityVariance = nil
	b.ValueVariance = nil
	b.VariancePct = nil
}

// OrderKey 주문 집계 키 (vendor, 선적월, SKU 또는 컬렉션)
type OrderKey struct {
	VendorID  int64     `json:"vendor_id"`
	Month     int       `json:"month"`
	ItemKey   string    `json:"item_key"`
	OrderType OrderType `json:"order_type"`
}

// ItemKey 매칭 키: MTO는 컬렉션, 그 외는 SKU
func (b ActiveBelief) ItemKey() string {
	if b.OrderType == OrderTypeMTO {
		if c := strings.TrimSpace(b.Collection); c != "" {
			return c
		}
	}
	return b.SKU
}

// KeyOf belief에 대응하는 주문 집계 키
func KeyOf(b ActiveBelief) OrderKey {
	return OrderKey{
		VendorID:  b.VendorID,
		Month:     b.TargetMonth,
		ItemKey:   b.ItemKey(),
		OrderType: b.OrderType,
	}
}

// OrderAggregate 실제 발주 집계 (읽기 전용 입력)
type OrderAggregate struct {
	Key           OrderKey `json:"key"`
	TotalQuantity int64    `json:"total_quantity"`
	TotalValue    int64    `json:"total_value"`
	OrderRefs     []string `json:"order_refs"`
}

// MonthlyOrderTotal 월별 실제 발주 합계
type MonthlyOrderTotal struct {
	Month    int   `json:"month"`
	Quantity int64 `json:"quantity"`
	Value    int64 `json:"value"`
}

// Vendor 벤더 참조 데이터
type Vendor struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// CohortKey 일괄 교체 단위 (vendor, 대상 연도, 카테고리 그룹)
type CohortKey struct {
	VendorID      int64  `json:"vendor_id"`
	TargetYear    int    `json:"target_year"`
	CategoryGroup string `json:"category_group"`
}

// CohortWrite 한 트랜잭션으로 기록할 cohort 데이터
type CohortWrite struct {
	Key        CohortKey
	CapturedAt time.Time
	Snapshots  []ForecastSnapshot
	Beliefs    []ActiveBelief
}

// CohortCounts cohort 행 수
type CohortCounts struct {
	Beliefs   int `json:"beliefs"`
	Snapshots int `json:"snapshots"` // captured_at 기준
}

// BeliefFilter 대시보드 조회 필터
type BeliefFilter struct {
	Year      int
	VendorID  *int64
	Month     int
	Statuses  []MatchStatus
	OrderType OrderType
	Brand     string
	Limit     int
	Offset    int
}

// SnapshotFilter 스냅샷 조회 필터
type SnapshotFilter struct {
	Year      int
	Month     int // 0 = 전체 월
	VendorID  *int64
	SKU       string
	OrderType OrderType
}
