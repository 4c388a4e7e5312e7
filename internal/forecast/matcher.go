package forecast

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/wonny/merchops/backend/internal/contracts"
)

const (
	maxOrderRefs      = 10
	maxOrderRefLength = 255
)

// MatchResult 매칭 실행 결과
type MatchResult struct {
	Year      int      `json:"year"`
	VendorID  *int64   `json:"vendor_id,omitempty"`
	Checked   int      `json:"checked"`
	Matched   int      `json:"matched"`
	Partial   int      `json:"partial"`
	Unchanged int      `json:"unchanged"`
	Suspect   int      `json:"suspect"` // 주문이 사라진 partial
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Matcher active belief ↔ 실제 발주 집계 대사
type Matcher struct {
	store   contracts.ForecastStore
	orders  contracts.OrderSource
	locker  RunLocker
	lockTTL time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewMatcher 새 매처 생성
func NewMatcher(store contracts.ForecastStore, orders contracts.OrderSource, locker RunLocker, log zerolog.Logger) *Matcher {
	return &Matcher{
		store:   store,
		orders:  orders,
		locker:  locker,
		lockTTL: 10 * time.Minute,
		now:     time.Now,
		log:     log.With().Str("component", "forecast.matcher").Logger(),
	}
}

// WithClock 테스트용 시계 주입
func (m *Matcher) WithClock(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// Run 연도(선택적으로 벤더) 단위 매칭
// unmatched/partial 행만 다루며 matched 행을 되돌리지 않는다
func (m *Matcher) Run(ctx context.Context, year int, vendorID *int64) (*MatchResult, error) {
	release, err := obtainRun(ctx, m.locker, matchLockName(year, vendorID), m.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			m.log.Warn().Err(err).Msg("failed to release match lock")
		}
	}()

	beliefs, err := m.store.ListBeliefs(ctx, contracts.BeliefFilter{
		Year:     year,
		VendorID: vendorID,
		Statuses: []contracts.MatchStatus{contracts.MatchUnmatched, contracts.MatchPartial},
	})
	if err != nil {
		return nil, fmt.Errorf("list open beliefs: %w", err)
	}

	aggs, err := m.orders.Aggregates(ctx, year, vendorID)
	if err != nil {
		return nil, fmt.Errorf("load order aggregates: %w", err)
	}

	res := &MatchResult{Year: year, VendorID: vendorID, Checked: len(beliefs)}
	for idx := range beliefs {
		b := &beliefs[idx]
		agg, ok := aggs[contracts.KeyOf(*b)]

		if !ok || agg.TotalQuantity <= 0 {
			if b.MatchStatus == contracts.MatchPartial {
				res.Suspect++
				m.log.Warn().
					Int64("belief_id", b.ID).
					Int64("vendor_id", b.VendorID).
					Str("sku", b.SKU).
					Int("target_month", b.TargetMonth).
					Msg("partial belief lost its order data, left as partial")
			}
			res.Unchanged++
			continue
		}

		if !applyAggregate(b, agg, m.now()) {
			res.Unchanged++
			continue
		}

		if err := m.store.SaveBelief(ctx, b); err != nil {
			res.Failed++
			if len(res.Errors) < 50 {
				res.Errors = append(res.Errors, fmt.Sprintf("belief %d: %v", b.ID, err))
			}
			m.log.Error().Err(err).Int64("belief_id", b.ID).Msg("failed to save match")
			continue
		}

		if b.MatchStatus == contracts.MatchMatched {
			res.Matched++
		} else {
			res.Partial++
		}
	}

	m.log.Info().
		Int("year", year).
		Int("checked", res.Checked).
		Int("matched", res.Matched).
		Int("partial", res.Partial).
		Int("unchanged", res.Unchanged).
		Int("suspect", res.Suspect).
		Int("failed", res.Failed).
		Msg("matching run completed")

	return res, nil
}

// applyAggregate belief에 집계 반영, 변경이 없으면 false
func applyAggregate(b *contracts.ActiveBelief, agg contracts.OrderAggregate, now time.Time) bool {
	status := contracts.MatchPartial
	if agg.TotalQuantity >= b.Quantity {
		status = contracts.MatchMatched
	}
	ref := FormatOrderRefs(agg.OrderRefs)
	v := ComputeVariance(b.Quantity, b.ForecastValue, agg.TotalQuantity, agg.TotalValue)

	if b.MatchStatus == status &&
		eqString(b.MatchedOrderRef, ref) &&
		eqInt64(b.ActualQuantity, agg.TotalQuantity) &&
		eqInt64(b.ActualValue, agg.TotalValue) {
		return false
	}

	b.MatchStatus = status
	b.MatchedOrderRef = &ref
	b.MatchedAt = &now
	b.ActualQuantity = int64Ptr(agg.TotalQuantity)
	b.ActualValue = int64Ptr(agg.TotalValue)
	b.QuantityVariance = int64Ptr(v.Quantity)
	b.ValueVariance = int64Ptr(v.Value)
	b.VariancePct = v.Pct
	b.UpdatedAt = now
	return true
}

// FormatOrderRefs 정렬/중복 제거 후 쉼표 연결, 10건 초과는 "+N more", 최대 255문자
func FormatOrderRefs(refs []string) string {
	seen := make(map[string]struct{}, len(refs))
	uniq := make([]string, 0, len(refs))
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		uniq = append(uniq, r)
	}
	sort.Strings(uniq)

	shown := uniq
	if len(shown) > maxOrderRefs {
		shown = shown[:maxOrderRefs]
	}
	out := strings.Join(shown, ",")
	if extra := len(uniq) - len(shown); extra > 0 {
		out = fmt.Sprintf("%s +%d more", out, extra)
	}
	// VARCHAR(255)는 문자 수 기준
	if utf8.RuneCountInString(out) > maxOrderRefLength {
		out = string([]rune(out)[:maxOrderRefLength])
	}
	return out
}

func matchLockName(year int, vendorID *int64) string {
	if vendorID == nil {
		return fmt.Sprintf("match:%d:all", year)
	}
	return fmt.Sprintf("match:%d:%d", year, *vendorID)
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func stringPtr(s string) *string { return &s }

func eqInt64(p *int64, v int64) bool { return p != nil && *p == v }

func eqString(p *string, v string) bool { return p != nil && *p == v }
