package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// graceAfterWindow 지정 구간 이후 허용되는 스냅샷 지연
const graceAfterWindow = 14 * 24 * time.Hour

// Horizon 정확도 백테스트 기준 리드타임
type Horizon string

const (
	Horizon90Days  Horizon = "90d"
	Horizon6Months Horizon = "6m"
)

// Months 대상월 기준 몇 개월 전 스냅샷을 쓰는지
func (h Horizon) Months() int {
	if h == Horizon6Months {
		return 6
	}
	return 3
}

// ParseHorizon 문자열 → Horizon (빈 값은 90d)
func ParseHorizon(s string) (Horizon, error) {
	switch Horizon(s) {
	case "", Horizon90Days:
		return Horizon90Days, nil
	case Horizon6Months:
		return Horizon6Months, nil
	}
	return "", fmt.Errorf("unknown horizon %q (want 90d or 6m)", s)
}

// DriftQuery drift 조회 조건
type DriftQuery struct {
	Year     int
	Month    int
	VendorID *int64
	SKU      string
}

// DriftPoint 캡처 일자별 예측 합계
type DriftPoint struct {
	CapturedAt time.Time `json:"captured_at"`
	Value      int64     `json:"value"`
	Quantity   int64     `json:"quantity"`
	Rows       int       `json:"rows"`
}

// DriftSeries 한 대상 기간의 예측 변화 추이
type DriftSeries struct {
	Year       int          `json:"year"`
	Month      int          `json:"month"`
	Points     []DriftPoint `json:"points"`
	ChurnScore float64      `json:"churn_score"`
}

// ChurnEntry (vendor, item) 단위 churn
type ChurnEntry struct {
	VendorID   int64   `json:"vendor_id"`
	VendorCode string  `json:"vendor_code"`
	SKU        string  `json:"sku"`
	Points     int     `json:"points"`
	Latest     int64   `json:"latest"`
	ChurnScore float64 `json:"churn_score"`
}

// HorizonQuery 정확도 조회 조건
type HorizonQuery struct {
	Year      int
	Horizon   Horizon
	OrderType contracts.OrderType // 빈 값 = 전체
	AsOf      time.Time           // 기본: 현재
}

// HorizonPoint 월별 예측 대비 실적
type HorizonPoint struct {
	Month          int   `json:"month"`
	Projected      int64 `json:"projected"`
	Actual         int64 `json:"actual"`
	VarianceDollar int64 `json:"variance_dollar"`
	VariancePct    *int  `json:"variance_pct"`
	SnapshotKeys   int   `json:"snapshot_keys"`
	Fallbacks      int   `json:"fallbacks"` // 지정 월 외 스냅샷을 쓴 키 수
	Missed         int   `json:"missed"`    // 기한 경과 미발주 belief 수
}

// HorizonReport 12개월 정확도 리포트
type HorizonReport struct {
	Year      int                 `json:"year"`
	Horizon   Horizon             `json:"horizon"`
	OrderType contracts.OrderType `json:"order_type,omitempty"`
	AsOf      time.Time           `json:"as_of"`
	Points    []HorizonPoint      `json:"points"`
	Projected int64               `json:"projected"`
	Actual    int64               `json:"actual"`
}

// Reporter 읽기 전용 drift/정확도 리포트
type Reporter struct {
	store  contracts.ForecastStore
	orders contracts.OrderSource
	policy DeadlinePolicy
	now    func() time.Time
	log    zerolog.Logger
}

// NewReporter 새 리포터 생성
func NewReporter(store contracts.ForecastStore, orders contracts.OrderSource, policy DeadlinePolicy, log zerolog.Logger) *Reporter {
	return &Reporter{
		store:  store,
		orders: orders,
		policy: policy,
		now:    time.Now,
		log:    log.With().Str("component", "forecast.reporter").Logger(),
	}
}

// WithClock 테스트용 시계 주입
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// Drift 대상 기간의 캡처 일자별 예측 합계와 churn
func (r *Reporter) Drift(ctx context.Context, q DriftQuery) (*DriftSeries, error) {
	snaps, err := r.store.ListSnapshots(ctx, contracts.SnapshotFilter{
		Year:     q.Year,
		Month:    q.Month,
		VendorID: q.VendorID,
		SKU:      q.SKU,
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	removed, err := r.removedKeys(ctx, contracts.BeliefFilter{Year: q.Year, Month: q.Month, VendorID: q.VendorID})
	if err != nil {
		return nil, err
	}

	points := seriesByCapture(removed.filter(snaps))
	values := make([]int64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	return &DriftSeries{
		Year:       q.Year,
		Month:      q.Month,
		Points:     points,
		ChurnScore: ChurnScore(values),
	}, nil
}

// ChurnLeaders churn 상위 (vendor, item) 목록
func (r *Reporter) ChurnLeaders(ctx context.Context, year, month, limit int) ([]ChurnEntry, error) {
	snaps, err := r.store.ListSnapshots(ctx, contracts.SnapshotFilter{Year: year, Month: month})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	removed, err := r.removedKeys(ctx, contracts.BeliefFilter{Year: year, Month: month})
	if err != nil {
		return nil, err
	}
	snaps = removed.filter(snaps)

	type itemKey struct {
		vendorID int64
		sku      string
	}
	groups := make(map[itemKey][]contracts.ForecastSnapshot)
	codes := make(map[int64]string)
	for _, s := range snaps {
		k := itemKey{s.VendorID, s.SKU}
		groups[k] = append(groups[k], s)
		codes[s.VendorID] = s.VendorCode
	}

	entries := make([]ChurnEntry, 0, len(groups))
	for k, g := range groups {
		points := seriesByCapture(g)
		values := make([]int64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		entries = append(entries, ChurnEntry{
			VendorID:   k.vendorID,
			VendorCode: codes[k.vendorID],
			SKU:        k.sku,
			Points:     len(points),
			Latest:     values[len(values)-1],
			ChurnScore: ChurnScore(values),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ChurnScore != entries[j].ChurnScore {
			return entries[i].ChurnScore > entries[j].ChurnScore
		}
		if entries[i].VendorID != entries[j].VendorID {
			return entries[i].VendorID < entries[j].VendorID
		}
		return entries[i].SKU < entries[j].SKU
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// HorizonAccuracy 리드타임 시점 스냅샷 vs 실제 발주 (12개월)
func (r *Reporter) HorizonAccuracy(ctx context.Context, q HorizonQuery) (*HorizonReport, error) {
	if q.Horizon == "" {
		q.Horizon = Horizon90Days
	}
	if q.AsOf.IsZero() {
		q.AsOf = r.now()
	}

	var (
		snaps   []contracts.ForecastSnapshot
		beliefs []contracts.ActiveBelief
		removed removedSet
		totals  map[int]contracts.MonthlyOrderTotal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snaps, err = r.store.ListSnapshots(gctx, contracts.SnapshotFilter{Year: q.Year, OrderType: q.OrderType})
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		beliefs, err = r.store.ListBeliefs(gctx, contracts.BeliefFilter{
			Year:      q.Year,
			OrderType: q.OrderType,
			Statuses:  []contracts.MatchStatus{contracts.MatchUnmatched, contracts.MatchExpired},
		})
		if err != nil {
			return fmt.Errorf("list beliefs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		removed, err = r.removedKeys(gctx, contracts.BeliefFilter{Year: q.Year, OrderType: q.OrderType})
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = r.orders.MonthlyTotals(gctx, q.Year, q.OrderType)
		if err != nil {
			return fmt.Errorf("load monthly order totals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byMonth := make(map[int][]contracts.ForecastSnapshot)
	for _, s := range removed.filter(snaps) {
		byMonth[s.TargetMonth] = append(byMonth[s.TargetMonth], s)
	}

	missed := make(map[int]int)
	for _, b := range beliefs {
		if PastDeadline(q.AsOf, r.policy.BacktestDeadline(b)) {
			missed[b.TargetMonth]++
		}
	}

	report := &HorizonReport{
		Year:      q.Year,
		Horizon:   q.Horizon,
		OrderType: q.OrderType,
		AsOf:      q.AsOf,
		Points:    make([]HorizonPoint, 0, 12),
	}
	for month := 1; month <= 12; month++ {
		windowStart := time.Date(q.Year, time.Month(month-q.Horizon.Months()), 1, 0, 0, 0, 0, time.UTC)
		projected, keys, fallbacks := projectMonth(byMonth[month], windowStart)
		actual := totals[month].Value

		report.Points = append(report.Points, HorizonPoint{
			Month:          month,
			Projected:      projected,
			Actual:         actual,
			VarianceDollar: actual - projected,
			VariancePct:    VariancePct(projected, actual),
			SnapshotKeys:   keys,
			Fallbacks:      fallbacks,
			Missed:         missed[month],
		})
		report.Projected += projected
		report.Actual += actual
	}

	r.log.Debug().
		Int("year", q.Year).
		Str("horizon", string(q.Horizon)).
		Str("order_type", string(q.OrderType)).
		Int("snapshots", len(snaps)).
		Msg("horizon accuracy computed")

	return report, nil
}

type removedKey struct {
	vendorID int64
	sku      string
	year     int
	month    int
}

// removedSet 관리자가 제외한 belief 키 (모든 리포트에서 제외)
type removedSet map[removedKey]struct{}

func (r *Reporter) removedKeys(ctx context.Context, f contracts.BeliefFilter) (removedSet, error) {
	f.Statuses = []contracts.MatchStatus{contracts.MatchRemoved}
	beliefs, err := r.store.ListBeliefs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list removed beliefs: %w", err)
	}
	set := make(removedSet, len(beliefs))
	for _, b := range beliefs {
		set[removedKey{b.VendorID, b.SKU, b.TargetYear, b.TargetMonth}] = struct{}{}
	}
	return set, nil
}

func (s removedSet) filter(snaps []contracts.ForecastSnapshot) []contracts.ForecastSnapshot {
	if len(s) == 0 {
		return snaps
	}
	out := make([]contracts.ForecastSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if _, ok := s[removedKey{snap.VendorID, snap.SKU, snap.TargetYear, snap.TargetMonth}]; ok {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// projectMonth 키별 기준 스냅샷을 골라 합산
// 선택 순서: 지정 월 최신 → 이전 최신 → 지정 월 이후 14일 내 최초 → 전체 최초
func projectMonth(snaps []contracts.ForecastSnapshot, windowStart time.Time) (projected int64, keys, fallbacks int) {
	type itemKey struct {
		vendorID int64
		sku      string
	}
	byKey := make(map[itemKey][]DriftPoint)
	grouped := make(map[itemKey][]contracts.ForecastSnapshot)
	for _, s := range snaps {
		k := itemKey{s.VendorID, s.SKU}
		grouped[k] = append(grouped[k], s)
	}
	for k, g := range grouped {
		byKey[k] = seriesByCapture(g)
	}

	windowEnd := windowStart.AddDate(0, 1, 0)
	graceEnd := windowEnd.Add(graceAfterWindow)

	for _, points := range byKey {
		p, inWindow := selectSnapshot(points, windowStart, windowEnd, graceEnd)
		projected += p.Value
		keys++
		if !inWindow {
			fallbacks++
		}
	}
	return projected, keys, fallbacks
}

// selectSnapshot points는 캡처 일자 오름차순
func selectSnapshot(points []DriftPoint, windowStart, windowEnd, graceEnd time.Time) (DriftPoint, bool) {
	var inWindow, before *DriftPoint
	for i := range points {
		c := points[i].CapturedAt
		switch {
		case !c.Before(windowStart) && c.Before(windowEnd):
			inWindow = &points[i]
		case c.Before(windowStart):
			before = &points[i]
		}
	}
	if inWindow != nil {
		return *inWindow, true
	}
	if before != nil {
		return *before, false
	}
	for i := range points {
		c := points[i].CapturedAt
		if !c.Before(windowEnd) && c.Before(graceEnd) {
			return points[i], false
		}
	}
	return points[0], false
}

// seriesByCapture 캡처 일자별 합산 (오름차순)
func seriesByCapture(snaps []contracts.ForecastSnapshot) []DriftPoint {
	byDate := make(map[time.Time]*DriftPoint)
	for _, s := range snaps {
		d := truncateDay(s.CapturedAt)
		p, ok := byDate[d]
		if !ok {
			p = &DriftPoint{CapturedAt: d}
			byDate[d] = p
		}
		p.Value += s.ForecastValue
		p.Quantity += s.Quantity
		p.Rows++
	}

	points := make([]DriftPoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].CapturedAt.Before(points[j].CapturedAt) })
	return points
}

// ChurnScore sum(|v[i]-v[i-1]|) / mean(v) * 100
// 2개 미만이거나 평균이 0이면 0
func ChurnScore(values []int64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum, moves float64
	for i, v := range values {
		sum += float64(v)
		if i > 0 {
			moves += math.Abs(float64(v - values[i-1]))
		}
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	return math.Round(moves/mean*100*100) / 100
}
