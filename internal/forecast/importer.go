package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/pkg/config"
)

// ImportStatus import 결과 상태
type ImportStatus string

const (
	ImportOK            ImportStatus = "ok"
	ImportPendingReview ImportStatus = "pending_review"
	ImportFailed        ImportStatus = "failed"
)

// VerificationStatus 커밋 후 행 수 검증 결과
type VerificationStatus string

const (
	VerificationPassed  VerificationStatus = "passed"
	VerificationFailed  VerificationStatus = "failed"
	VerificationSkipped VerificationStatus = "skipped"
)

// ImportRequest 예측 import 요청
type ImportRequest struct {
	Rows          []contracts.ForecastRow `json:"rows"`
	CapturedAt    *time.Time              `json:"captured_at,omitempty"`
	Filename      string                  `json:"filename,omitempty"` // 캡처 일자 추출용
	CategoryGroup string                  `json:"category_group"`
	ImportedBy    string                  `json:"imported_by,omitempty"`
}

// CohortResult cohort 단위 커밋 결과
type CohortResult struct {
	Key       contracts.CohortKey    `json:"key"`
	Rows      int                    `json:"rows"` // 원본 행 수
	Beliefs   int                    `json:"beliefs"`
	Snapshots int                    `json:"snapshots"`
	Replaced  contracts.CohortCounts `json:"replaced"` // 교체 전 행 수
	Error     string                 `json:"error,omitempty"`
}

// CohortVerification cohort 검증 상세
type CohortVerification struct {
	Key      contracts.CohortKey    `json:"key"`
	Pre      contracts.CohortCounts `json:"pre"`
	Expected contracts.CohortCounts `json:"expected"`
	Post     contracts.CohortCounts `json:"post"`
}

// Verification 커밋 후 검증 (불일치 시 롤백하지 않고 보고만 함)
type Verification struct {
	Status  VerificationStatus   `json:"status"`
	Cohorts []CohortVerification `json:"cohorts,omitempty"`
}

// ImportResult import 결과
type ImportResult struct {
	Status     ImportStatus    `json:"status"`
	CapturedAt time.Time       `json:"captured_at"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Cohorts    []CohortResult  `json:"cohorts"`
	Warnings   []string        `json:"warnings"`
	Pending    *PendingSummary `json:"pending,omitempty"`
	Verify     *Verification   `json:"verification,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Importer 예측 행 → 스냅샷 아카이브 + active belief 반영
type Importer struct {
	store   contracts.ForecastStore
	vendors contracts.VendorDirectory
	pending PendingStore
	parser  *RowParser

	pendingTTL        time.Duration
	maxWarnings       int
	defaultImportedBy string

	now func() time.Time
	log zerolog.Logger
}

// NewImporter 새 importer 생성
func NewImporter(
	store contracts.ForecastStore,
	vendors contracts.VendorDirectory,
	pending PendingStore,
	cfg config.ForecastConfig,
	log zerolog.Logger,
) *Importer {
	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	maxWarnings := cfg.MaxWarnings
	if maxWarnings <= 0 {
		maxWarnings = 50
	}
	by := cfg.DefaultImportedBy
	if by == "" {
		by = "system"
	}

	return &Importer{
		store:             store,
		vendors:           vendors,
		pending:           pending,
		parser:            NewRowParser(cfg.MTOMarker, cfg.Brands),
		pendingTTL:        ttl,
		maxWarnings:       maxWarnings,
		defaultImportedBy: by,
		now:               time.Now,
		log:               log.With().Str("component", "forecast.importer").Logger(),
	}
}

// WithClock 테스트용 시계 주입
func (i *Importer) WithClock(now func() time.Time) *Importer {
	i.now = now
	return i
}

// Propose 행 검증/벤더 해석 후 전부 해석되면 커밋, 아니면 검토 대기로 보관
func (i *Importer) Propose(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	now := i.now()
	capturedAt := CaptureDate(req.CapturedAt, req.Filename, now)
	importedBy := req.ImportedBy
	if importedBy == "" {
		importedBy = i.defaultImportedBy
	}

	res := &ImportResult{CapturedAt: capturedAt}
	warns := newWarningList(i.maxWarnings)

	vendors, err := i.vendors.ListVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	resolver := NewVendorResolver(vendors)

	var resolved, unresolved []ResolvedRow
	for idx, row := range req.Rows {
		pr, err := i.parser.Parse(idx, row)
		if err != nil {
			warns.add("row %d: %v", idx+1, err)
			res.Skipped++
			continue
		}

		rr := ResolvedRow{
			Index:     idx,
			Row:       row,
			OrderType: pr.OrderType,
			ItemKey:   pr.ItemKey,
			Value:     pr.Value,
			Quantity:  pr.Quantity,
		}
		if r, ok := resolver.Resolve(row.VendorCode, row.VendorName); ok {
			rr.VendorID = r.Vendor.ID
			rr.VendorCode = r.Vendor.Code
			if r.Strategy != StrategyCode {
				i.log.Debug().
					Str("vendor_code", row.VendorCode).
					Str("vendor_name", row.VendorName).
					Int64("vendor_id", r.Vendor.ID).
					Str("strategy", string(r.Strategy)).
					Msg("vendor resolved by fallback strategy")
			}
			resolved = append(resolved, rr)
		} else {
			unresolved = append(unresolved, rr)
		}
	}

	if len(resolved) == 0 && len(unresolved) == 0 {
		res.Status = ImportFailed
		res.Error = ErrNoValidRows.Error()
		res.Warnings = warns.list()
		i.log.Warn().Int("rows", len(req.Rows)).Int("skipped", res.Skipped).Msg("import rejected: no valid rows")
		return res, nil
	}

	if len(unresolved) > 0 {
		p := &PendingImport{
			Handle:        uuid.NewString(),
			CapturedAt:    capturedAt,
			CategoryGroup: req.CategoryGroup,
			ImportedBy:    importedBy,
			Resolved:      resolved,
			Groups:        groupUnresolved(unresolved),
			Warnings:      warns.items,
			Dropped:       warns.dropped,
			Skipped:       res.Skipped,
			CreatedAt:     now,
			ExpiresAt:     now.Add(i.pendingTTL),
		}
		if err := i.pending.Put(ctx, p); err != nil {
			return nil, fmt.Errorf("store pending import: %w", err)
		}

		summary := p.Summary()
		res.Status = ImportPendingReview
		res.Pending = &summary
		res.Warnings = warns.list()

		i.log.Info().
			Str("handle", p.Handle).
			Int("resolved_rows", len(resolved)).
			Int("unresolved_rows", len(unresolved)).
			Int("unresolved_vendors", len(p.Groups)).
			Msg("import deferred to pending review")
		return res, nil
	}

	i.commit(ctx, resolved, capturedAt, req.CategoryGroup, importedBy, res, warns)
	return res, nil
}

// Complete 미해결 그룹별 결정(create/map/skip)을 적용하고 커밋
func (i *Importer) Complete(ctx context.Context, handle string, decisions map[string]Decision) (*ImportResult, error) {
	p, err := i.pending.Get(ctx, handle)
	if err != nil {
		return nil, err
	}

	// 부작용(벤더 생성) 전에 전체 결정 검증
	known := make(map[string]struct{}, len(p.Groups))
	for _, g := range p.Groups {
		known[g.Identifier] = struct{}{}
		d, ok := decisions[g.Identifier]
		if !ok {
			continue
		}
		if err := i.validateDecision(ctx, g, d); err != nil {
			return nil, err
		}
	}

	res := &ImportResult{CapturedAt: p.CapturedAt, Skipped: p.Skipped}
	warns := newWarningList(i.maxWarnings)
	warns.items = append(warns.items, p.Warnings...)
	warns.dropped = p.Dropped

	for id := range decisions {
		if _, ok := known[id]; !ok {
			warns.add("decision for unknown vendor %q ignored", id)
		}
	}

	rows := append([]ResolvedRow(nil), p.Resolved...)
	for _, g := range p.Groups {
		d, ok := decisions[g.Identifier]
		if !ok {
			warns.add("vendor %q: no decision, %d rows skipped", g.Identifier, g.RowCount)
			res.Skipped += g.RowCount
			continue
		}

		var vendor *contracts.Vendor
		switch d.Action {
		case ActionSkip:
			res.Skipped += g.RowCount
			continue
		case ActionMap:
			vendor, err = i.vendors.GetVendor(ctx, d.VendorID)
			if err != nil {
				return nil, fmt.Errorf("get vendor %d: %w", d.VendorID, err)
			}
		case ActionCreate:
			vendor, err = i.createVendor(ctx, p, g, d)
			if err != nil {
				return nil, err
			}
		}

		for _, r := range g.Rows {
			r.VendorID = vendor.ID
			r.VendorCode = vendor.Code
			rows = append(rows, r)
		}
	}

	if err := i.pending.Delete(ctx, handle); err != nil {
		i.log.Warn().Err(err).Str("handle", handle).Msg("failed to delete pending import")
	}

	if len(rows) == 0 {
		res.Status = ImportFailed
		res.Error = ErrNoValidRows.Error()
		res.Warnings = warns.list()
		return res, nil
	}

	i.commit(ctx, rows, p.CapturedAt, p.CategoryGroup, p.ImportedBy, res, warns)
	return res, nil
}

// createVendor 그룹 벤더 생성 후 검토 대기 import에 기록
// 이전 시도에서 이미 생성했다면 그 벤더를 재사용한다
func (i *Importer) createVendor(ctx context.Context, p *PendingImport, g *PendingGroup, d Decision) (*contracts.Vendor, error) {
	if g.CreatedVendorID != 0 {
		vendor, err := i.vendors.GetVendor(ctx, g.CreatedVendorID)
		if err != nil {
			return nil, fmt.Errorf("get created vendor %d: %w", g.CreatedVendorID, err)
		}
		return vendor, nil
	}

	code := firstNonEmpty(d.Code, g.VendorCode)
	name := firstNonEmpty(d.Name, g.VendorName, code)
	vendor, err := i.vendors.CreateVendor(ctx, code, name)
	if err != nil {
		return nil, fmt.Errorf("create vendor %q: %w", name, err)
	}
	i.log.Info().Int64("vendor_id", vendor.ID).Str("code", vendor.Code).Str("name", vendor.Name).Msg("vendor created from pending review")

	g.CreatedVendorID = vendor.ID
	if err := i.pending.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("record created vendor %d: %w", vendor.ID, err)
	}
	return vendor, nil
}

// Cancel 검토 대기 import 폐기
func (i *Importer) Cancel(ctx context.Context, handle string) error {
	if _, err := i.pending.Get(ctx, handle); err != nil {
		return err
	}
	if err := i.pending.Delete(ctx, handle); err != nil {
		return fmt.Errorf("cancel pending import: %w", err)
	}
	i.log.Info().Str("handle", handle).Msg("pending import cancelled")
	return nil
}

// Pending 검토 대기 import 요약 조회
func (i *Importer) Pending(ctx context.Context, handle string) (*PendingSummary, error) {
	p, err := i.pending.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	s := p.Summary()
	return &s, nil
}

// CleanupPending 만료된 검토 대기 import 제거
func (i *Importer) CleanupPending(ctx context.Context) (int, error) {
	n, err := i.pending.Sweep(ctx, i.now())
	if err != nil {
		return 0, fmt.Errorf("sweep pending imports: %w", err)
	}
	if n > 0 {
		i.log.Info().Int("removed", n).Msg("expired pending imports removed")
	}
	return n, nil
}

func (i *Importer) validateDecision(ctx context.Context, g *PendingGroup, d Decision) error {
	switch d.Action {
	case ActionSkip:
		return nil
	case ActionMap:
		if d.VendorID <= 0 {
			return fmt.Errorf("%w: vendor %q: map requires vendor_id", ErrInvalidDecision, g.Identifier)
		}
		if _, err := i.vendors.GetVendor(ctx, d.VendorID); err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				return fmt.Errorf("%w: vendor %q: vendor %d does not exist", ErrInvalidDecision, g.Identifier, d.VendorID)
			}
			return fmt.Errorf("get vendor %d: %w", d.VendorID, err)
		}
		return nil
	case ActionCreate:
		if firstNonEmpty(d.Code, g.VendorCode, d.Name, g.VendorName) == "" {
			return fmt.Errorf("%w: vendor %q: create requires code or name", ErrInvalidDecision, g.Identifier)
		}
		return nil
	default:
		return fmt.Errorf("%w: vendor %q: unknown action %q", ErrInvalidDecision, g.Identifier, d.Action)
	}
}

// aggregatedRow (vendor, item key, year, month) 단위 합산 결과
type aggregatedRow struct {
	first    ResolvedRow
	value    int64
	quantity int64
	sources  int
}

type aggregateKey struct {
	vendorID int64
	itemKey  string
	year     int
	month    int
}

// commit 중복 행 합산 → cohort별 트랜잭션 교체 → 검증
func (i *Importer) commit(
	ctx context.Context,
	rows []ResolvedRow,
	capturedAt time.Time,
	categoryGroup, importedBy string,
	res *ImportResult,
	warns *warningList,
) {
	now := i.now()

	aggs := make(map[aggregateKey]*aggregatedRow)
	var order []aggregateKey
	for _, r := range rows {
		k := aggregateKey{r.VendorID, r.ItemKey, r.Row.TargetYear, r.Row.TargetMonth}
		a, ok := aggs[k]
		if !ok {
			a = &aggregatedRow{first: r}
			aggs[k] = a
			order = append(order, k)
		} else if a.first.OrderType != r.OrderType {
			warns.add("row %d: order type %s conflicts with %s for %s, using %s",
				r.Index+1, r.OrderType, a.first.OrderType, r.ItemKey, a.first.OrderType)
		}
		a.value += r.Value
		a.quantity += r.Quantity
		a.sources++
	}

	cohorts := make(map[contracts.CohortKey]*contracts.CohortWrite)
	sourceRows := make(map[contracts.CohortKey]int)
	for _, k := range order {
		a := aggs[k]
		ck := contracts.CohortKey{VendorID: k.vendorID, TargetYear: k.year, CategoryGroup: categoryGroup}
		w, ok := cohorts[ck]
		if !ok {
			w = &contracts.CohortWrite{Key: ck, CapturedAt: capturedAt}
			cohorts[ck] = w
		}
		snap, belief := a.build(capturedAt, categoryGroup, importedBy, now)
		w.Snapshots = append(w.Snapshots, snap)
		w.Beliefs = append(w.Beliefs, belief)
		sourceRows[ck] += a.sources
	}

	keys := make([]contracts.CohortKey, 0, len(cohorts))
	for k := range cohorts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].VendorID != keys[b].VendorID {
			return keys[a].VendorID < keys[b].VendorID
		}
		return keys[a].TargetYear < keys[b].TargetYear
	})

	verify := &Verification{Status: VerificationPassed}
	for _, k := range keys {
		w := cohorts[k]
		cr := CohortResult{Key: k, Rows: sourceRows[k], Beliefs: len(w.Beliefs), Snapshots: len(w.Snapshots)}

		pre, err := i.store.ReplaceCohort(ctx, *w)
		if err != nil {
			cr.Error = err.Error()
			res.Failed += cr.Rows
			res.Cohorts = append(res.Cohorts, cr)
			warns.add("vendor %d year %d: %v", k.VendorID, k.TargetYear, err)
			i.log.Error().Err(err).
				Int64("vendor_id", k.VendorID).
				Int("target_year", k.TargetYear).
				Str("category_group", k.CategoryGroup).
				Msg("cohort replace failed, rolled back")
			continue
		}
		cr.Replaced = pre
		res.Succeeded += cr.Rows
		res.Cohorts = append(res.Cohorts, cr)

		expected := contracts.CohortCounts{Beliefs: len(w.Beliefs), Snapshots: len(w.Snapshots)}
		post, err := i.store.CountCohort(ctx, k, capturedAt)
		if err != nil {
			warns.add("vendor %d year %d: verification query failed: %v", k.VendorID, k.TargetYear, err)
			verify.Status = VerificationFailed
			continue
		}
		if post != expected {
			verify.Status = VerificationFailed
			verify.Cohorts = append(verify.Cohorts, CohortVerification{Key: k, Pre: pre, Expected: expected, Post: post})
			i.log.Warn().
				Int64("vendor_id", k.VendorID).
				Int("target_year", k.TargetYear).
				Int("expected_beliefs", expected.Beliefs).
				Int("post_beliefs", post.Beliefs).
				Int("expected_snapshots", expected.Snapshots).
				Int("post_snapshots", post.Snapshots).
				Msg("cohort verification mismatch")
		}
	}
	if res.Succeeded == 0 {
		verify.Status = VerificationSkipped
	}

	res.Verify = verify
	res.Warnings = warns.list()
	switch {
	case res.Succeeded == 0:
		res.Status = ImportFailed
		res.Error = "all cohorts failed"
	default:
		res.Status = ImportOK
	}

	i.log.Info().
		Time("captured_at", capturedAt).
		Str("category_group", categoryGroup).
		Int("cohorts", len(keys)).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Str("verification", string(verify.Status)).
		Msg("forecast import committed")
}

func (a *aggregatedRow) build(capturedAt time.Time, categoryGroup, importedBy string, now time.Time) (contracts.ForecastSnapshot, contracts.ActiveBelief) {
	r := a.first
	snap := contracts.ForecastSnapshot{
		VendorID:       r.VendorID,
		VendorCode:     r.VendorCode,
		SKU:            r.ItemKey,
		SKUDescription: r.Row.SKUDescription,
		Brand:          r.Row.Brand,
		ProductClass:   r.Row.ProductClass,
		Collection:     r.Row.Collection,
		TargetYear:     r.Row.TargetYear,
		TargetMonth:    r.Row.TargetMonth,
		OrderType:      r.OrderType,
		ForecastValue:  a.value,
		Quantity:       a.quantity,
		CapturedAt:     capturedAt,
		CategoryGroup:  categoryGroup,
		ImportedBy:     importedBy,
		CreatedAt:      now,
	}
	belief := contracts.ActiveBelief{
		VendorID:         r.VendorID,
		VendorCode:       r.VendorCode,
		SKU:              r.ItemKey,
		SKUDescription:   r.Row.SKUDescription,
		Brand:            r.Row.Brand,
		Collection:       r.Row.Collection,
		CategoryGroup:    categoryGroup,
		TargetYear:       r.Row.TargetYear,
		TargetMonth:      r.Row.TargetMonth,
		OrderType:        r.OrderType,
		ForecastValue:    a.value,
		Quantity:         a.quantity,
		MatchStatus:      contracts.MatchUnmatched,
		LastSnapshotDate: capturedAt,
		UpdatedAt:        now,
	}
	return snap, belief
}

// pendingIdentifier 미해결 그룹 키: 코드, 없으면 이름
func pendingIdentifier(row contracts.ForecastRow) string {
	if code := strings.TrimSpace(row.VendorCode); code != "" {
		return code
	}
	return strings.TrimSpace(row.VendorName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// warningList 상한이 있는 경고 목록
type warningList struct {
	limit   int
	items   []string
	dropped int
}

func newWarningList(limit int) *warningList {
	return &warningList{limit: limit}
}

func (w *warningList) add(format string, args ...interface{}) {
	if len(w.items) >= w.limit {
		w.dropped++
		return
	}
	w.items = append(w.items, fmt.Sprintf(format, args...))
}

func (w *warningList) list() []string {
	out := append([]string{}, w.items...)
	if w.dropped > 0 {
		out = append(out, fmt.Sprintf("... and %d more warnings", w.dropped))
	}
	return out
}
