package forecast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// PendingAction 미해결 벤더 그룹 처리 방식
type PendingAction string

const (
	ActionCreate PendingAction = "create" // 새 벤더 생성 후 반영
	ActionMap    PendingAction = "map"    // 기존 벤더에 매핑
	ActionSkip   PendingAction = "skip"   // 그룹 제외
)

// Decision 미해결 그룹 하나에 대한 운영자 결정
type Decision struct {
	Action   PendingAction `json:"action"`
	VendorID int64         `json:"vendor_id,omitempty"` // map
	Code     string        `json:"code,omitempty"`      // create
	Name     string        `json:"name,omitempty"`      // create
}

// ResolvedRow 벤더 해석이 끝난 행
type ResolvedRow struct {
	Index      int                   `json:"index"`
	Row        contracts.ForecastRow `json:"row"`
	VendorID   int64                 `json:"vendor_id"`
	VendorCode string                `json:"vendor_code"`
	OrderType  contracts.OrderType   `json:"order_type"`
	ItemKey    string                `json:"item_key"`
	Value      int64                 `json:"value"`
	Quantity   int64                 `json:"quantity"`
}

// PendingGroup 동일 벤더 식별자로 묶인 미해결 행
type PendingGroup struct {
	Identifier string        `json:"identifier"` // 코드, 없으면 이름
	VendorCode string        `json:"vendor_code"`
	VendorName string        `json:"vendor_name"`
	RowCount   int           `json:"row_count"`
	TotalValue int64         `json:"total_value"`
	Rows       []ResolvedRow `json:"rows"` // VendorID = 0
	// CreatedVendorID 검토 완료 중 이미 생성된 벤더 (재시도 시 재사용)
	CreatedVendorID int64 `json:"created_vendor_id,omitempty"`
}

// PendingImport 검토 대기 중인 import
type PendingImport struct {
	Handle        string          `json:"handle"`
	CapturedAt    time.Time       `json:"captured_at"`
	CategoryGroup string          `json:"category_group"`
	ImportedBy    string          `json:"imported_by"`
	Resolved      []ResolvedRow   `json:"resolved"`
	Groups        []*PendingGroup `json:"groups"`
	Warnings      []string        `json:"warnings"`
	Dropped       int             `json:"dropped_warnings"`
	Skipped       int             `json:"skipped"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Expired 만료 여부
func (p *PendingImport) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Summary 운영자에게 보여줄 요약 (행 데이터 제외)
func (p *PendingImport) Summary() PendingSummary {
	groups := make([]PendingGroupSummary, 0, len(p.Groups))
	for _, g := range p.Groups {
		groups = append(groups, PendingGroupSummary{
			Identifier: g.Identifier,
			VendorCode: g.VendorCode,
			VendorName: g.VendorName,
			RowCount:   g.RowCount,
			TotalValue: g.TotalValue,
		})
	}
	return PendingSummary{
		Handle:        p.Handle,
		ResolvedRows:  len(p.Resolved),
		Groups:        groups,
		CategoryGroup: p.CategoryGroup,
		CapturedAt:    p.CapturedAt,
		ExpiresAt:     p.ExpiresAt,
	}
}

// PendingGroupSummary 미해결 그룹 요약
type PendingGroupSummary struct {
	Identifier string `json:"identifier"`
	VendorCode string `json:"vendor_code"`
	VendorName string `json:"vendor_name"`
	RowCount   int    `json:"row_count"`
	TotalValue int64  `json:"total_value"`
}

// PendingSummary 검토 대기 import 요약
type PendingSummary struct {
	Handle        string                `json:"handle"`
	ResolvedRows  int                   `json:"resolved_rows"`
	Groups        []PendingGroupSummary `json:"groups"`
	CategoryGroup string                `json:"category_group"`
	CapturedAt    time.Time             `json:"captured_at"`
	ExpiresAt     time.Time             `json:"expires_at"`
}

// PendingStore 검토 대기 import 저장소
type PendingStore interface {
	Put(ctx context.Context, p *PendingImport) error
	// Get 없거나 만료되면 ErrPendingNotFound
	Get(ctx context.Context, handle string) (*PendingImport, error)
	Delete(ctx context.Context, handle string) error
	// Sweep 만료 항목 제거, 제거 건수 반환
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemoryPendingStore 프로세스 내부 저장소 (단일 인스턴스 배포용)
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]*PendingImport
	now     func() time.Time
}

// NewMemoryPendingStore 새 메모리 저장소 생성
func NewMemoryPendingStore(now func() time.Time) *MemoryPendingStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryPendingStore{
		entries: make(map[string]*PendingImport),
		now:     now,
	}
}

// Put 저장 (같은 핸들은 덮어씀)
func (s *MemoryPendingStore) Put(_ context.Context, p *PendingImport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.Handle] = p
	return nil
}

// Get 조회
func (s *MemoryPendingStore) Get(_ context.Context, handle string) (*PendingImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[handle]
	if !ok {
		return nil, ErrPendingNotFound
	}
	if p.Expired(s.now()) {
		delete(s.entries, handle)
		return nil, ErrPendingNotFound
	}
	return p, nil
}

// Delete 삭제
func (s *MemoryPendingStore) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, handle)
	return nil
}

// Sweep 만료 항목 제거
func (s *MemoryPendingStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for handle, p := range s.entries {
		if p.Expired(now) {
			delete(s.entries, handle)
			removed++
		}
	}
	return removed, nil
}

// Len 현재 보관 건수
func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// groupUnresolved 미해결 행을 벤더 식별자별로 묶음 (식별자 오름차순)
func groupUnresolved(rows []ResolvedRow) []*PendingGroup {
	byID := make(map[string]*PendingGroup)
	for _, r := range rows {
		id := pendingIdentifier(r.Row)
		g, ok := byID[id]
		if !ok {
			g = &PendingGroup{
				Identifier: id,
				VendorCode: r.Row.VendorCode,
				VendorName: r.Row.VendorName,
			}
			byID[id] = g
		}
		g.RowCount++
		g.TotalValue += r.Value
		g.Rows = append(g.Rows, r)
	}

	groups := make([]*PendingGroup, 0, len(byID))
	for _, g := range byID {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Identifier < groups[j].Identifier })
	return groups
}
