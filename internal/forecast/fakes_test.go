package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// memStore in-memory ForecastStore for unit tests
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	snapshots []contracts.ForecastSnapshot
	beliefs   map[int64]contracts.ActiveBelief

	failVendor int64 // ReplaceCohort fails for this vendor
	countSkew  int   // added to CountCohort beliefs
	saves      int
}

func newMemStore() *memStore {
	return &memStore{beliefs: make(map[int64]contracts.ActiveBelief)}
}

func (s *memStore) ReplaceCohort(_ context.Context, w contracts.CohortWrite) (contracts.CohortCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failVendor != 0 && w.Key.VendorID == s.failVendor {
		return contracts.CohortCounts{}, errors.New("simulated constraint violation")
	}

	pre := s.countLocked(w.Key, w.CapturedAt)

	type itemKey struct {
		sku   string
		month int
	}
	// (vendor, sku, year, month) 유일성: 기존 행은 아래에서 삭제되므로 입력 내 중복만 검사
	incoming := make(map[itemKey]bool)
	for _, b := range w.Beliefs {
		k := itemKey{b.SKU, b.TargetMonth}
		if incoming[k] {
			return contracts.CohortCounts{}, fmt.Errorf("duplicate belief %s %d-%02d", b.SKU, b.TargetYear, b.TargetMonth)
		}
		incoming[k] = true
	}
	for _, snap := range w.Snapshots {
		incoming[itemKey{snap.SKU, snap.TargetMonth}] = true
	}

	kept := s.snapshots[:0]
	for _, snap := range s.snapshots {
		if snap.VendorID == w.Key.VendorID && snap.TargetYear == w.Key.TargetYear && snap.CapturedAt.Equal(w.CapturedAt) &&
			(snap.CategoryGroup == w.Key.CategoryGroup || incoming[itemKey{snap.SKU, snap.TargetMonth}]) {
			continue
		}
		kept = append(kept, snap)
	}
	s.snapshots = kept

	for id, b := range s.beliefs {
		if b.VendorID == w.Key.VendorID && b.TargetYear == w.Key.TargetYear &&
			(b.CategoryGroup == w.Key.CategoryGroup || incoming[itemKey{b.SKU, b.TargetMonth}]) {
			delete(s.beliefs, id)
		}
	}


	for _, snap := range w.Snapshots {
		s.nextID++
		snap.ID = s.nextID
		s.snapshots = append(s.snapshots, snap)
	}
	for _, b := range w.Beliefs {
		s.nextID++
		b.ID = s.nextID
		s.beliefs[b.ID] = b
	}
	return pre, nil
}

func (s *memStore) CountCohort(_ context.Context, key contracts.CohortKey, capturedAt time.Time) (contracts.CohortCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.countLocked(key, capturedAt)
	c.Beliefs += s.countSkew
	return c, nil
}

func (s *memStore) countLocked(key contracts.CohortKey, capturedAt time.Time) contracts.CohortCounts {
	var c contracts.CohortCounts
	for _, b := range s.beliefs {
		if b.VendorID == key.VendorID && b.TargetYear == key.TargetYear && b.CategoryGroup == key.CategoryGroup {
			c.Beliefs++
		}
	}
	for _, snap := range s.snapshots {
		if snap.VendorID == key.VendorID && snap.TargetYear == key.TargetYear &&
			snap.CategoryGroup == key.CategoryGroup && snap.CapturedAt.Equal(capturedAt) {
			c.Snapshots++
		}
	}
	return c
}

func (s *memStore) ListBeliefs(_ context.Context, f contracts.BeliefFilter) ([]contracts.ActiveBelief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.ActiveBelief
	for _, b := range s.beliefs {
		if f.Year > 0 && b.TargetYear != f.Year {
			continue
		}
		if f.VendorID != nil && b.VendorID != *f.VendorID {
			continue
		}
		if f.Month > 0 && b.TargetMonth != f.Month {
			continue
		}
		if f.OrderType != "" && b.OrderType != f.OrderType {
			continue
		}
		if f.Brand != "" && b.Brand != f.Brand {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, b.MatchStatus) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetMonth != out[j].TargetMonth {
			return out[i].TargetMonth < out[j].TargetMonth
		}
		if out[i].VendorID != out[j].VendorID {
			return out[i].VendorID < out[j].VendorID
		}
		return out[i].SKU < out[j].SKU
	})
	return out, nil
}

func (s *memStore) GetBelief(_ context.Context, id int64) (*contracts.ActiveBelief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.beliefs[id]
	if !ok {
		return nil, fmt.Errorf("belief %d: %w", id, contracts.ErrNotFound)
	}
	return &b, nil
}

func (s *memStore) SaveBelief(_ context.Context, b *contracts.ActiveBelief) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.beliefs[b.ID]; !ok {
		return fmt.Errorf("belief %d: %w", b.ID, contracts.ErrNotFound)
	}
	s.beliefs[b.ID] = *b
	s.saves++
	return nil
}

func (s *memStore) ListSnapshots(_ context.Context, f contracts.SnapshotFilter) ([]contracts.ForecastSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.ForecastSnapshot
	for _, snap := range s.snapshots {
		if f.Year > 0 && snap.TargetYear != f.Year {
			continue
		}
		if f.Month > 0 && snap.TargetMonth != f.Month {
			continue
		}
		if f.VendorID != nil && snap.VendorID != *f.VendorID {
			continue
		}
		if f.SKU != "" && snap.SKU != f.SKU {
			continue
		}
		if f.OrderType != "" && snap.OrderType != f.OrderType {
			continue
		}
		out = append(out, snap)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

// addBelief inserts a belief directly and returns its id
func (s *memStore) addBelief(b contracts.ActiveBelief) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	if b.MatchStatus == "" {
		b.MatchStatus = contracts.MatchUnmatched
	}
	s.beliefs[b.ID] = b
	return b.ID
}

func (s *memStore) addSnapshot(snap contracts.ForecastSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	snap.ID = s.nextID
	s.snapshots = append(s.snapshots, snap)
}

func (s *memStore) belief(id int64) contracts.ActiveBelief {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beliefs[id]
}

func (s *memStore) allBeliefs() []contracts.ActiveBelief {
	out, _ := s.ListBeliefs(context.Background(), contracts.BeliefFilter{})
	return out
}

func (s *memStore) allSnapshots() []contracts.ForecastSnapshot {
	out, _ := s.ListSnapshots(context.Background(), contracts.SnapshotFilter{})
	return out
}

func containsStatus(list []contracts.MatchStatus, s contracts.MatchStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// fakeOrders in-memory OrderSource
type fakeOrders struct {
	aggs    map[contracts.OrderKey]contracts.OrderAggregate
	refs    map[string]contracts.OrderAggregate // "<vendor>|<ref>"
	monthly map[int]contracts.MonthlyOrderTotal
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		aggs:    make(map[contracts.OrderKey]contracts.OrderAggregate),
		refs:    make(map[string]contracts.OrderAggregate),
		monthly: make(map[int]contracts.MonthlyOrderTotal),
	}
}

func (o *fakeOrders) put(agg contracts.OrderAggregate) {
	o.aggs[agg.Key] = agg
}

func (o *fakeOrders) Aggregates(_ context.Context, _ int, vendorID *int64) (map[contracts.OrderKey]contracts.OrderAggregate, error) {
	out := make(map[contracts.OrderKey]contracts.OrderAggregate)
	for k, v := range o.aggs {
		if vendorID != nil && k.VendorID != *vendorID {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func (o *fakeOrders) ReferenceTotals(_ context.Context, vendorID int64, ref string) (*contracts.OrderAggregate, error) {
	agg, ok := o.refs[fmt.Sprintf("%d|%s", vendorID, ref)]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", ref, contracts.ErrNotFound)
	}
	return &agg, nil
}

func (o *fakeOrders) MonthlyTotals(context.Context, int, contracts.OrderType) (map[int]contracts.MonthlyOrderTotal, error) {
	return o.monthly, nil
}

// fakeVendors in-memory VendorDirectory
type fakeVendors struct {
	mu      sync.Mutex
	vendors []contracts.Vendor
	created []contracts.Vendor

	createCalls  int
	failCreateOn int // n번째 CreateVendor 호출 실패 (0 = 사용 안 함)
}

func newFakeVendors(vendors ...contracts.Vendor) *fakeVendors {
	return &fakeVendors{vendors: vendors}
}

func (v *fakeVendors) ListVendors(context.Context) ([]contracts.Vendor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]contracts.Vendor(nil), v.vendors...), nil
}

func (v *fakeVendors) GetVendor(_ context.Context, id int64) (*contracts.Vendor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, vendor := range v.vendors {
		if vendor.ID == id {
			out := vendor
			return &out, nil
		}
	}
	return nil, fmt.Errorf("vendor %d: %w", id, contracts.ErrNotFound)
}

func (v *fakeVendors) CreateVendor(_ context.Context, code, name string) (*contracts.Vendor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.createCalls++
	if v.createCalls == v.failCreateOn {
		return nil, errors.New("db blip")
	}
	var maxID int64
	for _, vendor := range v.vendors {
		if vendor.ID > maxID {
			maxID = vendor.ID
		}
	}
	vendor := contracts.Vendor{ID: maxID + 1, Code: code, Name: name}
	v.vendors = append(v.vendors, vendor)
	v.created = append(v.created, vendor)
	return &vendor, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
