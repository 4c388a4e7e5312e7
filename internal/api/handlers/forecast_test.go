package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/internal/export"
	"github.com/wonny/merchops/backend/internal/forecast"
	"github.com/wonny/merchops/backend/pkg/config"
	"github.com/wonny/merchops/backend/pkg/logger"
	"github.com/wonny/merchops/backend/pkg/redis"
)

// stubStore belief 중심의 최소 ForecastStore
type stubStore struct {
	mu        sync.Mutex
	nextID    int64
	beliefs   map[int64]contracts.ActiveBelief
	snapshots []contracts.ForecastSnapshot
}

func newStubStore() *stubStore {
	return &stubStore{beliefs: make(map[int64]contracts.ActiveBelief)}
}

func (s *stubStore) ReplaceCohort(_ context.Context, w contracts.CohortWrite) (contracts.CohortCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.beliefs {
		if b.VendorID == w.Key.VendorID && b.TargetYear == w.Key.TargetYear && b.CategoryGroup == w.Key.CategoryGroup {
			delete(s.beliefs, id)
		}
	}
	for _, b := range w.Beliefs {
		s.nextID++
		b.ID = s.nextID
		s.beliefs[b.ID] = b
	}
	s.snapshots = append(s.snapshots, w.Snapshots...)
	return contracts.CohortCounts{}, nil
}

func (s *stubStore) CountCohort(_ context.Context, key contracts.CohortKey, capturedAt time.Time) (contracts.CohortCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	return c, nil
}

func (s *stubStore) ListBeliefs(_ context.Context, f contracts.BeliefFilter) ([]contracts.ActiveBelief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contracts.ActiveBelief
	for id := int64(1); id <= s.nextID; id++ {
		b, ok := s.beliefs[id]
		if !ok || (f.Year > 0 && b.TargetYear != f.Year) {
			continue
		}
		if len(f.Statuses) > 0 {
			found := false
			for _, st := range f.Statuses {
				found = found || st == b.MatchStatus
			}
			if !found {
				continue
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *stubStore) GetBelief(_ context.Context, id int64) (*contracts.ActiveBelief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.beliefs[id]
	if !ok {
		return nil, fmt.Errorf("belief %d: %w", id, contracts.ErrNotFound)
	}
	return &b, nil
}

func (s *stubStore) SaveBelief(_ context.Context, b *contracts.ActiveBelief) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beliefs[b.ID] = *b
	return nil
}

func (s *stubStore) ListSnapshots(_ context.Context, f contracts.SnapshotFilter) ([]contracts.ForecastSnapshot, error) {
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
		out = append(out, snap)
	}
	return out, nil
}

type stubOrders struct{}

func (stubOrders) Aggregates(context.Context, int, *int64) (map[contracts.OrderKey]contracts.OrderAggregate, error) {
	return map[contracts.OrderKey]contracts.OrderAggregate{}, nil
}

func (stubOrders) ReferenceTotals(_ context.Context, vendorID int64, ref string) (*contracts.OrderAggregate, error) {
	if ref == "PO-1" {
		return &contracts.OrderAggregate{TotalQuantity: 10, TotalValue: 50000, OrderRefs: []string{ref}}, nil
	}
	return nil, fmt.Errorf("order %s: %w", ref, contracts.ErrNotFound)
}

func (stubOrders) MonthlyTotals(context.Context, int, contracts.OrderType) (map[int]contracts.MonthlyOrderTotal, error) {
	return map[int]contracts.MonthlyOrderTotal{}, nil
}

type stubVendors struct{}

func (stubVendors) ListVendors(context.Context) ([]contracts.Vendor, error) {
	return []contracts.Vendor{{ID: 7, Code: "ACME", Name: "Acme Home"}}, nil
}

func (stubVendors) GetVendor(_ context.Context, id int64) (*contracts.Vendor, error) {
	if id == 7 {
		return &contracts.Vendor{ID: 7, Code: "ACME", Name: "Acme Home"}, nil
	}
	return nil, contracts.ErrNotFound
}

func (stubVendors) CreateVendor(_ context.Context, code, name string) (*contracts.Vendor, error) {
	return &contracts.Vendor{ID: 99, Code: code, Name: name}, nil
}

type apiFixture struct {
	store   *stubStore
	handler *ForecastHandler
	router  http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	log := logger.Nop()
	zl := log.Zerolog()

	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false, Prefix: "test"}})
	require.NoError(t, err)

	store := newStubStore()
	policy := forecast.NewDeadlinePolicy(forecast.DefaultMTOGraceDays)
	cfg := config.ForecastConfig{MTOMarker: "MTO", PendingTTL: 30 * time.Minute}

	h := NewForecastHandler(ForecastServices{
		Store:    store,
		Importer: forecast.NewImporter(store, stubVendors{}, forecast.NewMemoryPendingStore(clock), cfg, zl).WithClock(clock),
		Matcher:  forecast.NewMatcher(store, stubOrders{}, nil, zl).WithClock(clock),
		Sweeper:  forecast.NewSweeper(store, policy, nil, zl).WithClock(clock),
		Admin:    forecast.NewAdmin(store, stubOrders{}, zl).WithClock(clock),
		Reporter: forecast.NewReporter(store, stubOrders{}, policy, zl).WithClock(clock),
		Cache:    redis.NewCache(client),
	}, log)
	h.now = clock

	r := mux.NewRouter()
	fc := r.PathPrefix("/api/forecast").Subrouter()
	fc.HandleFunc("/beliefs", h.ListBeliefs).Methods("GET")
	fc.HandleFunc("/drift", h.GetDrift).Methods("GET")
	fc.HandleFunc("/match", h.RunMatch).Methods("POST")
	fc.HandleFunc("/accuracy", h.GetAccuracy).Methods("GET")
	fc.HandleFunc("/accuracy/export", h.ExportAccuracy).Methods("GET")
	fc.HandleFunc("/imports", h.CreateImport).Methods("POST")
	fc.HandleFunc("/imports/{handle}", h.GetImport).Methods("GET")
	fc.HandleFunc("/imports/{handle}", h.CancelImport).Methods("DELETE")
	fc.HandleFunc("/imports/{handle}/complete", h.CompleteImport).Methods("POST")
	fc.HandleFunc("/sweep", h.RunSweep).Methods("POST")
	fc.HandleFunc("/beliefs/{id:[0-9]+}/{action}", h.BeliefAction).Methods("POST")

	return &apiFixture{store: store, handler: h, router: r}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func importBody(vendorCode string) map[string]interface{} {
	return map[string]interface{}{
		"category_group": "bedding",
		"captured_at":    "2026-01-05T00:00:00Z",
		"rows": []contracts.ForecastRow{{
			VendorCode: vendorCode, SKU: "12345", UnitCost: "20",
			TargetYear: 2026, TargetMonth: 3, ForecastValue: "1000.00",
		}},
	}
}

func TestForecastHandler_ImportCommits(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "POST", "/api/forecast/imports", importBody("ACME"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res forecast.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, forecast.ImportOK, res.Status)
	assert.Equal(t, 1, res.Succeeded)

	rec = f.do(t, "GET", "/api/forecast/beliefs?year=2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Beliefs []contracts.ActiveBelief `json:"beliefs"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, int64(100000), list.Beliefs[0].ForecastValue)
}

func TestForecastHandler_PendingLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "POST", "/api/forecast/imports", importBody("NEWCO"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var res forecast.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Pending)
	handle := res.Pending.Handle

	rec = f.do(t, "GET", "/api/forecast/imports/"+handle, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "DELETE", "/api/forecast/imports/"+handle, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "GET", "/api/forecast/imports/"+handle, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "POST", "/api/forecast/imports/"+handle+"/complete", CompleteImportRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastHandler_CompleteWithMapping(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "POST", "/api/forecast/imports", importBody("NEWCO"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var res forecast.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = f.do(t, "POST", "/api/forecast/imports/"+res.Pending.Handle+"/complete", CompleteImportRequest{
		Decisions: map[string]forecast.Decision{
			"NEWCO": {Action: forecast.ActionMap, VendorID: 7},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	beliefs, _ := f.store.ListBeliefs(context.Background(), contracts.BeliefFilter{})
	require.Len(t, beliefs, 1)
	assert.Equal(t, int64(7), beliefs[0].VendorID)
}

func TestForecastHandler_BeliefActions(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "POST", "/api/forecast/imports", importBody("ACME"))
	require.Equal(t, http.StatusOK, rec.Code)

	beliefs, _ := f.store.ListBeliefs(context.Background(), contracts.BeliefFilter{})
	require.Len(t, beliefs, 1)
	path := fmt.Sprintf("/api/forecast/beliefs/%d/", beliefs[0].ID)

	tests := []struct {
		name   string
		action string
		body   interface{}
		want   int
	}{
		{"remove requires reason", "remove", BeliefActionRequest{By: "ops"}, http.StatusBadRequest},
		{"unknown order ref", "match", BeliefActionRequest{OrderRef: "PO-404"}, http.StatusUnprocessableEntity},
		{"missing order ref", "match", BeliefActionRequest{}, http.StatusBadRequest},
		{"bad order type", "order-type", BeliefActionRequest{OrderType: "rush"}, http.StatusBadRequest},
		{"manual match", "match", BeliefActionRequest{OrderRef: "PO-1", By: "ops"}, http.StatusOK},
		{"verify from matched", "verify", BeliefActionRequest{Status: "verified_unmatched"}, http.StatusUnprocessableEntity},
		{"remove", "remove", BeliefActionRequest{Reason: "discontinued", By: "ops"}, http.StatusOK},
		{"unmatch removed", "unmatch", nil, http.StatusUnprocessableEntity},
		{"restore", "restore", nil, http.StatusOK},
		{"unknown action", "explode", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "POST", path+tt.action, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec = f.do(t, "POST", "/api/forecast/beliefs/999/unmatch", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastHandler_AccuracyAndExport(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "GET", "/api/forecast/accuracy?year=2026&horizon=6m", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report forecast.HorizonReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, forecast.Horizon6Months, report.Horizon)
	assert.Len(t, report.Points, 12)

	rec = f.do(t, "GET", "/api/forecast/accuracy?horizon=1y", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", "/api/forecast/accuracy/export?year=2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "accuracy-2026-90d.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestForecastHandler_Sweep(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "POST", "/api/forecast/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res forecast.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 0, res.Checked)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", forecast.ErrBeliefNotFound)))
	assert.Equal(t, http.StatusConflict, statusFor(forecast.ErrRunInProgress))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(forecast.ErrInvalidTransition))
	assert.Equal(t, http.StatusBadRequest, statusFor(forecast.ErrReasonRequired))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("db down")))
}

// memCache in-memory ReportCache
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	builds  int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) GetOrSet(_ context.Context, key string, dest interface{}, _ time.Duration, fn func() (interface{}, error)) error {
	c.mu.Lock()
	data, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		value, err := fn()
		if err != nil {
			return err
		}
		if data, err = json.Marshal(value); err != nil {
			return err
		}
		c.mu.Lock()
		c.entries[key] = data
		c.builds++
		c.mu.Unlock()
	}
	return json.Unmarshal(data, dest)
}

func (c *memCache) DeleteMatching(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}

func TestForecastHandler_WritesInvalidateReportCache(t *testing.T) {
	f := newAPIFixture(t)
	cache := newMemCache()
	f.handler.cache = cache

	accuracy := func() forecast.HorizonReport {
		rec := f.do(t, "GET", "/api/forecast/accuracy?year=2026", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report forecast.HorizonReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		return report
	}

	assert.Equal(t, int64(0), accuracy().Projected)
	rec := f.do(t, "GET", "/api/forecast/drift?year=2026&month=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, cache.builds)

	// 두 번째 조회는 캐시
	accuracy()
	assert.Equal(t, 2, cache.builds)

	rec = f.do(t, "POST", "/api/forecast/imports", importBody("ACME"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, cache.entries)

	assert.Equal(t, int64(100000), accuracy().Projected)

	rec = f.do(t, "POST", "/api/forecast/match", map[string]int{"year": 2026})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, cache.entries)
}
