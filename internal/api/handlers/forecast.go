package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/internal/export"
	"github.com/wonny/merchops/backend/internal/forecast"
	"github.com/wonny/merchops/backend/pkg/logger"
	"github.com/wonny/merchops/backend/pkg/redis"
)

const (
	defaultBeliefLimit = 200
	maxBeliefLimit     = 1000
	defaultChurnLimit  = 20
)

// ForecastHandler handles forecast reconciliation endpoints
// ⭐ SSOT: Forecast API 핸들러는 이 구조체에서만
type ForecastHandler struct {
	store    contracts.ForecastStore
	importer *forecast.Importer
	matcher  *forecast.Matcher
	sweeper  *forecast.Sweeper
	admin    *forecast.Admin
	reporter *forecast.Reporter
	cache    ReportCache
	now      func() time.Time
	logger   *logger.Logger
}

// ForecastServices 핸들러가 위임하는 엔진 컴포넌트 묶음
type ForecastServices struct {
	Store    contracts.ForecastStore
	Importer *forecast.Importer
	Matcher  *forecast.Matcher
	Sweeper  *forecast.Sweeper
	Admin    *forecast.Admin
	Reporter *forecast.Reporter
	Cache    ReportCache // nil이면 캐시 없이 매번 계산
}

// ReportCache 리포트 응답 캐시 (pkg/redis.Cache)
type ReportCache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error
	DeleteMatching(ctx context.Context, pattern string) (int, error)
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(svc ForecastServices, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		store:    svc.Store,
		importer: svc.Importer,
		matcher:  svc.Matcher,
		sweeper:  svc.Sweeper,
		admin:    svc.Admin,
		reporter: svc.Reporter,
		cache:    svc.Cache,
		now:      time.Now,
		logger:   log,
	}
}

// ListBeliefs returns active beliefs for the dashboard
// GET /api/forecast/beliefs?year=&vendor_id=&month=&status=&order_type=&brand=&limit=&offset=
func (h *ForecastHandler) ListBeliefs(w http.ResponseWriter, r *http.Request) {
	f, err := h.beliefFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	beliefs, err := h.store.ListBeliefs(r.Context(), f)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list beliefs")
		respondError(w, http.StatusInternalServerError, "failed to list beliefs")
		return
	}
	if beliefs == nil {
		beliefs = []contracts.ActiveBelief{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"beliefs": beliefs,
		"count":   len(beliefs),
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

func (h *ForecastHandler) beliefFilter(r *http.Request) (contracts.BeliefFilter, error) {
	q := r.URL.Query()
	f := contracts.BeliefFilter{Brand: q.Get("brand")}

	var err error
	if f.Year, err = queryInt(r, "year", h.now().Year()); err != nil {
		return f, fmt.Errorf("invalid year")
	}
	if f.Month, err = queryInt(r, "month", 0); err != nil || f.Month < 0 || f.Month > 12 {
		return f, fmt.Errorf("invalid month")
	}
	if f.VendorID, err = queryInt64Ptr(r, "vendor_id"); err != nil {
		return f, fmt.Errorf("invalid vendor_id")
	}
	if s := q.Get("order_type"); s != "" {
		ot, ok := contracts.ParseOrderType(s)
		if !ok {
			return f, fmt.Errorf("invalid order_type (valid: standard, make-to-order)")
		}
		f.OrderType = ot
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st := contracts.MatchStatus(strings.TrimSpace(part))
			if !st.Valid() {
				return f, fmt.Errorf("invalid status %q", part)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if f.Limit, err = queryInt(r, "limit", defaultBeliefLimit); err != nil || f.Limit <= 0 {
		return f, fmt.Errorf("invalid limit")
	}
	if f.Limit > maxBeliefLimit {
		f.Limit = maxBeliefLimit
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil || f.Offset < 0 {
		return f, fmt.Errorf("invalid offset")
	}
	return f, nil
}

// GetDrift returns the forecast drift series for one target month
// GET /api/forecast/drift?year=&month=&vendor_id=&sku=
func (h *ForecastHandler) GetDrift(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", h.now().Year())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := queryInt(r, "month", 0)
	if err != nil || month < 1 || month > 12 {
		respondError(w, http.StatusBadRequest, "month is required (1-12)")
		return
	}
	vendorID, err := queryInt64Ptr(r, "vendor_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid vendor_id")
		return
	}

	query := forecast.DriftQuery{Year: year, Month: month, VendorID: vendorID, SKU: r.URL.Query().Get("sku")}
	build := func() (interface{}, error) {
		return h.reporter.Drift(r.Context(), query)
	}

	var series forecast.DriftSeries
	if h.cache != nil {
		var vid int64
		if vendorID != nil {
			vid = *vendorID
		}
		err = h.cache.GetOrSet(r.Context(), redis.DriftKey(year, month, vid, query.SKU), &series, redis.TTLShort, build)
	} else {
		var v interface{}
		v, err = build()
		if err == nil {
			series = *v.(*forecast.DriftSeries)
		}
	}
	if err != nil {
		h.logger.WithError(err).WithField("month", month).Error("Failed to build drift series")
		respondError(w, statusFor(err), "failed to build drift series")
		return
	}

	respondJSON(w, http.StatusOK, series)
}

// GetChurn returns the items whose forecast moved the most
// GET /api/forecast/churn?year=&month=&limit=
func (h *ForecastHandler) GetChurn(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", h.now().Year())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := queryInt(r, "month", 0)
	if err != nil || month < 1 || month > 12 {
		respondError(w, http.StatusBadRequest, "month is required (1-12)")
		return
	}
	limit, err := queryInt(r, "limit", defaultChurnLimit)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	leaders, err := h.reporter.ChurnLeaders(r.Context(), year, month, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to rank churn")
		respondError(w, statusFor(err), "failed to rank churn")
		return
	}
	if leaders == nil {
		leaders = []forecast.ChurnEntry{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"year":    year,
		"month":   month,
		"entries": leaders,
	})
}

// GetAccuracy returns horizon accuracy for a year (cached 1 minute)
// GET /api/forecast/accuracy?year=&horizon=90d|6m&order_type=&as_of=
func (h *ForecastHandler) GetAccuracy(w http.ResponseWriter, r *http.Request) {
	report, status, err := h.accuracyReport(r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ExportAccuracy streams the accuracy report as an xlsx workbook
// GET /api/forecast/accuracy/export?year=&horizon=&order_type=&month=
func (h *ForecastHandler) ExportAccuracy(w http.ResponseWriter, r *http.Request) {
	report, status, err := h.accuracyReport(r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	wb, err := export.NewWorkbook()
	if err != nil {
		h.logger.WithError(err).Error("Failed to create workbook")
		respondError(w, http.StatusInternalServerError, "failed to create workbook")
		return
	}
	defer wb.Close()

	if err := wb.AddAccuracy(report); err != nil {
		h.logger.WithError(err).Error("Failed to write accuracy sheet")
		respondError(w, http.StatusInternalServerError, "failed to write workbook")
		return
	}

	// month가 있으면 drift 시트 추가
	if month, err := queryInt(r, "month", 0); err == nil && month >= 1 && month <= 12 {
		series, err := h.reporter.Drift(r.Context(), forecast.DriftQuery{Year: report.Year, Month: month})
		if err != nil {
			h.logger.WithError(err).Error("Failed to build drift series")
			respondError(w, http.StatusInternalServerError, "failed to build drift series")
			return
		}
		if err := wb.AddDrift(series); err != nil {
			h.logger.WithError(err).Error("Failed to write drift sheet")
			respondError(w, http.StatusInternalServerError, "failed to write workbook")
			return
		}
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+export.AccuracyFilename(report))
	if _, err := wb.WriteTo(w); err != nil {
		h.logger.WithError(err).Error("Failed to stream workbook")
	}
}

func (h *ForecastHandler) accuracyReport(r *http.Request) (*forecast.HorizonReport, int, error) {
	q := r.URL.Query()

	year, err := queryInt(r, "year", h.now().Year())
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid year")
	}
	horizon, err := forecast.ParseHorizon(q.Get("horizon"))
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	var orderType contracts.OrderType
	if s := q.Get("order_type"); s != "" {
		ot, ok := contracts.ParseOrderType(s)
		if !ok {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid order_type (valid: standard, make-to-order)")
		}
		orderType = ot
	}

	query := forecast.HorizonQuery{Year: year, Horizon: horizon, OrderType: orderType}
	if s := q.Get("as_of"); s != "" {
		asOf, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid as_of (want YYYY-MM-DD)")
		}
		query.AsOf = asOf
	}

	build := func() (interface{}, error) {
		return h.reporter.HorizonAccuracy(r.Context(), query)
	}

	var report forecast.HorizonReport
	if query.AsOf.IsZero() && h.cache != nil {
		key := redis.HorizonAccuracyKey(year, string(horizon), string(orderType))
		err = h.cache.GetOrSet(r.Context(), key, &report, redis.TTLShort, build)
	} else {
		var v interface{}
		v, err = build()
		if err == nil {
			report = *v.(*forecast.HorizonReport)
		}
	}
	if err != nil {
		h.logger.WithError(err).WithField("year", year).Error("Failed to build accuracy report")
		return nil, statusFor(err), fmt.Errorf("failed to build accuracy report")
	}
	return &report, http.StatusOK, nil
}

// invalidateReports drops cached reports after a forecast write
func (h *ForecastHandler) invalidateReports(ctx context.Context) {
	if h.cache == nil {
		return
	}
	for _, pattern := range redis.ReportKeyPatterns {
		if _, err := h.cache.DeleteMatching(ctx, pattern); err != nil {
			h.logger.WithError(err).WithField("pattern", pattern).Warn("Failed to invalidate report cache")
		}
	}
}

// CreateImport accepts normalized forecast rows
// POST /api/forecast/imports
func (h *ForecastHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req forecast.ImportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		respondError(w, http.StatusBadRequest, "rows are required")
		return
	}

	res, err := h.importer.Propose(r.Context(), req)
	if err != nil {
		h.logger.WithError(err).WithField("rows", len(req.Rows)).Error("Failed to import forecast")
		respondError(w, statusFor(err), "failed to import forecast")
		return
	}
	if res.Succeeded > 0 {
		h.invalidateReports(r.Context())
	}

	respondJSON(w, importStatusCode(res), res)
}

// GetImport returns the review summary of a pending import
// GET /api/forecast/imports/{handle}
func (h *ForecastHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	summary, err := h.importer.Pending(r.Context(), handle)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// CompleteImportRequest vendor decisions keyed by group identifier
type CompleteImportRequest struct {
	Decisions map[string]forecast.Decision `json:"decisions"`
}

// CompleteImport applies vendor decisions and commits
// POST /api/forecast/imports/{handle}/complete
func (h *ForecastHandler) CompleteImport(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	var req CompleteImportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.importer.Complete(r.Context(), handle, req.Decisions)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).WithField("handle", handle).Error("Failed to complete import")
		}
		respondError(w, status, err.Error())
		return
	}
	if res.Succeeded > 0 {
		h.invalidateReports(r.Context())
	}

	respondJSON(w, importStatusCode(res), res)
}

// CancelImport discards a pending import
// DELETE /api/forecast/imports/{handle}
func (h *ForecastHandler) CancelImport(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	if err := h.importer.Cancel(r.Context(), handle); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"handle":  handle,
	})
}

func importStatusCode(res *forecast.ImportResult) int {
	switch res.Status {
	case forecast.ImportPendingReview:
		return http.StatusAccepted
	case forecast.ImportFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

// MatchRequest matching scope
type MatchRequest struct {
	Year     int    `json:"year"`
	VendorID *int64 `json:"vendor_id,omitempty"`
}

// RunMatch reconciles beliefs against orders
// POST /api/forecast/match
func (h *ForecastHandler) RunMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.Year == 0 {
		req.Year = h.now().Year()
	}

	res, err := h.matcher.Run(r.Context(), req.Year, req.VendorID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).WithField("year", req.Year).Error("Matching failed")
		}
		respondError(w, status, err.Error())
		return
	}
	h.invalidateReports(r.Context())

	respondJSON(w, http.StatusOK, res)
}

// RunSweep expires past-deadline beliefs
// POST /api/forecast/sweep
func (h *ForecastHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Run(r.Context())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).Error("Expiration sweep failed")
		}
		respondError(w, status, err.Error())
		return
	}
	h.invalidateReports(r.Context())

	respondJSON(w, http.StatusOK, res)
}

// BeliefActionRequest body shared by belief admin actions
type BeliefActionRequest struct {
	By        string `json:"by"`
	OrderRef  string `json:"order_ref"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	Note      string `json:"note"`
	OrderType string `json:"order_type"`
	Comment   string `json:"comment"`
}

// BeliefAction applies an admin action to one belief
// POST /api/forecast/beliefs/{id}/{action}
func (h *ForecastHandler) BeliefAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}

	var req BeliefActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.By == "" {
		req.By = r.Header.Get("X-Actor")
	}

	ctx := r.Context()
	var belief *contracts.ActiveBelief

	switch action := vars["action"]; action {
	case "unmatch":
		belief, err = h.admin.Unmatch(ctx, id, req.By)
	case "match":
		if strings.TrimSpace(req.OrderRef) == "" {
			respondError(w, http.StatusBadRequest, "order_ref is required")
			return
		}
		belief, err = h.admin.ManualMatch(ctx, id, req.OrderRef, req.By)
	case "remove":
		belief, err = h.admin.Remove(ctx, id, req.Reason, req.By)
	case "verify":
		belief, err = h.admin.Verify(ctx, id, contracts.MatchStatus(req.Status), req.Note, req.By)
	case "restore":
		belief, err = h.admin.Restore(ctx, id, req.By)
	case "order-type":
		ot, ok := contracts.ParseOrderType(req.OrderType)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid order_type (valid: standard, make-to-order)")
			return
		}
		belief, err = h.admin.UpdateOrderType(ctx, id, ot)
	case "comment":
		belief, err = h.admin.UpdateComment(ctx, id, req.Comment, req.By)
	default:
		respondError(w, http.StatusNotFound, "unknown action "+action)
		return
	}

	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).WithFields(map[string]interface{}{
				"id":     id,
				"action": vars["action"],
			}).Error("Belief action failed")
		}
		respondError(w, status, err.Error())
		return
	}
	h.invalidateReports(ctx)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    belief,
	})
}
