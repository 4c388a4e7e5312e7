package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wonny/merchops/backend/internal/forecast"
)

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor 엔진 에러 → HTTP 상태 코드
func statusFor(err error) int {
	switch {
	case errors.Is(err, forecast.ErrPendingNotFound),
		errors.Is(err, forecast.ErrBeliefNotFound):
		return http.StatusNotFound
	case errors.Is(err, forecast.ErrInvalidTransition),
		errors.Is(err, forecast.ErrInvalidDecision),
		errors.Is(err, forecast.ErrOrderRefNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, forecast.ErrInvalidOrderType),
		errors.Is(err, forecast.ErrReasonRequired),
		errors.Is(err, forecast.ErrNoValidRows):
		return http.StatusBadRequest
	case errors.Is(err, forecast.ErrRunInProgress):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// queryInt 빈 값이면 def
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// queryInt64Ptr 빈 값이면 nil
func queryInt64Ptr(r *http.Request, name string) (*int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
