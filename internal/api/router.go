package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/merchops/backend/internal/api/handlers"
	"github.com/wonny/merchops/backend/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
// schedulerHandler가 nil이면 스케줄러 엔드포인트는 등록하지 않음
func NewRouter(forecastHandler *handlers.ForecastHandler, schedulerHandler *handlers.SchedulerHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Forecast reads
	fc := api.PathPrefix("/forecast").Subrouter()
	fc.HandleFunc("/beliefs", forecastHandler.ListBeliefs).Methods("GET")
	fc.HandleFunc("/drift", forecastHandler.GetDrift).Methods("GET")
	fc.HandleFunc("/churn", forecastHandler.GetChurn).Methods("GET")
	fc.HandleFunc("/accuracy", forecastHandler.GetAccuracy).Methods("GET")
	fc.HandleFunc("/accuracy/export", forecastHandler.ExportAccuracy).Methods("GET")

	// Imports
	fc.HandleFunc("/imports", forecastHandler.CreateImport).Methods("POST")
	fc.HandleFunc("/imports/{handle}", forecastHandler.GetImport).Methods("GET")
	fc.HandleFunc("/imports/{handle}", forecastHandler.CancelImport).Methods("DELETE")
	fc.HandleFunc("/imports/{handle}/complete", forecastHandler.CompleteImport).Methods("POST")

	// Batch runs
	fc.HandleFunc("/match", forecastHandler.RunMatch).Methods("POST")
	fc.HandleFunc("/sweep", forecastHandler.RunSweep).Methods("POST")

	// Belief admin
	fc.HandleFunc("/beliefs/{id:[0-9]+}/{action}", forecastHandler.BeliefAction).Methods("POST")

	if schedulerHandler != nil {
		api.HandleFunc("/scheduler/jobs", schedulerHandler.GetJobs).Methods("GET")
		api.HandleFunc("/scheduler/jobs/{name}/run", schedulerHandler.TriggerJob).Methods("POST")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "merchops-forecast-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
