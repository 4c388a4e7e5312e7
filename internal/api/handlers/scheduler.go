package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/merchops/backend/internal/scheduler"
	"github.com/wonny/merchops/backend/pkg/logger"
)

// SchedulerHandler exposes in-process job stats and manual triggers
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s *scheduler.Scheduler, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s, logger: log}
}

// GetJobs returns stats for every registered job
// GET /api/scheduler/jobs
func (h *SchedulerHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  h.scheduler.GetAllJobs(),
		"stats": h.scheduler.GetJobStats(),
	})
}

// TriggerJob runs a job immediately in the background
// POST /api/scheduler/jobs/{name}/run
func (h *SchedulerHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.scheduler.RunJob(name); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.WithField("job", name).Info("Job triggered manually")
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"job":     name,
	})
}
