package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (with seconds)
	// Examples: "0 0 2 * * *" (every day at 2 AM)
	//           "@every 10m"
	Schedule() string
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"` // 실행 잠금 보유 중
	Error     string        `json:"error,omitempty"`
}

const historyLimit = 100

// JobHistory stores job execution history
type JobHistory struct {
	Results []JobResult
}

// AddResult adds a job result to history
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)

	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// GetLatestResults returns the latest N results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}

	if n == 0 {
		return []JobResult{}
	}

	return h.Results[len(h.Results)-n:]
}

// GetFailedResults returns all failed results (skipped runs are not failures)
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success && !result.Skipped {
			failed = append(failed, result)
		}
	}
	return failed
}

// CountSuccess returns the number of successful runs
func (h *JobHistory) CountSuccess() int {
	n := 0
	for _, result := range h.Results {
		if result.Success {
			n++
		}
	}
	return n
}

// GetSuccessRate returns the success rate (0.0 - 1.0), skipped runs excluded
func (h *JobHistory) GetSuccessRate() float64 {
	attempted := len(h.Results)
	for _, result := range h.Results {
		if result.Skipped {
			attempted--
		}
	}
	if attempted == 0 {
		return 0.0
	}

	return float64(h.CountSuccess()) / float64(attempted)
}
