package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/merchops/backend/internal/forecast"
	"github.com/wonny/merchops/backend/pkg/logger"
)

// SweepRunner 만료 스윕 실행기
type SweepRunner interface {
	Run(ctx context.Context) (*forecast.SweepResult, error)
}

// MatchRunner 매칭 실행기
type MatchRunner interface {
	Run(ctx context.Context, year int, vendorID *int64) (*forecast.MatchResult, error)
}

// PendingCleaner 만료 보류 import 정리
type PendingCleaner interface {
	CleanupPending(ctx context.Context) (int, error)
}

// ExpirationSweepJob marks past-deadline beliefs as expired
type ExpirationSweepJob struct {
	sweeper  SweepRunner
	schedule string
	logger   *logger.Logger
}

// NewExpirationSweepJob creates a new expiration sweep job
func NewExpirationSweepJob(sweeper SweepRunner, schedule string, log *logger.Logger) *ExpirationSweepJob {
	return &ExpirationSweepJob{sweeper: sweeper, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *ExpirationSweepJob) Name() string {
	return "expiration_sweep"
}

// Schedule returns the cron schedule
func (j *ExpirationSweepJob) Schedule() string {
	return j.schedule
}

// Run executes the sweep
func (j *ExpirationSweepJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled expiration sweep")

	result, err := j.sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("expiration sweep: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"checked": result.Checked,
		"expired": result.Expired,
		"failed":  result.Failed,
	}).Info("Expiration sweep completed")

	return nil
}

// MatchingJob reconciles the current year's beliefs against orders
type MatchingJob struct {
	matcher  MatchRunner
	schedule string
	now      func() time.Time
	logger   *logger.Logger
}

// NewMatchingJob creates a new matching job
func NewMatchingJob(matcher MatchRunner, schedule string, log *logger.Logger) *MatchingJob {
	return &MatchingJob{matcher: matcher, schedule: schedule, now: time.Now, logger: log}
}

// Name returns the job name
func (j *MatchingJob) Name() string {
	return "matching"
}

// Schedule returns the cron schedule
func (j *MatchingJob) Schedule() string {
	return j.schedule
}

// Run executes matching for the current year, all vendors
func (j *MatchingJob) Run(ctx context.Context) error {
	year := j.now().Year()
	j.logger.WithField("year", year).Info("Starting scheduled matching")

	result, err := j.matcher.Run(ctx, year, nil)
	if err != nil {
		return fmt.Errorf("matching %d: %w", year, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"year":    year,
		"checked": result.Checked,
		"matched": result.Matched,
		"partial": result.Partial,
		"suspect": result.Suspect,
		"failed":  result.Failed,
	}).Info("Matching completed")

	return nil
}

// PendingCleanupJob drops expired pending imports
type PendingCleanupJob struct {
	cleaner  PendingCleaner
	schedule string
	logger   *logger.Logger
}

// NewPendingCleanupJob creates a new pending cleanup job
func NewPendingCleanupJob(cleaner PendingCleaner, schedule string, log *logger.Logger) *PendingCleanupJob {
	return &PendingCleanupJob{cleaner: cleaner, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *PendingCleanupJob) Name() string {
	return "pending_cleanup"
}

// Schedule returns the cron schedule (every 10 minutes by default)
func (j *PendingCleanupJob) Schedule() string {
	return j.schedule
}

// Run executes the cleanup
func (j *PendingCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled pending cleanup")

	count, err := j.cleaner.CleanupPending(ctx)
	if err != nil {
		return fmt.Errorf("pending cleanup: %w", err)
	}

	if count > 0 {
		j.logger.WithField("removed", count).Info("Pending cleanup completed")
	}

	return nil
}
