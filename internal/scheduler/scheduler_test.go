package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/merchops/backend/internal/forecast"
	"github.com/wonny/merchops/backend/pkg/logger"
)

type stubJob struct {
	name  string
	calls atomic.Int32
	errs  []error // attempt별 반환값, 소진 후 nil
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return "0 0 2 * * *" }

func (j *stubJob) Run(ctx context.Context) error {
	n := int(j.calls.Add(1)) - 1
	if n < len(j.errs) {
		return j.errs[n]
	}
	return nil
}

func newTestScheduler() *Scheduler {
	return New(logger.Nop(), WithRetry(2, time.Millisecond))
}

func TestScheduler_AddJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&stubJob{name: "b"}))
	require.NoError(t, s.AddJob(&stubJob{name: "a"}))
	assert.Error(t, s.AddJob(&stubJob{name: "a"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
}

func TestScheduler_RetriesUntilSuccess(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "flaky", errs: []error{errors.New("db down")}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), job.calls.Load())

	stats := s.GetJobStats()["flaky"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.NotNil(t, stats.LastSuccess)
}

func TestScheduler_FailsAfterRetries(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	job := &stubJob{name: "broken", errs: []error{boom, boom, boom, boom}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
	assert.Equal(t, int32(3), job.calls.Load())

	history, err := s.GetJobHistory("broken")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)
}

func TestScheduler_SkipsWhenRunInProgress(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "locked", errs: []error{fmt.Errorf("sweep: %w", forecast.ErrRunInProgress)}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("locked")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, int32(1), job.calls.Load())

	stats := s.GetJobStats()["locked"]
	assert.Equal(t, 0, stats.FailureCount)
	assert.Nil(t, stats.LastFailure)
}

func TestScheduler_RunJobUnknown(t *testing.T) {
	s := newTestScheduler()
	assert.Error(t, s.RunJob("nope"))
	_, err := s.RunJobSync("nope")
	assert.Error(t, err)
}

func TestJobHistory_Limit(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+20; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 0.001)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.Empty(t, (&JobHistory{}).GetLatestResults(3))
}
