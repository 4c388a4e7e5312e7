package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/pkg/redis"
)

const sweepLockName = "sweep:expire"

// RunLocker 배치 실행 배타 락
type RunLocker interface {
	Obtain(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// SweepResult 만료 스윕 결과
type SweepResult struct {
	Checked int       `json:"checked"`
	Expired int       `json:"expired"`
	Failed  int       `json:"failed"`
	Today   time.Time `json:"today"`
	Errors  []string  `json:"errors,omitempty"`
}

// Sweeper 기한 경과 unmatched/partial → expired
type Sweeper struct {
	store   contracts.ForecastStore
	policy  DeadlinePolicy
	locker  RunLocker
	lockTTL time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewSweeper 새 스위퍼 생성
func NewSweeper(store contracts.ForecastStore, policy DeadlinePolicy, locker RunLocker, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		policy:  policy,
		locker:  locker,
		lockTTL: 10 * time.Minute,
		now:     time.Now,
		log:     log.With().Str("component", "forecast.sweeper").Logger(),
	}
}

// WithClock 테스트용 시계 주입
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run 전체 열린 belief 대상 만료 처리
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	release, err := obtainRun(ctx, s.locker, sweepLockName, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			s.log.Warn().Err(err).Msg("failed to release sweep lock")
		}
	}()

	today := truncateDay(s.now())
	beliefs, err := s.store.ListBeliefs(ctx, contracts.BeliefFilter{
		Statuses: []contracts.MatchStatus{contracts.MatchUnmatched, contracts.MatchPartial},
	})
	if err != nil {
		return nil, fmt.Errorf("list open beliefs: %w", err)
	}

	res := &SweepResult{Checked: len(beliefs), Today: today}
	for idx := range beliefs {
		b := &beliefs[idx]
		deadline := s.policy.LiveDeadline(*b)
		if !PastDeadline(today, deadline) {
			continue
		}

		b.MatchStatus = contracts.MatchExpired
		b.UpdatedAt = s.now()
		if err := s.store.SaveBelief(ctx, b); err != nil {
			res.Failed++
			if len(res.Errors) < 50 {
				res.Errors = append(res.Errors, fmt.Sprintf("belief %d: %v", b.ID, err))
			}
			s.log.Error().Err(err).Int64("belief_id", b.ID).Msg("failed to expire belief")
			continue
		}
		res.Expired++
	}

	s.log.Info().
		Time("today", today).
		Int("checked", res.Checked).
		Int("expired", res.Expired).
		Int("failed", res.Failed).
		Msg("expiration sweep completed")

	return res, nil
}

// obtainRun 락 획득, 이미 실행 중이면 ErrRunInProgress
func obtainRun(ctx context.Context, locker RunLocker, name string, ttl time.Duration) (func(context.Context) error, error) {
	if locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	release, err := locker.Obtain(ctx, name, ttl)
	if errors.Is(err, redis.ErrLockHeld) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, name)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain run lock: %w", err)
	}
	return release, nil
}
