package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/pkg/redis"
)

func TestStandardDeadline(t *testing.T) {
	assert.Equal(t, date(2025, 11, 30), StandardDeadline(2026, 3))
	assert.Equal(t, date(2025, 9, 30), StandardDeadline(2026, 1))
	assert.Equal(t, date(2026, 9, 30), StandardDeadline(2027, 1))
	assert.Equal(t, date(2026, 1, 31), StandardDeadline(2026, 5))
}

func TestDeadlinePolicy_LiveVsBacktest(t *testing.T) {
	policy := NewDeadlinePolicy(0)
	assert.Equal(t, DefaultMTOGraceDays, policy.MTOGraceDays)

	mto := contracts.ActiveBelief{
		TargetYear:       2026,
		TargetMonth:      3,
		OrderType:        contracts.OrderTypeMTO,
		LastSnapshotDate: date(2026, 1, 5),
	}
	// 2월 말일 + 14일
	assert.Equal(t, date(2026, 3, 14), policy.LiveDeadline(mto))
	// 마지막 스냅샷 + 40일
	assert.Equal(t, date(2026, 2, 14), policy.BacktestDeadline(mto))

	std := mto
	std.OrderType = contracts.OrderTypeStandard
	assert.Equal(t, policy.LiveDeadline(std), policy.BacktestDeadline(std))
}

func TestPastDeadline(t *testing.T) {
	deadline := date(2025, 11, 30)
	assert.False(t, PastDeadline(time.Date(2025, 11, 30, 23, 59, 0, 0, time.UTC), deadline))
	assert.True(t, PastDeadline(date(2025, 12, 1), deadline))
}

func TestSweeper_ExpiresPastDeadline(t *testing.T) {
	store := newMemStore()

	// 2026년 3월 standard, 오늘 2026-01-02 → 기한 2025-11-30 경과
	stale := store.addBelief(scenarioBelief())

	future := scenarioBelief()
	future.SKU = "FUTURE"
	future.TargetMonth = 6
	futureID := store.addBelief(future)

	partial := scenarioBelief()
	partial.SKU = "PARTIAL"
	partial.MatchStatus = contracts.MatchPartial
	ref := "PO-1"
	partial.MatchedOrderRef = &ref
	partialID := store.addBelief(partial)

	matched := scenarioBelief()
	matched.SKU = "DONE"
	matched.MatchStatus = contracts.MatchMatched
	matched.MatchedOrderRef = &ref
	matchedID := store.addBelief(matched)

	sweeper := NewSweeper(store, NewDeadlinePolicy(14), redis.NewLocker(nil), zerolog.Nop()).
		WithClock(fixedClock(time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)))

	res, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, contracts.MatchExpired, store.belief(stale).MatchStatus)
	assert.Equal(t, contracts.MatchUnmatched, store.belief(futureID).MatchStatus)
	assert.Equal(t, contracts.MatchExpired, store.belief(partialID).MatchStatus)
	assert.Equal(t, contracts.MatchMatched, store.belief(matchedID).MatchStatus)
}

func TestSweeper_ForwardOnly(t *testing.T) {
	store := newMemStore()
	id := store.addBelief(scenarioBelief())
	clock := date(2026, 1, 2)
	sweeper := NewSweeper(store, NewDeadlinePolicy(14), redis.NewLocker(nil), zerolog.Nop()).
		WithClock(func() time.Time { return clock })
	ctx := context.Background()

	_, err := sweeper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, contracts.MatchExpired, store.belief(id).MatchStatus)

	// 시계를 되돌려도 자동 복구되지 않음
	clock = date(2025, 10, 1)
	res, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Checked)
	assert.Equal(t, contracts.MatchExpired, store.belief(id).MatchStatus)
}

func TestSweeper_MTOUsesGraceWindow(t *testing.T) {
	store := newMemStore()
	b := scenarioBelief()
	b.OrderType = contracts.OrderTypeMTO
	b.SKU = "Coastal"
	id := store.addBelief(b)
	clock := date(2026, 3, 14)
	sweeper := NewSweeper(store, NewDeadlinePolicy(14), nil, zerolog.Nop()).
		WithClock(func() time.Time { return clock })

	_, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.MatchUnmatched, store.belief(id).MatchStatus)

	clock = date(2026, 3, 15)
	_, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.MatchExpired, store.belief(id).MatchStatus)
}

func TestSweeper_RunInProgress(t *testing.T) {
	locker := redis.NewLocker(nil)
	release, err := locker.Obtain(context.Background(), sweepLockName, time.Minute)
	require.NoError(t, err)

	sweeper := NewSweeper(newMemStore(), NewDeadlinePolicy(14), locker, zerolog.Nop())
	_, err = sweeper.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, release(context.Background()))
	_, err = sweeper.Run(context.Background())
	assert.NoError(t, err)
}
