package forecast

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/merchops/backend/internal/contracts"
)

func newTestAdmin(store *memStore, orders *fakeOrders) *Admin {
	return NewAdmin(store, orders, zerolog.Nop()).WithClock(fixedClock(matchNow))
}

func matchedBelief() contracts.ActiveBelief {
	b := scenarioBelief()
	ref := "PO-1001"
	b.MatchStatus = contracts.MatchMatched
	b.MatchedOrderRef = &ref
	b.ActualQuantity = int64Ptr(60)
	b.ActualValue = int64Ptr(130000)
	b.VariancePct = intPtr(30)
	return b
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to contracts.MatchStatus
		want     bool
	}{
		{contracts.MatchUnmatched, contracts.MatchExpired, true},
		{contracts.MatchPartial, contracts.MatchMatched, true},
		{contracts.MatchMatched, contracts.MatchUnmatched, true},
		{contracts.MatchMatched, contracts.MatchExpired, false},
		{contracts.MatchExpired, contracts.MatchVerifiedUnmatched, true},
		{contracts.MatchVerifiedUnmatched, contracts.MatchMatched, false},
		{contracts.MatchRemoved, contracts.MatchUnmatched, true},
		{contracts.MatchRemoved, contracts.MatchRemoved, false},
		{contracts.MatchExpired, contracts.MatchPartial, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s → %s", tt.from, tt.to)
	}
}

func TestAdmin_Unmatch(t *testing.T) {
	store := newMemStore()
	id := store.addBelief(matchedBelief())
	admin := newTestAdmin(store, newFakeOrders())

	b, err := admin.Unmatch(context.Background(), id, "kim")
	require.NoError(t, err)

	assert.Equal(t, contracts.MatchUnmatched, b.MatchStatus)
	assert.Nil(t, b.MatchedOrderRef)
	assert.Nil(t, b.ActualValue)
	assert.Nil(t, b.VariancePct)
	assert.Equal(t, b, ptr(store.belief(id)))

	_, err = admin.Unmatch(context.Background(), id, "kim")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdmin_ManualMatch(t *testing.T) {
	store := newMemStore()
	orders := newFakeOrders()
	orders.refs["7|PO-2000"] = contracts.OrderAggregate{TotalQuantity: 45, TotalValue: 90000}

	expired := scenarioBelief()
	expired.MatchStatus = contracts.MatchExpired
	id := store.addBelief(expired)
	admin := newTestAdmin(store, orders)

	b, err := admin.ManualMatch(context.Background(), id, "PO-2000", "lee")
	require.NoError(t, err)
	assert.Equal(t, contracts.MatchMatched, b.MatchStatus)
	assert.Equal(t, "PO-2000", *b.MatchedOrderRef)
	assert.Equal(t, int64(-5), *b.QuantityVariance)
	assert.Equal(t, -10, *b.VariancePct)

	_, err = admin.ManualMatch(context.Background(), id, "PO-404", "lee")
	assert.ErrorIs(t, err, ErrOrderRefNotFound)
}

func TestAdmin_ManualMatchRejectsRemoved(t *testing.T) {
	store := newMemStore()
	removed := scenarioBelief()
	removed.MatchStatus = contracts.MatchRemoved
	id := store.addBelief(removed)

	_, err := newTestAdmin(store, newFakeOrders()).ManualMatch(context.Background(), id, "PO-1", "lee")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdmin_RemoveRequiresReason(t *testing.T) {
	store := newMemStore()
	id := store.addBelief(scenarioBelief())
	admin := newTestAdmin(store, newFakeOrders())

	_, err := admin.Remove(context.Background(), id, "  ", "kim")
	assert.ErrorIs(t, err, ErrReasonRequired)

	b, err := admin.Remove(context.Background(), id, "discontinued SKU", "kim")
	require.NoError(t, err)
	assert.Equal(t, contracts.MatchRemoved, b.MatchStatus)
	assert.Equal(t, "discontinued SKU", *b.StatusNote)
	assert.Equal(t, "kim", *b.StatusBy)

	_, err = admin.Remove(context.Background(), id, "again", "kim")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdmin_VerifyFreezesMinus100(t *testing.T) {
	store := newMemStore()
	expired := scenarioBelief()
	expired.MatchStatus = contracts.MatchExpired
	id := store.addBelief(expired)
	admin := newTestAdmin(store, newFakeOrders())

	b, err := admin.Verify(context.Background(), id, contracts.MatchVerifiedUnmatched, "vendor confirmed no PO", "park")
	require.NoError(t, err)

	assert.Equal(t, contracts.MatchVerifiedUnmatched, b.MatchStatus)
	assert.Equal(t, int64(0), *b.ActualValue)
	assert.Equal(t, int64(-100000), *b.ValueVariance)
	assert.Equal(t, -100, *b.VariancePct)
	assert.Nil(t, b.MatchedOrderRef)
	assert.Equal(t, "vendor confirmed no PO", *b.StatusNote)

	// unmatched 상태로 검증하면 복구
	b, err = admin.Verify(context.Background(), id, contracts.MatchUnmatched, "", "park")
	require.NoError(t, err)
	assert.Equal(t, contracts.MatchUnmatched, b.MatchStatus)
	assert.Nil(t, b.ActualValue)
	assert.Nil(t, b.StatusNote)

	_, err = admin.Verify(context.Background(), id, contracts.MatchMatched, "", "park")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdmin_VerifyZeroForecastKeepsPctNull(t *testing.T) {
	store := newMemStore()
	b := scenarioBelief()
	b.ForecastValue = 0
	id := store.addBelief(b)

	got, err := newTestAdmin(store, newFakeOrders()).Verify(context.Background(), id, contracts.MatchVerifiedUnmatched, "", "park")
	require.NoError(t, err)
	assert.Nil(t, got.VariancePct)
	assert.Equal(t, int64(0), *got.ValueVariance)
}

func TestAdmin_Restore(t *testing.T) {
	store := newMemStore()
	admin := newTestAdmin(store, newFakeOrders())

	for _, status := range []contracts.MatchStatus{contracts.MatchExpired, contracts.MatchVerifiedUnmatched, contracts.MatchRemoved} {
		b := scenarioBelief()
		b.MatchStatus = status
		id := store.addBelief(b)

		got, err := admin.Restore(context.Background(), id, "kim")
		require.NoError(t, err, status)
		assert.Equal(t, contracts.MatchUnmatched, got.MatchStatus)
	}

	id := store.addBelief(matchedBelief())
	_, err := admin.Restore(context.Background(), id, "kim")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdmin_UpdateOrderTypeAndComment(t *testing.T) {
	store := newMemStore()
	seed := scenarioBelief()
	seed.Collection = "Coastal"
	id := store.addBelief(seed)
	noCollection := store.addBelief(scenarioBelief())
	admin := newTestAdmin(store, newFakeOrders())
	ctx := context.Background()

	b, err := admin.UpdateOrderType(ctx, id, contracts.OrderTypeMTO)
	require.NoError(t, err)
	assert.Equal(t, contracts.OrderTypeMTO, b.OrderType)
	assert.Equal(t, "Coastal", b.ItemKey())

	_, err = admin.UpdateOrderType(ctx, noCollection, contracts.OrderTypeMTO)
	assert.ErrorIs(t, err, ErrInvalidOrderType)
	assert.Equal(t, contracts.OrderTypeStandard, store.belief(noCollection).OrderType)

	_, err = admin.UpdateOrderType(ctx, id, "weekly")
	assert.ErrorIs(t, err, ErrInvalidOrderType)

	b, err = admin.UpdateComment(ctx, id, "late sample approval", "choi")
	require.NoError(t, err)
	assert.Equal(t, "late sample approval", *b.Comment)
	assert.Equal(t, "choi", *b.CommentedBy)

	b, err = admin.UpdateComment(ctx, id, "", "choi")
	require.NoError(t, err)
	assert.Nil(t, b.Comment)
	assert.Nil(t, b.CommentedBy)
}

func TestAdmin_BeliefNotFound(t *testing.T) {
	admin := newTestAdmin(newMemStore(), newFakeOrders())

	_, err := admin.Unmatch(context.Background(), 42, "kim")
	assert.ErrorIs(t, err, ErrBeliefNotFound)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func ptr(b contracts.ActiveBelief) *contracts.ActiveBelief { return &b }
