package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/pkg/config"
	"github.com/wonny/merchops/backend/pkg/redis"
)

func TestMemoryPendingStore_Lifecycle(t *testing.T) {
	now := date(2026, 1, 10)
	store := NewMemoryPendingStore(func() time.Time { return now })
	ctx := context.Background()

	p := &PendingImport{Handle: "h1", CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute)}
	require.NoError(t, store.Put(ctx, p))

	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrPendingNotFound)

	now = now.Add(30 * time.Minute)
	_, err = store.Get(ctx, "h1")
	assert.ErrorIs(t, err, ErrPendingNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryPendingStore_Sweep(t *testing.T) {
	base := date(2026, 1, 10)
	store := NewMemoryPendingStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &PendingImport{Handle: "old", ExpiresAt: base.Add(10 * time.Minute)}))
	require.NoError(t, store.Put(ctx, &PendingImport{Handle: "new", ExpiresAt: base.Add(40 * time.Minute)}))

	removed, err := store.Sweep(ctx, base.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestGroupUnresolved(t *testing.T) {
	rows := []ResolvedRow{
		{Row: contracts.ForecastRow{VendorCode: "GLX", VendorName: "Globex"}, Value: 100},
		{Row: contracts.ForecastRow{VendorName: "Initech"}, Value: 50},
		{Row: contracts.ForecastRow{VendorCode: "GLX", VendorName: "Globex Intl"}, Value: 25},
	}

	groups := groupUnresolved(rows)
	require.Len(t, groups, 2)
	assert.Equal(t, "GLX", groups[0].Identifier)
	assert.Equal(t, 2, groups[0].RowCount)
	assert.Equal(t, int64(125), groups[0].TotalValue)
	assert.Equal(t, "Globex", groups[0].VendorName)
	assert.Equal(t, "Initech", groups[1].Identifier)

	summary := (&PendingImport{Groups: groups}).Summary()
	assert.Len(t, summary.Groups, 2)
}

func TestNewRedisPendingStore_RequiresRedis(t *testing.T) {
	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false, Prefix: "test"}})
	require.NoError(t, err)

	_, err = NewRedisPendingStore(client, nil)
	assert.Error(t, err)

	_, err = NewRedisPendingStore(nil, nil)
	assert.Error(t, err)
}
