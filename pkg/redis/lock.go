package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock held by another run")

// Locker serializes batch runs (matching, expiration sweeps)
// ⭐ SSOT: 배치 실행 락은 여기서만
//
// Redis가 활성화되어 있으면 redislock으로 인스턴스 간 락을 잡고,
// 비활성화 상태면 프로세스 내부 락으로 대체한다.
type Locker struct {
	client *Client
	rl     *redislock.Client

	mu    sync.Mutex
	local map[string]struct{}
}

// NewLocker creates a new locker
func NewLocker(client *Client) *Locker {
	l := &Locker{
		client: client,
		local:  make(map[string]struct{}),
	}
	if client != nil && client.Enabled() {
		l.rl = redislock.New(client.Redis())
	}
	return l
}

// Obtain tries to take the named lock once, without waiting.
// The returned release func must be called when the run finishes.
func (l *Locker) Obtain(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if l.rl != nil {
		lock, err := l.rl.Obtain(ctx, l.client.Key("lock", name), ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
		}
		if err != nil {
			return nil, fmt.Errorf("obtain lock %s: %w", name, err)
		}
		return func(ctx context.Context) error {
			if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				return fmt.Errorf("release lock %s: %w", name, err)
			}
			return nil
		}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.local[name]; held {
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}
	l.local[name] = struct{}{}

	return func(context.Context) error {
		l.mu.Lock()
		delete(l.local, name)
		l.mu.Unlock()
		return nil
	}, nil
}
