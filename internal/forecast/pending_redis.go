package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/merchops/backend/pkg/redis"
)

// RedisPendingStore Redis TTL 기반 저장소 (다중 인스턴스에서 핸들 공유)
type RedisPendingStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisPendingStore 새 Redis 저장소 생성
func NewRedisPendingStore(client *redis.Client, now func() time.Time) (*RedisPendingStore, error) {
	if client == nil || !client.Enabled() {
		return nil, fmt.Errorf("redis pending store requires an enabled redis client")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisPendingStore{client: client, now: now}, nil
}

func (s *RedisPendingStore) key(handle string) string {
	return s.client.Key("pending", handle)
}

// Put 만료 시각까지 TTL로 저장
func (s *RedisPendingStore) Put(ctx context.Context, p *PendingImport) error {
	ttl := p.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrPendingNotFound
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending import: %w", err)
	}
	if err := s.client.Redis().Set(ctx, s.key(p.Handle), data, ttl).Err(); err != nil {
		return fmt.Errorf("store pending import: %w", err)
	}
	return nil
}

// Get 조회
func (s *RedisPendingStore) Get(ctx context.Context, handle string) (*PendingImport, error) {
	data, err := s.client.Redis().Get(ctx, s.key(handle)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending import: %w", err)
	}

	var p PendingImport
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending import: %w", err)
	}
	if p.Expired(s.now()) {
		return nil, ErrPendingNotFound
	}
	return &p, nil
}

// Delete 삭제
func (s *RedisPendingStore) Delete(ctx context.Context, handle string) error {
	if err := s.client.Redis().Del(ctx, s.key(handle)).Err(); err != nil {
		return fmt.Errorf("delete pending import: %w", err)
	}
	return nil
}

// Sweep Redis TTL이 만료를 처리하므로 제거할 항목 없음
func (s *RedisPendingStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
