package store

import (
	"context"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

// RedisSnapshotStore keeps the browser session snapshot under one key with
// no expiry; the session itself decides when cookies are stale.
type RedisSnapshotStore struct {
	client *RedisClient
	name   string
}

var _ types.SnapshotStore = (*RedisSnapshotStore)(nil)

func NewRedisSnapshotStore(redisClient *RedisClient, name string) *RedisSnapshotStore {
	if name == "" {
		name = "freepik"
	}
	return &RedisSnapshotStore{client: redisClient, name: name}
}

func (s *RedisSnapshotStore) key() string {
	return s.client.generateKey("session_snapshot", s.name)
}

func (s *RedisSnapshotStore) Load(ctx context.Context) ([]byte, error) {
	return s.client.GetBytes(ctx, s.key())
}

func (s *RedisSnapshotStore) Save(ctx context.Context, data []byte) error {
	return s.client.SetBytes(ctx, s.key(), data, 0)
}

func (s *RedisSnapshotStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key())
}
