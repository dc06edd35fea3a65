package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

// RedisChatStore keeps per-user conversation state with a sliding TTL.
type RedisChatStore struct {
	client *RedisClient
	ttl    time.Duration
}

var _ types.ChatStateStore = (*RedisChatStore)(nil)

func NewRedisChatStore(redisClient *RedisClient, ttlHours int) *RedisChatStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisChatStore{
		client: redisClient,
		ttl:    ttl,
	}
}

func (s *RedisChatStore) key(userID int64) string {
	return s.client.generateKey("chat_state", fmt.Sprintf("%d", userID))
}

// GetChatState returns an empty state for users with nothing stored.
func (s *RedisChatStore) GetChatState(ctx context.Context, userID int64) (*types.ChatState, error) {
	var st types.ChatState
	if err := s.client.Get(ctx, s.key(userID), &st); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return &types.ChatState{UserID: userID}, nil
		}
		return nil, err
	}
	st.UserID = userID
	return &st, nil
}

func (s *RedisChatStore) SetChatState(ctx context.Context, st *types.ChatState) error {
	st.UpdatedAt = time.Now().UTC()
	return s.client.Set(ctx, s.key(st.UserID), st, s.ttl)
}

func (s *RedisChatStore) ClearChatState(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.key(userID))
}
