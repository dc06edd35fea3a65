package store

import (
	"context"
	"sync"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

type MemoryChatStore struct {
	mu     sync.Mutex
	states map[int64]types.ChatState
}

var _ types.ChatStateStore = (*MemoryChatStore)(nil)

func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{states: make(map[int64]types.ChatState)}
}

func (s *MemoryChatStore) GetChatState(ctx context.Context, userID int64) (*types.ChatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return &types.ChatState{UserID: userID}, nil
	}
	if st.PendingLicense != nil {
		job := *st.PendingLicense
		st.PendingLicense = &job
	}
	return &st, nil
}

func (s *MemoryChatStore) SetChatState(ctx context.Context, st *types.ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.UpdatedAt = time.Now().UTC()
	cp := *st
	if st.PendingLicense != nil {
		job := *st.PendingLicense
		cp.PendingLicense = &job
	}
	s.states[st.UserID] = cp
	return nil
}

func (s *MemoryChatStore) ClearChatState(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, userID)
	return nil
}
