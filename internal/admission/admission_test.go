package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/queue"
	"github.com/BatmanBruc/bat-bot-freepik/store"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resourceURL = "https://www.freepik.com/premium-photo/mountain-lake_12345.htm"

func subscribe(t *testing.T, s *store.MemoryStore, userID int64) {
	t.Helper()
	ctx := context.Background()
	sub, err := s.CreateSubscription(ctx, userID, types.ServiceFreepik, "monthly", "")
	require.NoError(t, err)
	ok, err := s.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func quotaCount(t *testing.T, s *store.MemoryStore, userID int64) int {
	t.Helper()
	rec, err := s.GetOrInitQuota(context.Background(), userID, types.ServiceFreepik, time.Now())
	require.NoError(t, err)
	return rec.Count
}

func TestAdmitNoSubscriptionMutatesNothing(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.New(5)
	g := New(s, q)

	_, _, err := g.Admit(context.Background(), types.Job{UserID: 1, URL: resourceURL})
	assert.True(t, IsReason(err, NoSubscription))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, quotaCount(t, s, 1))
}

func TestAdmitConsumesQuotaAtEnqueue(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.New(5)
	g := New(s, q)
	subscribe(t, s, 1)

	job, pos, err := g.Admit(context.Background(), types.Job{UserID: 1, ChatID: 1, URL: resourceURL})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, types.ServiceFreepik, job.Service)
	assert.Equal(t, 1, quotaCount(t, s, 1))

	running, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	q.Finish(running.UserID)
	assert.Equal(t, 1, quotaCount(t, s, 1), "completion does not touch quota")
}

func TestAdmitQuotaExceeded(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.New(5)
	g := New(s, q)
	subscribe(t, s, 1)

	for i := 0; i < 10; i++ {
		_, err := s.IncrementQuota(context.Background(), 1, types.ServiceFreepik, time.Now())
		require.NoError(t, err)
	}

	_, _, err := g.Admit(context.Background(), types.Job{UserID: 1, URL: resourceURL})
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, QuotaExceeded, ae.Reason)
	assert.Equal(t, 10, ae.Count)
	assert.Equal(t, 10, ae.Limit)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 10, quotaCount(t, s, 1))
}

func TestAdmitDoubleSubmission(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.New(5)
	g := New(s, q)
	subscribe(t, s, 1)
	ctx := context.Background()

	_, _, err := g.Admit(ctx, types.Job{UserID: 1, URL: resourceURL})
	require.NoError(t, err)

	_, _, err = g.Admit(ctx, types.Job{UserID: 1, URL: resourceURL})
	assert.True(t, IsReason(err, AlreadyQueued))
	assert.Equal(t, 1, q.Len())

	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	_, _, err = g.Admit(ctx, types.Job{UserID: 1, URL: resourceURL})
	assert.True(t, IsReason(err, AlreadyRunning))

	assert.Equal(t, 1, quotaCount(t, s, 1), "rejected submissions do not consume quota")
}

func TestAdmitQueueFull(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.New(1)
	g := New(s, q)
	subscribe(t, s, 1)
	subscribe(t, s, 2)
	ctx := context.Background()

	_, _, err := g.Admit(ctx, types.Job{UserID: 1, URL: resourceURL})
	require.NoError(t, err)
	_, _, err = g.Admit(ctx, types.Job{UserID: 2, URL: resourceURL})
	assert.True(t, IsReason(err, QueueFull))
	assert.Equal(t, 0, quotaCount(t, s, 2))
}

func TestAdmitLicenseOnlySkipsEntitlements(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.New(2)
	g := New(s, q)
	ctx := context.Background()

	_, pos, err := g.Admit(ctx, types.Job{UserID: 3, URL: resourceURL, LicenseOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 0, quotaCount(t, s, 3))

	_, _, err = g.Admit(ctx, types.Job{UserID: 3, URL: resourceURL, LicenseOnly: true})
	assert.True(t, IsReason(err, AlreadyQueued))
}
