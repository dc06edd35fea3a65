package admission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/queue"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/google/uuid"
)

type Reason string

const (
	NoSubscription Reason = "no_subscription"
	QuotaExceeded  Reason = "quota_exceeded"
	AlreadyRunning Reason = "already_running"
	AlreadyQueued  Reason = "already_queued"
	QueueFull      Reason = "queue_full"
)

// Error is a rejected admission. Count and Limit are set for QuotaExceeded.
type Error struct {
	Reason Reason
	Count  int
	Limit  int
}

func (e *Error) Error() string {
	if e.Reason == QuotaExceeded {
		return fmt.Sprintf("admission rejected: %s (%d/%d)", e.Reason, e.Count, e.Limit)
	}
	return "admission rejected: " + string(e.Reason)
}

// IsReason reports whether err is an admission Error with reason r.
func IsReason(err error, r Reason) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Reason == r
}

// Store is the part of the entitlement store the gate reads and writes.
type Store interface {
	GetActiveSubscription(ctx context.Context, userID int64, service string) (*types.Subscription, error)
	GetOrInitQuota(ctx context.Context, userID int64, service string, day time.Time) (*types.QuotaRecord, error)
	IncrementQuota(ctx context.Context, userID int64, service string, day time.Time) (bool, error)
}

type Enqueuer interface {
	Enqueue(job types.Job) (int, error)
}

type Gate struct {
	store Store
	queue Enqueuer
	now   func() time.Time
}

func New(store Store, q Enqueuer) *Gate {
	return &Gate{
		store: store,
		queue: q,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Admit checks a job against entitlements and queue state and enqueues it.
// A full job consumes one unit of today's quota on success; license-only
// follow-ups skip the entitlement checks and consume nothing.
func (g *Gate) Admit(ctx context.Context, job types.Job) (types.Job, int, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if strings.TrimSpace(job.Service) == "" {
		job.Service = types.ServiceFreepik
	}
	now := g.now()
	job.EnqueuedAt = now

	if !job.LicenseOnly {
		if _, err := g.store.GetActiveSubscription(ctx, job.UserID, job.Service); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return job, 0, &Error{Reason: NoSubscription}
			}
			return job, 0, fmt.Errorf("check subscription: %w", err)
		}
		rec, err := g.store.GetOrInitQuota(ctx, job.UserID, job.Service, now)
		if err != nil {
			return job, 0, fmt.Errorf("check quota: %w", err)
		}
		if !rec.Allows() {
			return job, 0, &Error{Reason: QuotaExceeded, Count: rec.Count, Limit: rec.Limit}
		}
	}

	pos, err := g.queue.Enqueue(job)
	switch {
	case errors.Is(err, queue.ErrAlreadyRunning):
		return job, 0, &Error{Reason: AlreadyRunning}
	case errors.Is(err, queue.ErrAlreadyQueued):
		return job, 0, &Error{Reason: AlreadyQueued}
	case errors.Is(err, queue.ErrFull):
		return job, 0, &Error{Reason: QueueFull}
	case err != nil:
		return job, 0, err
	}

	if !job.LicenseOnly {
		if _, err := g.store.IncrementQuota(ctx, job.UserID, job.Service, now); err != nil {
			log.Printf("Admission: failed to increment quota for user %d: %v", job.UserID, err)
		}
	}
	return job, pos, nil
}
