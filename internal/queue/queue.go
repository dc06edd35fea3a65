package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

var (
	ErrFull           = errors.New("queue is full")
	ErrAlreadyQueued  = errors.New("user already has a queued job")
	ErrAlreadyRunning = errors.New("user already has a running job")
)

const PhaseStarting = "Starting download..."

// Queue is the bounded FIFO of download jobs together with the map of
// running jobs. Both live under one mutex that is never held across I/O.
type Queue struct {
	mu       sync.Mutex
	items    []types.Job
	capacity int
	active   map[int64]string
	ready    chan struct{}
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10
	}
	return &Queue{
		items:    make([]types.Job, 0, capacity),
		capacity: capacity,
		active:   make(map[int64]string),
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue appends job unless its user is running, already queued, or the
// queue is full. It returns the 1-based position of the job.
func (q *Queue) Enqueue(job types.Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[job.UserID]; ok {
		return 0, ErrAlreadyRunning
	}
	for _, it := range q.items {
		if it.UserID == job.UserID {
			return 0, ErrAlreadyQueued
		}
	}
	if len(q.items) >= q.capacity {
		return 0, ErrFull
	}
	q.items = append(q.items, job)

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return len(q.items), nil
}

// Dequeue blocks until a job is available or ctx is done. The job's user is
// marked active before the lock is released, so a user is always either
// queued, running, or idle.
func (q *Queue) Dequeue(ctx context.Context) (types.Job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = types.Job{}
			q.items = q.items[1:]
			q.active[job.UserID] = PhaseStarting
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.Job{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// SetPhase updates the status text of a running job.
func (q *Queue) SetPhase(userID int64, phase string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active[userID] = phase
}

// Finish removes the running entry for userID.
func (q *Queue) Finish(userID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, userID)
}

func (q *Queue) Status(userID int64) types.Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	if phase, ok := q.active[userID]; ok {
		return types.Status{Kind: types.StatusRunning, Phase: phase}
	}
	for i, it := range q.items {
		if it.UserID == userID {
			return types.Status{Kind: types.StatusQueued, Position: i + 1, Length: len(q.items)}
		}
	}
	return types.Status{Kind: types.StatusIdle}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// Active returns a copy of the running jobs' phases.
func (q *Queue) Active() map[int64]string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[int64]string, len(q.active))
	for k, v := range q.active {
		out[k] = v
	}
	return out
}
