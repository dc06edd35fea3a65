package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/BatmanBruc/bat-bot-freepik/internal/reporting"
)

// Policy controls how often a crashed run is restarted.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	MaxRetries uint64
}

func DefaultPolicy() Policy {
	return Policy{
		Initial:    30 * time.Second,
		Max:        300 * time.Second,
		MaxRetries: 5,
	}
}

// Run calls fn until it returns nil or ctx is cancelled. A failed run is
// restarted after a delay that doubles up to Max; after MaxRetries
// restarts the last error is returned.
func Run(ctx context.Context, name string, p Policy, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(p.MaxRetries, retry.WithCappedDuration(p.Max, retry.NewExponential(p.Initial)))

	attempt := uint64(0)
	logged := retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := backoff.Next()
		if !stop {
			attempt++
			log.Printf("%s: attempt %d/%d - restarting in %s...", name, attempt, p.MaxRetries, next)
		}
		return next, stop
	})

	err := retry.Do(ctx, logged, func(ctx context.Context) error {
		err := runOnce(ctx, fn)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		log.Printf("%s: crashed with error: %v", name, err)
		reporting.CaptureError(err, name+" crashed")
		return retry.RetryableError(err)
	})
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	log.Printf("%s: maximum retry attempts reached, shutting down", name)
	return err
}

func runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
