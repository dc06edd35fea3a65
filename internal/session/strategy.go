package session

import (
	"context"
	"errors"
	"log"
)

// Strategy is one way of getting something done on a page. Attempt returns
// false when the strategy did not apply.
type Strategy struct {
	Name    string
	Attempt func(ctx context.Context) (bool, error)
}

var ErrNoStrategy = errors.New("no strategy succeeded")

type fatalError struct{ err error }

func (f fatalError) Error() string { return f.err.Error() }
func (f fatalError) Unwrap() error { return f.err }

// Fatal marks an Attempt error that must stop the cascade instead of moving
// on to the next strategy.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err}
}

// Cascade runs strategies in order and returns the name of the first that
// succeeds. Ordinary attempt errors are logged and skipped.
func Cascade(ctx context.Context, label string, strategies []Strategy) (string, error) {
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ok, err := s.Attempt(ctx)
		if err != nil {
			var f fatalError
			if errors.As(err, &f) {
				return "", f.err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			log.Printf("Session: %s via %s failed: %v", label, s.Name, err)
			continue
		}
		if ok {
			return s.Name, nil
		}
	}
	return "", ErrNoStrategy
}
