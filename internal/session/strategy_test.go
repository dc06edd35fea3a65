package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeFirstSuccessWins(t *testing.T) {
	var ran []string
	step := func(name string, ok bool, err error) Strategy {
		return Strategy{Name: name, Attempt: func(context.Context) (bool, error) {
			ran = append(ran, name)
			return ok, err
		}}
	}

	name, err := Cascade(context.Background(), "test", []Strategy{
		step("missing", false, nil),
		step("broken", false, errors.New("selector blew up")),
		step("works", true, nil),
		step("never", true, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, "works", name)
	assert.Equal(t, []string{"missing", "broken", "works"}, ran)
}

func TestCascadeExhausted(t *testing.T) {
	_, err := Cascade(context.Background(), "test", []Strategy{
		{Name: "a", Attempt: func(context.Context) (bool, error) { return false, nil }},
	})
	assert.ErrorIs(t, err, ErrNoStrategy)

	_, err = Cascade(context.Background(), "empty", nil)
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestCascadeFatalStops(t *testing.T) {
	solver := errors.New("solver down")
	reached := false
	_, err := Cascade(context.Background(), "test", []Strategy{
		{Name: "captcha", Attempt: func(context.Context) (bool, error) { return false, Fatal(solver) }},
		{Name: "next", Attempt: func(context.Context) (bool, error) {
			reached = true
			return true, nil
		}},
	})
	assert.ErrorIs(t, err, solver)
	assert.False(t, reached)
	assert.NoError(t, Fatal(nil))
}

func TestCascadeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reached := false
	_, err := Cascade(ctx, "test", []Strategy{
		{Name: "cancels", Attempt: func(context.Context) (bool, error) {
			cancel()
			return false, errors.New("navigation aborted")
		}},
		{Name: "next", Attempt: func(context.Context) (bool, error) {
			reached = true
			return true, nil
		}},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, reached)
}
