package sync

import (
	"context"
	"errors"
)

// Runner executes a single pass of background work, such as a catalog reload.
type Runner interface {
	RunOnce(context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(context.Context) error

func (f RunnerFunc) RunOnce(ctx context.Context) error {
	return f(ctx)
}

// ErrNothingToDo is returned by a runner that skipped its pass because its
// input did not change.
var ErrNothingToDo = errors.New("nothing to do")
