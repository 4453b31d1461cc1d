package async

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExecFuture is the result of a fire-and-forget operation that only reports an error.
type ExecFuture struct {
	err  error
	done chan struct{}
}

// Done returns a channel closed once the operation has finished.
func (f *ExecFuture) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the operation finishes or ctx is done.
func (f *ExecFuture) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitWithTimeout blocks for at most timeout and returns ErrTimeout if the
// operation is still running.
func (f *ExecFuture) AwaitWithTimeout(timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-f.done:
		return f.err
	case <-t.C:
		return ErrTimeout
	}
}

// IsComplete reports whether the operation has finished.
func (f *ExecFuture) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Exec runs fn on its own goroutine. A pre-cancelled ctx short-circuits
// without calling fn; a panic inside fn is reported as the future's error.
func Exec[T any](ctx context.Context, param T, fn func(context.Context, T) error) *ExecFuture {
	f := &ExecFuture{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("async: panic: %v", r)
			}
		}()

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}

		f.err = fn(ctx, param)
	}()

	return f
}

// ExecAll waits for every future and joins their errors.
func ExecAll(ctx context.Context, futures ...*ExecFuture) error {
	var errs []error
	for _, future := range futures {
		if err := future.Await(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExecAny returns the index and error of the first future to finish.
func ExecAny(ctx context.Context, futures ...*ExecFuture) (int, error) {
	if len(futures) == 0 {
		return -1, ErrNoFutures
	}

	type result struct {
		index int
		err   error
	}
	done := make(chan result, len(futures))

	for i, future := range futures {
		go func(index int, f *ExecFuture) {
			select {
			case <-f.done:
				done <- result{index, f.err}
			case <-ctx.Done():
			}
		}(i, future)
	}

	select {
	case res := <-done:
		return res.index, res.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}
