package async

import (
	"context"
	"sync"
	"time"
)

// maxRecordedErrors caps how many per-step errors a CountdownFuture keeps.
const maxRecordedErrors = 100

// CountdownFuture resolves to a fixed value once a known number of steps have
// reported completion. Each step reports through Complete, successful or not.
// A future expecting zero steps is resolved at construction.
type CountdownFuture[T any] struct {
	value    T
	expected int

	mu        sync.Mutex
	completed int
	failed    int
	errs      []error
	cancelled bool

	done     chan struct{}
	cancelCh chan struct{}
}

// NewCountdownFuture returns a future that resolves to value after expected
// calls to Complete. Negative expectations are treated as zero.
func NewCountdownFuture[T any](value T, expected int) *CountdownFuture[T] {
	if expected < 0 {
		expected = 0
	}
	f := &CountdownFuture[T]{
		value:    value,
		expected: expected,
		done:     make(chan struct{}),
		cancelCh: make(chan struct{}),
	}
	if expected == 0 {
		close(f.done)
	}
	return f
}

// ResolvedFuture returns a future that is already complete with value.
func ResolvedFuture[T any](value T) *CountdownFuture[T] {
	return NewCountdownFuture(value, 0)
}

// Complete records one finished step. A non-nil err marks the step as failed
// but still counts toward completion. Calls after resolution are ignored.
// It returns true for the call that resolved the future.
func (f *CountdownFuture[T]) Complete(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.completed >= f.expected {
		return false
	}
	f.completed++
	if err != nil {
		f.failed++
		if len(f.errs) < maxRecordedErrors {
			f.errs = append(f.errs, err)
		}
	}
	if f.completed == f.expected {
		close(f.done)
		return true
	}
	return false
}

// Cancel releases waiters with ErrCancelled. Steps keep reporting and the
// counters keep advancing. It returns false if the future was already
// resolved or cancelled.
func (f *CountdownFuture[T]) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled || f.completed >= f.expected {
		return false
	}
	f.cancelled = true
	close(f.cancelCh)
	return true
}

// Await blocks until the future resolves, is cancelled, or ctx is done.
func (f *CountdownFuture[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	default:
	}

	select {
	case <-f.done:
		return f.value, nil
	case <-f.cancelCh:
		var zero T
		return zero, ErrCancelled
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitWithTimeout is Await bounded by timeout; it returns ErrTimeout when
// the future is still pending.
func (f *CountdownFuture[T]) AwaitWithTimeout(timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	v, err := f.Await(ctx)
	if err == context.DeadlineExceeded {
		return v, ErrTimeout
	}
	return v, err
}

// Done returns a channel closed on resolution.
func (f *CountdownFuture[T]) Done() <-chan struct{} {
	return f.done
}

// IsComplete reports whether every expected step has completed.
func (f *CountdownFuture[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether Cancel released the waiters.
func (f *CountdownFuture[T]) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Value returns the value the future resolves to, without waiting.
func (f *CountdownFuture[T]) Value() T {
	return f.value
}

func (f *CountdownFuture[T]) Expected() int {
	return f.expected
}

func (f *CountdownFuture[T]) Completed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *CountdownFuture[T]) Failed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// Errors returns the recorded step errors in completion order.
func (f *CountdownFuture[T]) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]error, len(f.errs))
	copy(out, f.errs)
	return out
}
