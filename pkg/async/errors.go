package async

import "errors"

var (
	// ErrTimeout is returned by AwaitWithTimeout when the deadline passes first.
	ErrTimeout = errors.New("async: operation timed out")

	// ErrNoFutures is returned by ExecAny when called without futures.
	ErrNoFutures = errors.New("async: no futures provided")

	// ErrCancelled is returned to waiters of a cancelled countdown future.
	ErrCancelled = errors.New("async: future cancelled")
)
