package broadcaster

import "errors"

var (
	// Lifecycle
	ErrDestroyed        = errors.New("broadcaster: destroyed")
	ErrAlreadyDestroyed = errors.New("broadcaster: already destroyed")
	ErrFactoryClosed    = errors.New("broadcaster: factory closed")

	// Registry
	ErrNilResource       = errors.New("broadcaster: nil resource")
	ErrDuplicateResource = errors.New("broadcaster: resource already registered")

	// Delivery
	ErrExecutorClosed    = errors.New("broadcaster: executor closed")
	ErrLaneFull          = errors.New("broadcaster: connection queue full")
	ErrQueueFull         = errors.New("broadcaster: dispatch queue full")
	ErrResourceCancelled = errors.New("broadcaster: resource cancelled")
	ErrWritePanic        = errors.New("broadcaster: write panicked")
	ErrShutdownTimeout   = errors.New("broadcaster: shutdown timed out")

	ErrHealthcheckFailed = errors.New("broadcaster: healthcheck failed")
)
