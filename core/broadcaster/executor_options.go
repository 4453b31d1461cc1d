package broadcaster

import (
	"log/slog"
	"time"
)

// ExecutorConfig holds dispatch tuning loaded from the environment.
type ExecutorConfig struct {
	// Workers bounds how many connection queues drain concurrently.
	Workers int `env:"DISPATCH_WORKERS" envDefault:"16"`
	// LaneCapacity bounds queued writes per connection. Zero means unbounded.
	LaneCapacity int `env:"DISPATCH_LANE_CAPACITY" envDefault:"1024"`
	// MaxPending bounds queued writes across all connections. Zero means unbounded.
	MaxPending   int           `env:"DISPATCH_MAX_PENDING" envDefault:"65536"`
	WriteTimeout time.Duration `env:"DISPATCH_WRITE_TIMEOUT" envDefault:"10s"`
	// BatchSize is how many writes a connection gets before yielding its worker.
	BatchSize int `env:"DISPATCH_BATCH_SIZE" envDefault:"64"`
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Workers:      16,
		LaneCapacity: 1024,
		MaxPending:   65536,
		WriteTimeout: 10 * time.Second,
		BatchSize:    64,
	}
}

// ExecutorOption is a functional option for configuring an executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	workers      int
	laneCapacity int
	maxPending   int
	writeTimeout time.Duration
	batchSize    int
	logger       *slog.Logger
}

func WithWorkers(n int) ExecutorOption {
	return func(o *executorOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLaneCapacity sets the per-connection queue bound; zero disables it.
func WithLaneCapacity(n int) ExecutorOption {
	return func(o *executorOptions) {
		if n >= 0 {
			o.laneCapacity = n
		}
	}
}

// WithMaxPending sets the global queue bound; zero disables it.
func WithMaxPending(n int) ExecutorOption {
	return func(o *executorOptions) {
		if n >= 0 {
			o.maxPending = n
		}
	}
}

func WithWriteTimeout(d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

func WithBatchSize(n int) ExecutorOption {
	return func(o *executorOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(o *executorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
