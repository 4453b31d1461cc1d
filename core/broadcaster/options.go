package broadcaster

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a broadcaster.
type Option func(*options)

type options struct {
	filters         []Filter
	resourceFilters []ResourceFilter
	cache           Cache
	executor        *Executor
	executorOpts    []ExecutorOption
	cacheTimeout    time.Duration
	hooks           Hooks
	logger          *slog.Logger
}

// WithFilters appends message filters, run in the order given.
func WithFilters(filters ...Filter) Option {
	return func(o *options) {
		o.filters = append(o.filters, filters...)
	}
}

// WithResourceFilters appends filters run once per recipient.
func WithResourceFilters(filters ...ResourceFilter) Option {
	return func(o *options) {
		for _, f := range filters {
			if f != nil {
				o.resourceFilters = append(o.resourceFilters, f)
			}
		}
	}
}

func WithCache(c Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithExecutor shares e between broadcasters. The broadcaster never closes it.
func WithExecutor(e *Executor) Option {
	return func(o *options) {
		if e != nil {
			o.executor = e
		}
	}
}

// WithExecutorOptions configures the executor the broadcaster creates and
// owns when none is shared.
func WithExecutorOptions(opts ...ExecutorOption) Option {
	return func(o *options) {
		o.executorOpts = append(o.executorOpts, opts...)
	}
}

// WithExecutorConfig is WithExecutorOptions fed from configuration.
func WithExecutorConfig(cfg ExecutorConfig) Option {
	return WithExecutorOptions(
		WithWorkers(cfg.Workers),
		WithLaneCapacity(cfg.LaneCapacity),
		WithMaxPending(cfg.MaxPending),
		WithWriteTimeout(cfg.WriteTimeout),
		WithBatchSize(cfg.BatchSize),
	)
}

// WithCacheTimeout bounds each cache read and write.
func WithCacheTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cacheTimeout = d
		}
	}
}

// WithHooks adds lifecycle and delivery hooks. Repeated calls accumulate.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = o.hooks.merge(h)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
