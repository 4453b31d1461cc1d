package broadcaster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bautismal/atmosphere/core/logger"
)

// Factory owns a set of broadcasters keyed by channel id. Broadcasters it
// creates share one executor and the factory's default options.
type Factory struct {
	mu           sync.Mutex
	broadcasters map[string]*Broadcaster
	closed       bool

	executor        *Executor
	ownsExecutor    bool
	executorOpts    []ExecutorOption
	defaults        []Option
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// FactoryOption is a functional option for configuring a factory.
type FactoryOption func(*Factory)

// WithDefaults sets options applied to every broadcaster the factory creates.
func WithDefaults(opts ...Option) FactoryOption {
	return func(f *Factory) {
		f.defaults = append(f.defaults, opts...)
	}
}

// WithSharedExecutor makes the factory use e instead of creating its own.
// The factory does not close it.
func WithSharedExecutor(e *Executor) FactoryOption {
	return func(f *Factory) {
		if e != nil {
			f.executor = e
			f.ownsExecutor = false
		}
	}
}

// WithShutdownTimeout bounds Destroy when driven by Run.
func WithShutdownTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.shutdownTimeout = d
		}
	}
}

// WithFactoryExecutorOptions configures the executor the factory creates
// when none is shared.
func WithFactoryExecutorOptions(opts ...ExecutorOption) FactoryOption {
	return func(f *Factory) {
		f.executorOpts = append(f.executorOpts, opts...)
	}
}

func WithFactoryLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory creates a factory. Without WithSharedExecutor it creates and
// owns a default executor.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		broadcasters:    make(map[string]*Broadcaster),
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.executor == nil {
		f.executor = NewExecutor(append([]ExecutorOption{WithExecutorLogger(f.logger)}, f.executorOpts...)...)
		f.ownsExecutor = true
	}
	return f
}

// NewFactoryFromConfig creates a factory whose owned executor and
// broadcasters follow cfg. Additional options override config values.
func NewFactoryFromConfig(cfg Config, opts ...FactoryOption) *Factory {
	allOpts := append([]FactoryOption{
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithDefaults(WithCacheTimeout(cfg.CacheTimeout)),
		WithFactoryExecutorOptions(
			WithWorkers(cfg.Executor.Workers),
			WithLaneCapacity(cfg.Executor.LaneCapacity),
			WithMaxPending(cfg.Executor.MaxPending),
			WithWriteTimeout(cfg.Executor.WriteTimeout),
			WithBatchSize(cfg.Executor.BatchSize),
		),
	}, opts...)
	return NewFactory(allOpts...)
}

// Executor returns the executor shared by the factory's broadcasters.
func (f *Factory) Executor() *Executor { return f.executor }

// Lookup returns the live broadcaster for id.
func (f *Factory) Lookup(id string) (*Broadcaster, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.broadcasters[id]
	if !ok || b.State() == StateDestroyed {
		return nil, false
	}
	return b, true
}

// Get returns the broadcaster for id, creating it if missing. A broadcaster
// destroyed outside the factory is replaced by a fresh one.
func (f *Factory) Get(id string, opts ...Option) (*Broadcaster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFactoryClosed
	}
	if b, ok := f.broadcasters[id]; ok && b.State() != StateDestroyed {
		return b, nil
	}

	all := make([]Option, 0, len(f.defaults)+len(opts)+2)
	all = append(all, WithLogger(f.logger))
	all = append(all, f.defaults...)
	all = append(all, opts...)
	all = append(all, WithExecutor(f.executor))

	b := New(id, all...)
	f.broadcasters[id] = b
	f.logger.Debug("broadcaster created", logger.Broadcaster(id))
	return b, nil
}

// Remove destroys and forgets the broadcaster for id.
func (f *Factory) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	b, ok := f.broadcasters[id]
	delete(f.broadcasters, id)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	if err := b.Destroy(ctx); err != nil && !errors.Is(err, ErrAlreadyDestroyed) {
		return err
	}
	return nil
}

// IDs returns the ids of live broadcasters in ascending order.
func (f *Factory) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := slices.Sorted(maps.Keys(f.broadcasters))
	return slices.DeleteFunc(ids, func(id string) bool {
		return f.broadcasters[id].State() == StateDestroyed
	})
}

// Destroy destroys every broadcaster, then closes an owned executor within ctx.
func (f *Factory) Destroy(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	all := f.broadcasters
	f.broadcasters = make(map[string]*Broadcaster)
	f.mu.Unlock()

	var errs []error
	for _, b := range all {
		if err := b.Destroy(ctx); err != nil && !errors.Is(err, ErrAlreadyDestroyed) {
			errs = append(errs, err)
		}
	}
	if f.ownsExecutor {
		if err := f.executor.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	f.logger.InfoContext(ctx, "factory destroyed", logger.Count("broadcasters", len(all)))
	return errors.Join(errs...)
}

// Run returns a function for use with errgroup: it blocks until ctx is
// cancelled, then destroys the factory within the shutdown timeout.
//
//	g.Go(factory.Run(ctx))
func (f *Factory) Run(ctx context.Context) func() error {
	return func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.shutdownTimeout)
		defer cancel()
		return f.Destroy(shutdownCtx)
	}
}

// Healthcheck fails once the factory is closed or its executor is unhealthy.
func (f *Factory) Healthcheck(ctx context.Context) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()

	if closed {
		return errors.Join(ErrHealthcheckFailed, ErrFactoryClosed)
	}
	return f.executor.Healthcheck(ctx)
}
