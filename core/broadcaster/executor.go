package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bautismal/atmosphere/core/logger"
)

// Executor performs blocking writes off the caller's goroutine.
//
// Work is queued per key (a resource id, or a cache channel) into lanes.
// A lane is drained by one goroutine at a time, so writes sharing a key run
// in submission order and never overlap. Up to Workers lanes drain in
// parallel; a lane gives its worker slot back after BatchSize writes.
type Executor struct {
	sem          chan struct{}
	laneCapacity int
	maxPending   int
	batchSize    int
	writeTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	lanes   map[string]*lane
	pending int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	inFlight  atomic.Int32
}

// ExecutorStats provides observability metrics for the dispatch executor.
type ExecutorStats struct {
	Submitted   int64 // Writes accepted into a lane
	Succeeded   int64 // Writes that returned nil
	Failed      int64 // Writes that returned an error, timed out, panicked or were abandoned
	Rejected    int64 // Writes refused because of capacity or shutdown
	Pending     int   // Writes queued but not started
	ActiveLanes int   // Lanes with a running drainer
	InFlight    int32 // Writes currently executing
	Closed      bool
}

type task struct {
	run  func(ctx context.Context) error
	done func(err error)
}

type lane struct {
	key   string
	queue []task
}

// NewExecutor creates a running executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	def := DefaultExecutorConfig()
	o := &executorOptions{
		workers:      def.Workers,
		laneCapacity: def.LaneCapacity,
		maxPending:   def.MaxPending,
		writeTimeout: def.WriteTimeout,
		batchSize:    def.BatchSize,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		sem:          make(chan struct{}, o.workers),
		laneCapacity: o.laneCapacity,
		maxPending:   o.maxPending,
		batchSize:    o.batchSize,
		writeTimeout: o.writeTimeout,
		logger:       o.logger,
		lanes:        make(map[string]*lane),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// NewExecutorFromConfig creates an executor from configuration.
// Additional options override config values.
func NewExecutorFromConfig(cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	allOpts := append([]ExecutorOption{
		WithWorkers(cfg.Workers),
		WithLaneCapacity(cfg.LaneCapacity),
		WithMaxPending(cfg.MaxPending),
		WithWriteTimeout(cfg.WriteTimeout),
		WithBatchSize(cfg.BatchSize),
	}, opts...)
	return NewExecutor(allOpts...)
}

// Enqueue queues run on the lane for key and returns immediately. done is
// called with run's result once it has executed. When the task cannot be
// queued Enqueue returns ErrExecutorClosed, ErrQueueFull or ErrLaneFull and
// done is never called.
func (e *Executor) Enqueue(key string, run func(ctx context.Context) error, done func(err error)) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.rejected.Add(1)
		return ErrExecutorClosed
	}
	if e.maxPending > 0 && e.pending >= e.maxPending {
		e.mu.Unlock()
		e.rejected.Add(1)
		return ErrQueueFull
	}

	l, running := e.lanes[key]
	if running && e.laneCapacity > 0 && len(l.queue) >= e.laneCapacity {
		e.mu.Unlock()
		e.rejected.Add(1)
		return ErrLaneFull
	}
	if !running {
		l = &lane{key: key}
		e.lanes[key] = l
		e.wg.Add(1)
	}
	l.queue = append(l.queue, task{run: run, done: done})
	e.pending++
	e.mu.Unlock()

	e.submitted.Add(1)
	if !running {
		go e.drain(l)
	}
	return nil
}

// Submit queues one write per target of d. It never blocks: recipients that
// cannot be queued are completed on d's future as failures right away.
func (e *Executor) Submit(d Deliver) {
	d.Targets.each(func(r Resource) {
		e.enqueueWrite(r, d.Message, d.Filter, func(out writeOutcome) {
			d.finish(r, out)
		})
	})
}

// Close stops accepting work and waits for queued writes until ctx is done.
// Past that, in-flight writes are cancelled and whatever is still queued is
// failed with ErrExecutorClosed so every future resolves.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		e.logger.WarnContext(ctx, "executor shutdown timed out",
			logger.Count("pending", e.Stats().Pending))
		return errors.Join(ErrShutdownTimeout, ctx.Err())
	}
}

// Stats returns current executor metrics.
func (e *Executor) Stats() ExecutorStats {
	e.mu.Lock()
	pending, lanes, closed := e.pending, len(e.lanes), e.closed
	e.mu.Unlock()

	return ExecutorStats{
		Submitted:   e.submitted.Load(),
		Succeeded:   e.succeeded.Load(),
		Failed:      e.failed.Load(),
		Rejected:    e.rejected.Load(),
		Pending:     pending,
		ActiveLanes: lanes,
		InFlight:    e.inFlight.Load(),
		Closed:      closed,
	}
}

// Healthcheck reports whether the executor accepts work and has headroom.
//
//	if errors.Is(err, broadcaster.ErrQueueFull) { ... }
func (e *Executor) Healthcheck(ctx context.Context) error {
	stats := e.Stats()
	if stats.Closed {
		return errors.Join(ErrHealthcheckFailed, ErrExecutorClosed)
	}
	if e.maxPending > 0 && stats.Pending >= e.maxPending {
		return errors.Join(ErrHealthcheckFailed, ErrQueueFull,
			fmt.Errorf("%d/%d writes pending", stats.Pending, e.maxPending))
	}
	return nil
}

func (e *Executor) drain(l *lane) {
	defer e.wg.Done()

	for {
		select {
		case e.sem <- struct{}{}:
		case <-e.ctx.Done():
			e.abandon(l)
			return
		}

		more := e.runBatch(l)
		<-e.sem
		if !more {
			return
		}
	}
}

func (e *Executor) runBatch(l *lane) bool {
	for range e.batchSize {
		t, ok := e.next(l)
		if !ok {
			return false
		}
		if e.ctx.Err() != nil {
			e.finish(t, ErrExecutorClosed)
			continue
		}
		e.finish(t, e.execute(t.run))
	}
	return true
}

// next pops the head of l. An empty lane is unregistered under the same lock
// so a concurrent Enqueue starts a fresh drainer.
func (e *Executor) next(l *lane) (task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(l.queue) == 0 {
		delete(e.lanes, l.key)
		return task{}, false
	}
	t := l.queue[0]
	l.queue[0] = task{}
	l.queue = l.queue[1:]
	e.pending--
	return t, true
}

func (e *Executor) abandon(l *lane) {
	for {
		t, ok := e.next(l)
		if !ok {
			return
		}
		e.finish(t, ErrExecutorClosed)
	}
}

func (e *Executor) execute(run func(context.Context) error) (err error) {
	ctx := e.ctx
	if e.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.writeTimeout)
		defer cancel()
	}

	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWritePanic, r)
			e.logger.Error("write panicked", logger.Error(err), logger.Stack())
		}
	}()

	return run(ctx)
}

func (e *Executor) finish(t task, err error) {
	if err != nil {
		e.failed.Add(1)
	} else {
		e.succeeded.Add(1)
	}
	if t.done != nil {
		t.done(err)
	}
}
