package broadcaster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bautismal/atmosphere/core/logger"
	"github.com/bautismal/atmosphere/pkg/async"
)

// State is a broadcaster lifecycle stage. It only moves forward.
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Broadcaster fans messages out to the resources registered with it.
// Broadcast calls return immediately with a Future; writes happen on the
// executor.
type Broadcaster struct {
	id    string
	state atomic.Int32

	registry        *Registry
	filters         *Chain
	resourceFilters resourceChain
	cache           Cache
	cacheTimeout    time.Duration
	executor        *Executor
	ownsExecutor    bool
	hooks           Hooks
	logger          *slog.Logger

	broadcasts  atomic.Int64
	vetoed      atomic.Int64
	cached      atomic.Int64
	cacheErrors atomic.Int64
}

// Stats provides observability metrics for a broadcaster.
type Stats struct {
	ID          string
	State       State
	Resources   int
	Broadcasts  int64 // Broadcast calls that passed the lifecycle check
	Vetoed      int64
	Cached      int64
	CacheErrors int64
	Executor    ExecutorStats
}

// New creates an initialized broadcaster for the channel id.
func New(id string, opts ...Option) *Broadcaster {
	o := &options{
		cache:        NoopCache{},
		cacheTimeout: DefaultCacheTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	b := &Broadcaster{
		id:              id,
		registry:        NewRegistry(),
		filters:         NewChain(o.filters...),
		resourceFilters: resourceChain(o.resourceFilters),
		cache:           o.cache,
		cacheTimeout:    o.cacheTimeout,
		hooks:           o.hooks,
		logger:          o.logger.With(logger.Component("broadcaster"), logger.Broadcaster(id)),
	}
	b.state.Store(int32(StateCreated))

	if o.executor != nil {
		b.executor = o.executor
	} else {
		b.executor = NewExecutor(append([]ExecutorOption{WithExecutorLogger(o.logger)}, o.executorOpts...)...)
		b.ownsExecutor = true
	}

	b.state.Store(int32(StateInitialized))
	return b
}

func (b *Broadcaster) ID() string { return b.id }

func (b *Broadcaster) State() State { return State(b.state.Load()) }

// Filters exposes the chain so filters can be added after construction.
func (b *Broadcaster) Filters() *Chain { return b.filters }

// Broadcast delivers msg to every registered resource.
// It fails with ErrDestroyed once the broadcaster is destroyed.
func (b *Broadcaster) Broadcast(ctx context.Context, msg Message) (*Future, error) {
	return b.BroadcastTo(ctx, msg, All())
}

// BroadcastExcluding delivers msg to everyone except r.
func (b *Broadcaster) BroadcastExcluding(ctx context.Context, msg Message, r Resource) (*Future, error) {
	return b.BroadcastTo(ctx, msg, Excluding(r))
}

// BroadcastExcludingSubset delivers msg to everyone not in rs.
func (b *Broadcaster) BroadcastExcludingSubset(ctx context.Context, msg Message, rs ...Resource) (*Future, error) {
	return b.BroadcastTo(ctx, msg, ExcludingSubset(rs...))
}

// BroadcastExcludingKeys delivers msg to everyone whose correlation key is
// not among keys.
func (b *Broadcaster) BroadcastExcludingKeys(ctx context.Context, msg Message, keys ...string) (*Future, error) {
	return b.BroadcastTo(ctx, msg, ExcludingKeys(keys...))
}

// BroadcastOnly delivers msg to the registered members of rs.
func (b *Broadcaster) BroadcastOnly(ctx context.Context, msg Message, rs ...Resource) (*Future, error) {
	return b.BroadcastTo(ctx, msg, Only(rs...))
}

// BroadcastTo delivers msg to the recipients chosen by sel.
//
// The steps are: take a registry snapshot and narrow it with sel, start the
// broadcaster if needed, run the filter chain, then queue the writes. A veto
// returns a future already resolved to the original message and queues
// nothing. On a destroyed broadcaster strict selectors fail with
// ErrDestroyed; the others return a resolved future.
func (b *Broadcaster) BroadcastTo(ctx context.Context, msg Message, sel Selector) (*Future, error) {
	msg = msg.normalize(b.id)

	if b.State() == StateDestroyed {
		if sel.Strict() {
			return nil, ErrDestroyed
		}
		return async.ResolvedFuture(msg), nil
	}
	b.broadcasts.Add(1)

	targets := sel.Targets(b.registry.Snapshot())
	b.ensureStarted()

	filtered, ok := b.filters.Apply(ctx, msg).Message()
	if !ok {
		b.vetoed.Add(1)
		b.logger.DebugContext(ctx, "message vetoed", logger.MessageID(msg.ID))
		if h := b.hooks.OnVeto; h != nil {
			b.runHook("veto", func() { h(b, msg) })
		}
		return async.ResolvedFuture(msg), nil
	}
	filtered.ID = msg.ID
	filtered.Channel = msg.Channel

	d := NewDeliver(b.id, filtered, msg, targets)
	b.observe(&d)

	b.cacheMessage(filtered)

	if targets.Len() == 0 {
		if d.OnComplete != nil {
			d.OnComplete()
		}
		return d.Future, nil
	}

	b.executor.Submit(d)
	b.logger.DebugContext(ctx, "broadcast queued",
		logger.MessageID(msg.ID),
		logger.Recipients(targets.Len()),
		logger.Key("selector", sel.String()))
	return d.Future, nil
}

// AddResource registers r. Resources added after a snapshot was taken do
// not receive that broadcast.
func (b *Broadcaster) AddResource(r Resource) error {
	if r == nil {
		return ErrNilResource
	}
	if b.State() == StateDestroyed {
		return ErrDestroyed
	}
	if !b.registry.Add(r) {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, r.ID())
	}
	b.logger.Debug("resource added", logger.ResourceID(r.ID()), logger.CorrelationKey(r.CorrelationKey()))
	if h := b.hooks.OnAddResource; h != nil {
		b.runHook("add_resource", func() { h(b, r) })
	}
	return nil
}

// RemoveResource unregisters r. Writes already queued for r still run.
func (b *Broadcaster) RemoveResource(r Resource) bool {
	if !b.registry.Remove(r) {
		return false
	}
	b.logger.Debug("resource removed", logger.ResourceID(r.ID()))
	if h := b.hooks.OnRemoveResource; h != nil {
		b.runHook("remove_resource", func() { h(b, r) })
	}
	return true
}

// Resources returns a snapshot of the registered resources.
func (b *Broadcaster) Resources() TargetSet {
	return b.registry.Snapshot()
}

// Resource looks up a registered resource by id.
func (b *Broadcaster) Resource(id string) (Resource, bool) {
	return b.registry.Get(id)
}

// Replay queues the cached messages stored after marker since onto r's
// connection. The future resolves to the last replayed message, or to a
// zero Message when there was nothing to replay.
func (b *Broadcaster) Replay(ctx context.Context, r Resource, since string) (*Future, error) {
	if r == nil {
		return nil, ErrNilResource
	}
	if b.State() == StateDestroyed {
		return nil, ErrDestroyed
	}
	if isNoop(b.cache) {
		return async.ResolvedFuture(Message{}), nil
	}

	cctx, cancel := context.WithTimeout(ctx, b.cacheTimeout)
	defer cancel()

	msgs, err := b.cache.Retrieve(cctx, b.id, since)
	if err != nil {
		return nil, fmt.Errorf("broadcaster: replay %s: %w", b.id, err)
	}
	if len(msgs) == 0 {
		return async.ResolvedFuture(Message{}), nil
	}

	f := async.NewCountdownFuture(msgs[len(msgs)-1], len(msgs))
	var filter ResourceFilter
	if len(b.resourceFilters) > 0 {
		filter = b.resourceFilters
	}
	for _, m := range msgs {
		b.executor.enqueueWrite(r, m, filter, func(out writeOutcome) {
			if out.err != nil {
				b.logger.Warn("replay write failed",
					logger.ResourceID(r.ID()),
					logger.MessageID(out.msg.ID),
					logger.Error(out.err))
			}
			f.Complete(out.err)
		})
	}

	b.logger.DebugContext(ctx, "replay queued",
		logger.ResourceID(r.ID()),
		logger.Count("messages", len(msgs)))
	return f, nil
}

// Destroy moves the broadcaster to its terminal state and unregisters every
// resource. An owned executor is drained within ctx; writes it has to
// abandon resolve their futures as failures. A shared executor keeps
// draining on its own.
func (b *Broadcaster) Destroy(ctx context.Context) error {
	for {
		cur := b.state.Load()
		if State(cur) == StateDestroyed {
			return ErrAlreadyDestroyed
		}
		if b.state.CompareAndSwap(cur, int32(StateDestroyed)) {
			break
		}
	}

	removed := b.registry.Clear()
	if h := b.hooks.OnRemoveResource; h != nil {
		removed.each(func(r Resource) {
			b.runHook("remove_resource", func() { h(b, r) })
		})
	}
	if h := b.hooks.OnDestroy; h != nil {
		b.runHook("destroy", func() { h(b) })
	}

	b.logger.InfoContext(ctx, "broadcaster destroyed", logger.Recipients(removed.Len()))

	if b.ownsExecutor {
		if err := b.executor.Close(ctx); err != nil {
			return fmt.Errorf("broadcaster: destroy %s: %w", b.id, err)
		}
	}
	return nil
}

// Stats returns current broadcaster metrics.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		ID:          b.id,
		State:       b.State(),
		Resources:   b.registry.Len(),
		Broadcasts:  b.broadcasts.Load(),
		Vetoed:      b.vetoed.Load(),
		Cached:      b.cached.Load(),
		CacheErrors: b.cacheErrors.Load(),
		Executor:    b.executor.Stats(),
	}
}

// Healthcheck fails once the broadcaster is destroyed or its executor is
// unhealthy.
func (b *Broadcaster) Healthcheck(ctx context.Context) error {
	if b.State() == StateDestroyed {
		return ErrDestroyed
	}
	return b.executor.Healthcheck(ctx)
}

func (b *Broadcaster) ensureStarted() {
	if b.state.CompareAndSwap(int32(StateInitialized), int32(StateStarted)) {
		b.logger.Debug("broadcaster started")
		if h := b.hooks.OnStart; h != nil {
			b.runHook("start", func() { h(b) })
		}
	}
}

// observe wires per-recipient filters and hooks into d.
func (b *Broadcaster) observe(d *Deliver) {
	if len(b.resourceFilters) > 0 {
		d.Filter = b.resourceFilters
	}

	onFailed := b.hooks.OnDeliveryFailed
	d.OnFailed = func(r Resource, msg Message, err error) {
		b.logger.Warn("delivery failed",
			logger.ResourceID(r.ID()),
			logger.MessageID(msg.ID),
			logger.Error(err))
		if onFailed != nil {
			b.runHook("delivery_failed", func() { onFailed(b, r, msg, err) })
		}
	}
	if h := b.hooks.OnDelivered; h != nil {
		d.OnDelivered = func(r Resource, msg Message) {
			b.runHook("delivered", func() { h(b, r, msg) })
		}
	}
	if h := b.hooks.OnComplete; h != nil {
		f, msg := d.Future, d.Message
		d.OnComplete = func() {
			b.runHook("complete", func() { h(b, msg, f) })
		}
	}
}

func (b *Broadcaster) cacheMessage(msg Message) {
	if isNoop(b.cache) {
		return
	}

	err := b.executor.Enqueue(cacheLaneKey(b.id), func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, b.cacheTimeout)
		defer cancel()
		return b.cache.Cache(cctx, b.id, msg)
	}, func(err error) {
		if err != nil {
			b.cacheFailed(msg, err)
			return
		}
		b.cached.Add(1)
	})
	if err != nil {
		b.cacheFailed(msg, err)
	}
}

func (b *Broadcaster) cacheFailed(msg Message, err error) {
	b.cacheErrors.Add(1)
	b.logger.Warn("cache write failed", logger.MessageID(msg.ID), logger.Error(err))
	if h := b.hooks.OnCacheError; h != nil {
		b.runHook("cache_error", func() { h(b, msg, err) })
	}
}
