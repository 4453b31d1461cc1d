package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/logger"
	"github.com/bautismal/atmosphere/pkg/async"
	"github.com/bautismal/atmosphere/pkg/codec"
)

type envelope struct {
	Node    string              `cbor:"1,keyasint"`
	Message broadcaster.Message `cbor:"2,keyasint"`
	// Exclude lists correlation keys every node skips.
	Exclude []string `cbor:"3,keyasint,omitempty"`
}

// RelayStats counts relay traffic.
type RelayStats struct {
	Published int64
	Received  int64
	Dropped   int64
	Failed    int64
}

// Relay keeps broadcasters with the same id in sync across nodes. A local
// broadcast is published on the channel's pub/sub topic; every other node
// re-broadcasts it into its own broadcaster of that id, if it has one.
// Messages keep their id across nodes, so replay markers stay valid anywhere.
type Relay struct {
	client  redis.UniversalClient
	factory *broadcaster.Factory
	node    string
	prefix  string
	logger  *slog.Logger

	published atomic.Int64
	received  atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

type RelayOption func(*Relay)

// WithNodeID overrides the random node id.
func WithNodeID(id string) RelayOption {
	return func(r *Relay) {
		if id != "" {
			r.node = id
		}
	}
}

func WithRelayKeyPrefix(prefix string) RelayOption {
	return func(r *Relay) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRelay(client redis.UniversalClient, factory *broadcaster.Factory, opts ...RelayOption) *Relay {
	r := &Relay{
		client:  client,
		factory: factory,
		node:    uuid.NewString(),
		prefix:  "atmosphere",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("relay"), logger.Node(r.node))
	return r
}

func (r *Relay) Node() string { return r.node }

func (r *Relay) topic(channel string) string { return r.prefix + ":relay:" + channel }

// Broadcast delivers msg through b locally and publishes it to the other
// nodes in the background. The returned future tracks local delivery only;
// publish failures are logged and counted.
func (r *Relay) Broadcast(ctx context.Context, b *broadcaster.Broadcaster, msg broadcaster.Message) (*broadcaster.Future, error) {
	return r.BroadcastExcludingKeys(ctx, b, msg)
}

// BroadcastExcludingKeys is Broadcast skipping resources whose correlation
// key is in keys, on this node and on every node receiving the relay.
func (r *Relay) BroadcastExcludingKeys(ctx context.Context, b *broadcaster.Broadcaster, msg broadcaster.Message, keys ...string) (*broadcaster.Future, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var (
		f   *broadcaster.Future
		err error
	)
	if len(keys) > 0 {
		f, err = b.BroadcastExcludingKeys(ctx, msg, keys...)
	} else {
		f, err = b.Broadcast(ctx, msg)
	}
	if err != nil {
		return nil, err
	}

	channel := b.ID()
	async.Exec(context.WithoutCancel(ctx), msg, func(ctx context.Context, m broadcaster.Message) error {
		if err := r.PublishExcludingKeys(ctx, channel, m, keys...); err != nil {
			r.logger.WarnContext(ctx, "publish failed",
				logger.Channel(channel),
				logger.MessageID(m.ID),
				logger.Error(err))
			return err
		}
		return nil
	})
	return f, nil
}

// Publish sends msg to the other nodes without delivering it locally.
func (r *Relay) Publish(ctx context.Context, channel string, msg broadcaster.Message) error {
	return r.PublishExcludingKeys(ctx, channel, msg)
}

// PublishExcludingKeys is Publish asking receiving nodes to skip resources
// whose correlation key is in keys.
func (r *Relay) PublishExcludingKeys(ctx context.Context, channel string, msg broadcaster.Message, keys ...string) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	body, err := codec.Marshal(envelope{Node: r.node, Message: msg, Exclude: keys})
	if err != nil {
		r.failed.Add(1)
		return errors.Join(ErrPublish, err)
	}
	if err := r.client.Publish(ctx, r.topic(channel), body).Err(); err != nil {
		r.failed.Add(1)
		return errors.Join(ErrPublish, err)
	}
	r.published.Add(1)
	return nil
}

// Run consumes relayed messages until ctx is done. It fits an errgroup.
func (r *Relay) Run(ctx context.Context) func() error {
	return func() error {
		sub := r.client.PSubscribe(ctx, r.topic("*"))
		defer func() { _ = sub.Close() }()

		if _, err := sub.Receive(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Join(ErrSubscribe, err)
		}
		r.logger.InfoContext(ctx, "relay subscribed")

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case m, ok := <-ch:
				if !ok {
					return nil
				}
				r.handle(ctx, m)
			}
		}
	}
}

func (r *Relay) handle(ctx context.Context, m *redis.Message) {
	var env envelope
	if err := codec.Unmarshal([]byte(m.Payload), &env); err != nil {
		r.failed.Add(1)
		r.logger.WarnContext(ctx, "undecodable relay message", logger.Error(err))
		return
	}
	if env.Node == r.node {
		return
	}
	r.received.Add(1)

	channel := strings.TrimPrefix(m.Channel, r.prefix+":relay:")
	b, ok := r.factory.Lookup(channel)
	if !ok {
		r.dropped.Add(1)
		return
	}
	var err error
	if len(env.Exclude) > 0 {
		_, err = b.BroadcastExcludingKeys(ctx, env.Message, env.Exclude...)
	} else {
		_, err = b.Broadcast(ctx, env.Message)
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.WarnContext(ctx, "relayed broadcast failed",
			logger.Channel(channel),
			logger.MessageID(env.Message.ID),
			logger.Error(err))
	}
}

func (r *Relay) Stats() RelayStats {
	return RelayStats{
		Published: r.published.Load(),
		Received:  r.received.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
	}
}
