package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/logger"
	"github.com/bautismal/atmosphere/core/transport"
	"github.com/bautismal/atmosphere/integration/database/redis"
)

// channel bundles the transports serving one broadcaster.
type channel struct {
	b    *broadcaster.Broadcaster
	ws   *transport.WebSocket
	sse  *transport.SSE
	poll *transport.LongPoll
	stop context.CancelFunc
}

// hub lazily wires transports to the factory's broadcasters.
type hub struct {
	ctx     context.Context
	factory *broadcaster.Factory
	relay   *redis.Relay
	cfg     Config
	log     *slog.Logger
	spawn   func(func() error)

	mu       sync.Mutex
	channels map[string]*channel
}

func newHub(ctx context.Context, factory *broadcaster.Factory, relay *redis.Relay, cfg Config, log *slog.Logger, spawn func(func() error)) *hub {
	return &hub{
		ctx:      ctx,
		factory:  factory,
		relay:    relay,
		cfg:      cfg,
		log:      log,
		spawn:    spawn,
		channels: make(map[string]*channel),
	}
}

// channel returns the transports for name, creating the broadcaster on first use.
func (h *hub) channel(name string) (*channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.channels[name]; ok && ch.b.State() != broadcaster.StateDestroyed {
		return ch, nil
	} else if ok {
		h.release(name, ch)
	}

	b, err := h.factory.Get(name, broadcaster.WithFilters(channelFilters(h.cfg)...))
	if err != nil {
		return nil, err
	}

	opts := []transport.Option{
		transport.WithKeyFunc(h.sessionKey),
		transport.WithOnMessage(h.inbound),
		transport.WithLogger(h.log.With(logger.Channel(name))),
	}
	ctx, cancel := context.WithCancel(h.ctx)
	ch := &channel{
		b:    b,
		ws:   transport.NewWebSocketFromConfig(b, h.cfg.Transport.WebSocket, opts...),
		sse:  transport.NewSSEFromConfig(b, h.cfg.Transport.SSE, opts...),
		poll: transport.NewLongPollFromConfig(b, h.cfg.Transport.LongPoll, opts...),
		stop: cancel,
	}
	h.spawn(ch.poll.Run(ctx))
	h.channels[name] = ch
	return ch, nil
}

// remove destroys the broadcaster for name and drops its transports.
func (h *hub) remove(ctx context.Context, name string) error {
	h.mu.Lock()
	if ch, ok := h.channels[name]; ok {
		h.release(name, ch)
	}
	h.mu.Unlock()
	return h.factory.Remove(ctx, name)
}

func (h *hub) release(name string, ch *channel) {
	ch.stop()
	ch.poll.Close()
	delete(h.channels, name)
}

// close ends every long-poll session. Streaming connections end with the
// server's base context.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, ch := range h.channels {
		h.release(name, ch)
	}
}

// publish delivers msg, skipping resources of excludeKey when set. With the
// relay enabled the other nodes receive it under the same id and apply the
// same exclusion.
func (h *hub) publish(ctx context.Context, b *broadcaster.Broadcaster, msg broadcaster.Message, excludeKey string) (*broadcaster.Future, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var keys []string
	if excludeKey != "" {
		keys = []string{excludeKey}
	}
	if h.relay != nil {
		return h.relay.BroadcastExcludingKeys(ctx, b, msg, keys...)
	}
	if len(keys) > 0 {
		return b.BroadcastExcludingKeys(ctx, msg, keys...)
	}
	return b.Broadcast(ctx, msg)
}

// inbound handles client messages: everyone outside the sender's session
// receives them. A sender without a key is excluded alone, on this node only.
func (h *hub) inbound(ctx context.Context, b *broadcaster.Broadcaster, from broadcaster.Resource, msg broadcaster.Message) error {
	if from != nil && from.CorrelationKey() != "" {
		_, err := h.publish(ctx, b, msg, from.CorrelationKey())
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, err := b.BroadcastExcluding(ctx, msg, from); err != nil {
		return err
	}
	if h.relay != nil {
		return h.relay.Publish(context.WithoutCancel(ctx), b.ID(), msg)
	}
	return nil
}

// sessionKey correlates connections of one client by session cookie, falling
// back to the key query parameter.
func (h *hub) sessionKey(r *http.Request) string {
	if c, err := r.Cookie(h.cfg.SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("key")
}
