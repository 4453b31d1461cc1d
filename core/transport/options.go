package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

// InboundHandler receives a message sent by a client. from is nil when the
// sender has no registered resource, as with an anonymous long-poll POST.
type InboundHandler func(ctx context.Context, b *broadcaster.Broadcaster, from broadcaster.Resource, msg broadcaster.Message) error

// Rebroadcast sends inbound messages to every resource, the sender included.
func Rebroadcast() InboundHandler {
	return func(ctx context.Context, b *broadcaster.Broadcaster, _ broadcaster.Resource, msg broadcaster.Message) error {
		_, err := b.Broadcast(ctx, msg)
		return err
	}
}

// ExcludeSender sends inbound messages to everyone but the sending connection.
func ExcludeSender() InboundHandler {
	return func(ctx context.Context, b *broadcaster.Broadcaster, from broadcaster.Resource, msg broadcaster.Message) error {
		_, err := b.BroadcastExcluding(ctx, msg, from)
		return err
	}
}

// ExcludeSenderKey sends inbound messages to everyone outside the sender's
// session, so other tabs of the same user stay quiet too. A sender without a
// correlation key is excluded alone.
func ExcludeSenderKey() InboundHandler {
	return func(ctx context.Context, b *broadcaster.Broadcaster, from broadcaster.Resource, msg broadcaster.Message) error {
		if from == nil || from.CorrelationKey() == "" {
			_, err := b.BroadcastExcluding(ctx, msg, from)
			return err
		}
		_, err := b.BroadcastExcludingKeys(ctx, msg, from.CorrelationKey())
		return err
	}
}

type options struct {
	keyFunc     func(*http.Request) string
	onMessage   InboundHandler
	onConnect   func(*http.Request) error
	checkOrigin func(*http.Request) bool
	subprotos   []string
	logger      *slog.Logger
}

// Option configures a transport handler.
type Option func(*options)

// WithKeyFunc extracts the correlation key (usually a session id) of a request.
func WithKeyFunc(fn func(*http.Request) string) Option {
	return func(o *options) {
		o.keyFunc = fn
	}
}

// WithOnMessage sets the handler for client messages. Rebroadcast is the default.
func WithOnMessage(h InboundHandler) Option {
	return func(o *options) {
		o.onMessage = h
	}
}

// WithOnConnect runs fn before a connection is registered. A non-nil error
// rejects the connection; WebSocket clients get close code 1003.
func WithOnConnect(fn func(*http.Request) error) Option {
	return func(o *options) {
		o.onConnect = fn
	}
}

// WithCheckOrigin overrides the WebSocket origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(o *options) {
		o.checkOrigin = fn
	}
}

// WithSubprotocols lists the WebSocket subprotocols the server accepts.
func WithSubprotocols(protocols ...string) Option {
	return func(o *options) {
		o.subprotos = protocols
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		onMessage: Rebroadcast(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) key(r *http.Request) string {
	if o.keyFunc == nil {
		return ""
	}
	return o.keyFunc(r)
}

// lastEventID reads the replay marker from the Last-Event-ID header or the
// last_event_id query parameter, which browsers use where headers are not
// settable.
func lastEventID(r *http.Request) string {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("last_event_id")
}
