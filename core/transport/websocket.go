package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/logger"
)

// maxCloseReason is the room left for a reason in a close frame payload.
const maxCloseReason = 123

type wsResource struct {
	*broadcaster.BaseResource
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// Write sends msg as one WebSocket frame. Executor lanes serialise calls per
// connection; pings go through WriteControl, which may run concurrently.
func (r *wsResource) Write(ctx context.Context, msg broadcaster.Message) error {
	if r.IsCancelled() {
		return ErrClosed
	}
	if err := r.conn.SetWriteDeadline(writeDeadline(ctx, r.writeTimeout)); err != nil {
		return err
	}
	mt := websocket.TextMessage
	if msg.Type == broadcaster.BinaryMessage {
		mt = websocket.BinaryMessage
	}
	if err := r.conn.WriteMessage(mt, msg.Payload); err != nil {
		r.Cancel()
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// WebSocket serves a broadcaster over WebSocket connections.
type WebSocket struct {
	b        *broadcaster.Broadcaster
	cfg      WebSocketConfig
	opts     *options
	upgrader websocket.Upgrader
}

// NewWebSocket uses DefaultWebSocketConfig.
func NewWebSocket(b *broadcaster.Broadcaster, opts ...Option) *WebSocket {
	return NewWebSocketFromConfig(b, DefaultWebSocketConfig(), opts...)
}

func NewWebSocketFromConfig(b *broadcaster.Broadcaster, cfg WebSocketConfig, opts ...Option) *WebSocket {
	o := newOptions(opts)
	return &WebSocket{
		b:    b,
		cfg:  cfg,
		opts: o,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin:      o.checkOrigin,
			Subprotocols:     o.subprotos,
		},
	}
}

func (h *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.opts.logger.With(logger.Transport("websocket"), logger.Broadcaster(h.b.ID()))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		log.DebugContext(r.Context(), "upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	if h.opts.onConnect != nil {
		if err := h.opts.onConnect(r); err != nil {
			log.InfoContext(r.Context(), "connection rejected", logger.Error(err))
			h.closeWith(conn, websocket.CloseUnsupportedData, err.Error())
			return
		}
	}

	res := &wsResource{
		BaseResource: broadcaster.NewBaseResource("", h.opts.key(r)),
		conn:         conn,
		writeTimeout: h.cfg.WriteTimeout,
	}
	if err := h.b.AddResource(res); err != nil {
		log.WarnContext(r.Context(), "register failed", logger.Error(err))
		h.closeWith(conn, websocket.CloseGoingAway, err.Error())
		return
	}
	defer func() {
		res.Cancel()
		h.b.RemoveResource(res)
	}()

	log = log.With(logger.ResourceID(res.ID()))
	log.DebugContext(r.Context(), "connected", logger.RemoteAddr(r.RemoteAddr))

	if since := lastEventID(r); since != "" {
		if _, err := h.b.Replay(r.Context(), res, since); err != nil {
			log.WarnContext(r.Context(), "replay failed", logger.Error(err))
		}
	}

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(conn, done)

	h.readLoop(r.Context(), conn, res, log)
	log.DebugContext(r.Context(), "disconnected")
}

func (h *WebSocket) readLoop(ctx context.Context, conn *websocket.Conn, res *wsResource, log *slog.Logger) {
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	extend := func() {
		if h.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.DebugContext(ctx, "read failed", logger.Error(err))
			}
			return
		}
		extend()

		if h.opts.onMessage == nil {
			continue
		}
		kind := broadcaster.TextMessage
		if mt == websocket.BinaryMessage {
			kind = broadcaster.BinaryMessage
		}
		if err := h.opts.onMessage(ctx, h.b, res, broadcaster.NewMessage(kind, data)); err != nil {
			log.WarnContext(ctx, "inbound message failed", logger.Error(err))
			if errors.Is(err, broadcaster.ErrDestroyed) {
				h.closeWith(conn, websocket.CloseGoingAway, "channel closed")
				return
			}
		}
	}
}

func (h *WebSocket) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	if h.cfg.PingInterval <= 0 {
		return
	}
	t := time.NewTicker(h.cfg.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
			timeout := h.cfg.WriteTimeout
			if timeout <= 0 {
				timeout = h.cfg.PingInterval
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocket) closeWith(conn *websocket.Conn, code int, reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// writeDeadline picks the earlier of ctx's deadline and now+timeout.
// The zero time means no deadline.
func writeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}
