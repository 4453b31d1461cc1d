package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/logger"
)

const (
	// TrackingHeader carries the long-poll session id in both directions.
	TrackingHeader = "X-Atmosphere-Tracking-Id"
	// TrackingParam is the query fallback for TrackingHeader.
	TrackingParam = "tracking_id"
)

// PolledMessage is the JSON shape of a message returned to a poller.
type PolledMessage struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Data string `json:"data"`
}

type pollResource struct {
	*broadcaster.BaseResource
	mu       sync.Mutex
	queue    []broadcaster.Message
	limit    int
	notify   chan struct{}
	lastSeen atomic.Int64
	polling  atomic.Int32
}

func newPollResource(id, key string, limit int) *pollResource {
	r := &pollResource{
		BaseResource: broadcaster.NewBaseResource(id, key),
		limit:        limit,
		notify:       make(chan struct{}, 1),
	}
	r.touch()
	return r
}

// Write parks msg in the mailbox until the next poll.
func (r *pollResource) Write(_ context.Context, msg broadcaster.Message) error {
	if r.IsCancelled() {
		return ErrClosed
	}
	r.mu.Lock()
	if r.limit > 0 && len(r.queue) >= r.limit {
		r.mu.Unlock()
		return ErrMailboxFull
	}
	r.queue = append(r.queue, msg)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *pollResource) drain() []broadcaster.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.queue
	r.queue = nil
	return out
}

func (r *pollResource) touch() { r.lastSeen.Store(time.Now().UnixNano()) }

func (r *pollResource) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, r.lastSeen.Load()))
}

// LongPoll serves a broadcaster to clients that repeatedly poll for new
// messages. GET waits for messages, POST sends one, DELETE ends the session.
type LongPoll struct {
	b    *broadcaster.Broadcaster
	cfg  LongPollConfig
	opts *options
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*pollResource
}

func NewLongPoll(b *broadcaster.Broadcaster, opts ...Option) *LongPoll {
	return NewLongPollFromConfig(b, DefaultLongPollConfig(), opts...)
}

func NewLongPollFromConfig(b *broadcaster.Broadcaster, cfg LongPollConfig, opts ...Option) *LongPoll {
	o := newOptions(opts)
	return &LongPoll{
		b:        b,
		cfg:      cfg,
		opts:     o,
		log:      o.logger.With(logger.Transport("long-polling"), logger.Broadcaster(b.ID())),
		sessions: make(map[string]*pollResource),
	}
}

func (h *LongPoll) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.poll(w, r)
	case http.MethodPost:
		h.receive(w, r)
	case http.MethodDelete:
		h.end(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

// Sessions reports the number of open long-poll sessions.
func (h *LongPoll) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Run removes idle sessions until ctx is done, then closes every session.
// It fits an errgroup.
func (h *LongPoll) Run(ctx context.Context) func() error {
	return func() error {
		interval := h.cfg.JanitorInterval
		if interval <= 0 {
			interval = h.cfg.IdleTimeout
		}
		if interval <= 0 {
			<-ctx.Done()
			h.Close()
			return nil
		}

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				h.Close()
				return nil
			case now := <-t.C:
				h.sweep(now)
			}
		}
	}
}

// Close ends every session.
func (h *LongPoll) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*pollResource)
	h.mu.Unlock()

	for _, res := range sessions {
		h.drop(res)
	}
}

func (h *LongPoll) sweep(now time.Time) {
	if h.cfg.IdleTimeout <= 0 {
		return
	}
	var idle []*pollResource
	h.mu.Lock()
	for id, res := range h.sessions {
		if res.polling.Load() == 0 && res.idleSince(now) > h.cfg.IdleTimeout {
			delete(h.sessions, id)
			idle = append(idle, res)
		}
	}
	h.mu.Unlock()

	for _, res := range idle {
		h.drop(res)
	}
	if len(idle) > 0 {
		h.log.Debug("idle sessions removed", logger.Count("sessions", len(idle)))
	}
}

func (h *LongPoll) drop(res *pollResource) {
	res.Cancel()
	// Wake a poller parked on this session.
	select {
	case res.notify <- struct{}{}:
	default:
	}
	h.b.RemoveResource(res)
}

func trackingID(r *http.Request) string {
	if id := r.Header.Get(TrackingHeader); id != "" {
		return id
	}
	return r.URL.Query().Get(TrackingParam)
}

func (h *LongPoll) lookup(id string) (*pollResource, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	res, ok := h.sessions[id]
	return res, ok
}

// session returns the caller's session, opening one when the tracking id is
// missing or unknown. Client supplied ids are kept only when they are UUIDs.
func (h *LongPoll) session(r *http.Request) (*pollResource, bool, error) {
	id := trackingID(r)
	if res, ok := h.lookup(id); ok {
		return res, false, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	if h.opts.onConnect != nil {
		if err := h.opts.onConnect(r); err != nil {
			return nil, false, err
		}
	}

	res := newPollResource(id, h.opts.key(r), h.cfg.MailboxSize)
	h.mu.Lock()
	if existing, ok := h.sessions[id]; ok {
		h.mu.Unlock()
		return existing, false, nil
	}
	h.sessions[id] = res
	h.mu.Unlock()

	if err := h.b.AddResource(res); err != nil {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
		return nil, false, err
	}
	return res, true, nil
}

func (h *LongPoll) poll(w http.ResponseWriter, r *http.Request) {
	res, created, err := h.session(r)
	if err != nil {
		h.log.InfoContext(r.Context(), "session refused", logger.Error(err))
		status := http.StatusForbidden
		if errors.Is(err, broadcaster.ErrDestroyed) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set(TrackingHeader, res.ID())

	res.polling.Add(1)
	defer func() {
		res.touch()
		res.polling.Add(-1)
	}()

	if created {
		h.log.DebugContext(r.Context(), "session opened", logger.ResourceID(res.ID()))
		if since := lastEventID(r); since != "" {
			if _, err := h.b.Replay(r.Context(), res, since); err != nil {
				h.log.WarnContext(r.Context(), "replay failed", logger.Error(err))
			}
		}
	}

	// A notification may be left over from a write that a previous poll
	// already drained, so wake-ups re-check the mailbox.
	msgs := res.drain()
	if len(msgs) == 0 && !res.IsCancelled() {
		timer := time.NewTimer(h.cfg.PollTimeout)
		defer timer.Stop()
	wait:
		for len(msgs) == 0 && !res.IsCancelled() {
			select {
			case <-res.notify:
				msgs = res.drain()
			case <-timer.C:
				break wait
			case <-r.Context().Done():
				return
			}
		}
	}

	if res.IsCancelled() {
		w.Header().Del(TrackingHeader)
		http.Error(w, ErrUnknownSession.Error(), http.StatusGone)
		return
	}
	writePolled(w, msgs)
}

func (h *LongPoll) receive(w http.ResponseWriter, r *http.Request) {
	var from broadcaster.Resource
	if res, ok := h.lookup(trackingID(r)); ok {
		res.touch()
		from = res
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if h.opts.onMessage == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := h.opts.onMessage(r.Context(), h.b, from, broadcaster.NewTextMessage(string(body))); err != nil {
		h.log.WarnContext(r.Context(), "inbound message failed", logger.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, broadcaster.ErrDestroyed) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *LongPoll) end(w http.ResponseWriter, r *http.Request) {
	id := trackingID(r)
	h.mu.Lock()
	res, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		http.Error(w, ErrUnknownSession.Error(), http.StatusNotFound)
		return
	}
	h.drop(res)
	w.WriteHeader(http.StatusNoContent)
}

func writePolled(w http.ResponseWriter, msgs []broadcaster.Message) {
	out := make([]PolledMessage, 0, len(msgs))
	for _, m := range msgs {
		pm := PolledMessage{ID: m.ID, Data: m.Text()}
		if m.Type == broadcaster.BinaryMessage {
			pm.Type = "binary"
			pm.Data = base64.StdEncoding.EncodeToString(m.Payload)
		}
		out = append(out, pm)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(out)
}
