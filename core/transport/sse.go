package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/logger"
)

type sseResource struct {
	*broadcaster.BaseResource
	mu           sync.Mutex
	w            io.Writer
	flusher      http.Flusher
	rc           *http.ResponseController
	writeTimeout time.Duration
	closed       bool
	gone         chan struct{}
}

// Write emits msg as one event. Binary payloads are base64 encoded and sent
// with event type "binary".
func (r *sseResource) Write(ctx context.Context, msg broadcaster.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	r.arm(ctx)
	defer r.disarm()
	if err := writeEvent(r.w, msg); err != nil {
		r.fail()
		return fmt.Errorf("sse write: %w", err)
	}
	r.flusher.Flush()
	return nil
}

// arm bounds the next write. disarm lifts the bound so an idle stream is
// never cut by a deadline left over from its last event.
func (r *sseResource) arm(ctx context.Context) {
	if d := writeDeadline(ctx, r.writeTimeout); !d.IsZero() {
		_ = r.rc.SetWriteDeadline(d)
	}
}

func (r *sseResource) disarm() {
	if r.writeTimeout > 0 {
		_ = r.rc.SetWriteDeadline(time.Time{})
	}
}

func (r *sseResource) comment(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.arm(context.Background())
	defer r.disarm()
	if _, err := fmt.Fprintf(r.w, ": %s\n\n", text); err != nil {
		r.fail()
		return err
	}
	r.flusher.Flush()
	return nil
}

// close stops writes for good; the response writer is unusable once the
// handler returns.
func (r *sseResource) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.Cancel()
	}
}

// fail is close for callers already holding mu.
func (r *sseResource) fail() {
	if !r.closed {
		r.closed = true
		r.Cancel()
		close(r.gone)
	}
}

func writeEvent(w io.Writer, msg broadcaster.Message) error {
	var buf bytes.Buffer
	if msg.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", msg.ID)
	}
	payload := msg.Payload
	if msg.Type == broadcaster.BinaryMessage {
		buf.WriteString("event: binary\n")
		payload = []byte(base64.StdEncoding.EncodeToString(payload))
	}
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// SSE serves a broadcaster as a text/event-stream. Clients talk back through
// another channel, so inbound options are ignored.
type SSE struct {
	b    *broadcaster.Broadcaster
	cfg  SSEConfig
	opts *options
}

func NewSSE(b *broadcaster.Broadcaster, opts ...Option) *SSE {
	return NewSSEFromConfig(b, DefaultSSEConfig(), opts...)
}

func NewSSEFromConfig(b *broadcaster.Broadcaster, cfg SSEConfig, opts ...Option) *SSE {
	return &SSE{b: b, cfg: cfg, opts: newOptions(opts)}
}

func (h *SSE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.opts.logger.With(logger.Transport("sse"), logger.Broadcaster(h.b.ID()))

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.ErrorContext(r.Context(), "cannot stream", logger.Error(ErrStreamingUnsupported))
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if h.opts.onConnect != nil {
		if err := h.opts.onConnect(r); err != nil {
			log.InfoContext(r.Context(), "connection rejected", logger.Error(err))
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
	}

	res := &sseResource{
		BaseResource: broadcaster.NewBaseResource("", h.opts.key(r)),
		w:            w,
		flusher:      flusher,
		rc:           http.NewResponseController(w),
		writeTimeout: h.cfg.WriteTimeout,
		gone:         make(chan struct{}),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	preamble := "connected"
	if h.cfg.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", h.cfg.Retry.Milliseconds()); err != nil {
			return
		}
	}
	if err := res.comment(preamble); err != nil {
		log.DebugContext(r.Context(), "preamble failed", logger.Error(err))
		return
	}

	if err := h.b.AddResource(res); err != nil {
		log.WarnContext(r.Context(), "register failed", logger.Error(err))
		return
	}
	defer func() {
		res.close()
		h.b.RemoveResource(res)
	}()

	log = log.With(logger.ResourceID(res.ID()))
	log.DebugContext(r.Context(), "connected", logger.RemoteAddr(r.RemoteAddr))

	if since := lastEventID(r); since != "" {
		if _, err := h.b.Replay(r.Context(), res, since); err != nil {
			log.WarnContext(r.Context(), "replay failed", logger.Error(err))
		}
	}

	var tick <-chan time.Time
	if h.cfg.KeepAlive > 0 {
		t := time.NewTicker(h.cfg.KeepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			log.DebugContext(r.Context(), "disconnected")
			return
		case <-res.gone:
			log.DebugContext(r.Context(), "stream broken")
			return
		case <-tick:
			if err := res.comment("keepalive"); err != nil {
				return
			}
		}
	}
}
