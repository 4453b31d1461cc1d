package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/health"
	"github.com/bautismal/atmosphere/core/logger"
)

type broadcastResponse struct {
	ID        string `json:"id"`
	Expected  int    `json:"expected"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

type channelInfo struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Resources  int    `json:"resources"`
	Broadcasts int64  `json:"broadcasts"`
	Vetoed     int64  `json:"vetoed"`
	Cached     int64  `json:"cached"`
}

func newRouter(h *hub, log *slog.Logger, ready http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", ready)
	r.Get("/ping", health.NoContent)

	r.Get("/ws/{channel}", h.serve(func(ch *channel) http.Handler { return ch.ws }))
	r.Get("/sse/{channel}", h.serve(func(ch *channel) http.Handler { return ch.sse }))
	r.Handle("/poll/{channel}", h.serve(func(ch *channel) http.Handler { return ch.poll }))

	r.Get("/channels", h.listChannels)
	r.Post("/broadcast/{channel}", h.broadcast(log))
	r.Delete("/channels/{channel}", h.deleteChannel)
	return r
}

func (h *hub) serve(pick func(*channel) http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := h.channel(chi.URLParam(r, "channel"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		pick(ch).ServeHTTP(w, r)
	}
}

func (h *hub) broadcast(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := h.channel(chi.URLParam(r, "channel"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		var src io.Reader = r.Body
		if h.cfg.MaxMessage > 0 {
			src = http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxMessage))
		}
		body, err := io.ReadAll(src)
		if err != nil {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}

		msg := broadcaster.NewTextMessage(string(body))
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/octet-stream") {
			msg = broadcaster.NewBinaryMessage(body)
		}
		msg.ID = uuid.NewString()

		f, err := h.publish(r.Context(), ch.b, msg, r.URL.Query().Get("exclude_key"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, broadcaster.ErrDestroyed) {
				status = http.StatusGone
			}
			http.Error(w, err.Error(), status)
			return
		}

		if _, err := f.Await(r.Context()); err != nil {
			log.WarnContext(r.Context(), "broadcast not awaited",
				logger.Channel(ch.b.ID()),
				logger.Error(err))
			writeJSON(w, http.StatusAccepted, broadcastResponse{ID: msg.ID, Expected: f.Expected()})
			return
		}
		writeJSON(w, http.StatusOK, broadcastResponse{
			ID:        msg.ID,
			Expected:  f.Expected(),
			Delivered: f.Completed() - f.Failed(),
			Failed:    f.Failed(),
		})
	}
}

func (h *hub) listChannels(w http.ResponseWriter, _ *http.Request) {
	ids := h.factory.IDs()
	out := make([]channelInfo, 0, len(ids))
	for _, id := range ids {
		b, ok := h.factory.Lookup(id)
		if !ok {
			continue
		}
		s := b.Stats()
		out = append(out, channelInfo{
			ID:         s.ID,
			State:      s.State.String(),
			Resources:  s.Resources,
			Broadcasts: s.Broadcasts,
			Vetoed:     s.Vetoed,
			Cached:     s.Cached,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *hub) deleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := h.remove(r.Context(), chi.URLParam(r, "channel")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
