package health

import (
	"io"
	"net/http"
)

// Liveness reports that the process serves requests. It checks nothing else.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, "ALIVE")
}

// NoContent answers 204 for high-frequency probes.
func NoContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
