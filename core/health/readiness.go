package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bautismal/atmosphere/core/logger"
	"github.com/bautismal/atmosphere/pkg/async"
)

// DefaultCheckTimeout bounds a readiness probe when the request has no
// deadline of its own.
const DefaultCheckTimeout = 5 * time.Second

// Check reports whether a dependency is usable.
type Check func(context.Context) error

// Readiness answers "READY" when every check passes and 503 otherwise.
func Readiness(log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, DefaultCheckTimeout)
			defer cancel()
		}

		futures := make([]*async.ExecFuture, 0, len(checks))
		for _, c := range checks {
			futures = append(futures, async.Exec(ctx, Check(c), func(ctx context.Context, c Check) error {
				return c(ctx)
			}))
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := async.ExecAll(ctx, futures...); err != nil {
			log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "NOT READY")
			return
		}
		_, _ = io.WriteString(w, "READY")
	}
}
