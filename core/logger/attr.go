package logger

import (
	"log/slog"
	"runtime"
	"strconv"
	"time"
)

// Helpers return an empty Attr for zero inputs, which slog drops, so callers
// can pass them unconditionally.

// Group creates a group of attributes under a single key.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// ============================================================================
// Errors
// ============================================================================

// Errors groups the non-nil errors under "errors", keyed by their index.
func Errors(errs ...error) slog.Attr {
	var as []slog.Attr
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error logs err under "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// ============================================================================
// Broadcast domain
// ============================================================================

// Broadcaster identifies the broadcaster (channel owner) by its id.
func Broadcaster(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("broadcaster", id)
}

// Channel identifies a cache or relay channel.
func Channel(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("channel", name)
}

func ResourceID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("resource_id", id)
}

func MessageID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("message_id", id)
}

// CorrelationKey logs the session-like key used for exclusion.
func CorrelationKey(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("correlation_key", key)
}

// Recipients logs the size of a target set.
func Recipients(n int) slog.Attr {
	return slog.Int("recipients", n)
}

// Node identifies a cluster node.
func Node(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("node", id)
}

// Transport names the connection flavour (websocket, sse, long-poll).
func Transport(name string) slog.Attr {
	return slog.String("transport", name)
}

// ============================================================================
// Timing
// ============================================================================

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed logs the time since start under "elapsed".
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

// ============================================================================
// HTTP
// ============================================================================

func Method(method string) slog.Attr {
	return slog.String("method", method)
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func RemoteAddr(addr string) slog.Attr {
	if addr == "" {
		return slog.Attr{}
	}
	return slog.String("remote_addr", addr)
}

// ============================================================================
// Generic metadata
// ============================================================================

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Action(action string) slog.Attr {
	return slog.String("action", action)
}

// Count creates an integer attribute under key.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Key creates an attribute for an arbitrary value; nil values are dropped.
func Key(key string, value any) slog.Attr {
	if value == nil {
		return slog.Attr{}
	}
	return slog.Any(key, value)
}

// ============================================================================
// Debugging
// ============================================================================

// Stack captures the current goroutine's stack trace.
func Stack() slog.Attr {
	const size = 64 << 10
	buf := make([]byte, size)
	buf = buf[:runtime.Stack(buf, false)]
	return slog.String("stack", string(buf))
}

// Caller reports the file and line of the caller.
func Caller() slog.Attr {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return slog.Attr{}
	}
	return slog.String("caller", file+":"+strconv.Itoa(line))
}
