package server

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*Server)

func WithTLS(config *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = config
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithShutdownTimeout bounds the graceful part of Stop.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.shutdown = timeout
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = timeout
	}
}

func WithReadHeaderTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.readHeaderTimeout = timeout
	}
}

// WithWriteTimeout caps whole responses, streams included. Leave it at zero
// when serving SSE or long polls.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = timeout
	}
}

func WithIdleTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = timeout
	}
}

func WithMaxHeaderBytes(n int) Option {
	return func(s *Server) {
		s.maxHeaderBytes = n
	}
}

// WithOnShutdown registers fn to run when Stop begins. Hijacked
// connections such as WebSockets are not tracked by the server; closing
// them belongs here.
func WithOnShutdown(fn func()) Option {
	return func(s *Server) {
		if fn != nil {
			s.onShutdown = append(s.onShutdown, fn)
		}
	}
}
