package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bautismal/atmosphere/core/logger"
)

// Server wraps http.Server for long-lived connections. Request contexts
// derive from a base context that Stop cancels first, so streaming
// handlers return before the graceful shutdown waits on them.
type Server struct {
	mu                sync.Mutex
	addr              string
	server            *http.Server
	listener          net.Listener
	cancelStreams     context.CancelFunc
	logger            *slog.Logger
	shutdown          time.Duration
	readTimeout       time.Duration
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	maxHeaderBytes    int
	tlsConfig         *tls.Config
	onShutdown        []func()
	running           bool
}

func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:              addr,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		shutdown:          DefaultShutdownTimeout,
		readTimeout:       DefaultReadTimeout,
		readHeaderTimeout: DefaultReadHeaderTimeout,
		writeTimeout:      DefaultWriteTimeout,
		idleTimeout:       DefaultIdleTimeout,
		maxHeaderBytes:    DefaultMaxHeaderBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("server"))
	return s
}

// Addr returns the bound address once the server listens, and the
// configured one before that.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start listens and serves handler until ctx is done or serving fails.
// It returns ctx.Err() on cancellation; call Stop to shut down.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(ErrListen, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	streams, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.server = &http.Server{
		Handler:           handler,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readHeaderTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
		MaxHeaderBytes:    s.maxHeaderBytes,
		TLSConfig:         s.tlsConfig,
		BaseContext:       func(net.Listener) context.Context { return streams },
	}
	for _, fn := range s.onShutdown {
		s.server.RegisterOnShutdown(fn)
	}
	s.listener = ln
	s.cancelStreams = cancel
	s.running = true
	srv := s.server
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "server listening",
		slog.String("addr", ln.Addr().String()),
		slog.Bool("tls", s.tlsConfig != nil))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		cancel()
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels request contexts, then shuts down within the shutdown
// timeout. It is a no-op when the server is not running.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}
	s.running = false

	s.logger.Info("shutting down", logger.Duration(s.shutdown))
	s.cancelStreams()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	start := time.Now()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown incomplete", logger.Error(err))
		_ = s.server.Close()
		return errors.Join(ErrShutdown, err)
	}
	s.logger.Info("shutdown complete", logger.Elapsed(start))
	return nil
}

// Run fits an errgroup: it serves until ctx is done, then stops.
func (s *Server) Run(ctx context.Context, handler http.Handler) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx, handler)
		}()

		select {
		case <-ctx.Done():
			err := s.Stop()
			<-errCh
			return err
		case err := <-errCh:
			if ctx.Err() != nil {
				return s.Stop()
			}
			return err
		}
	}
}

// Run serves handler on addr with defaults until ctx is done.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	return New(addr).Run(ctx, handler)()
}
