package server_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/core/server"
)

func waitListening(t *testing.T, srv *server.Server) string {
	t.Helper()
	var addr string
	require.Eventually(t, func() bool {
		addr = srv.Addr()
		_, port, err := net.SplitHostPort(addr)
		return err == nil && port != "0"
	}, 2*time.Second, 5*time.Millisecond)
	return addr
}

func TestServerRun(t *testing.T) {
	t.Parallel()

	t.Run("serves until cancelled", func(t *testing.T) {
		t.Parallel()
		srv := server.New("127.0.0.1:0")
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "pong")
			}))()
		}()

		addr := waitListening(t, srv)
		resp, err := http.Get("http://" + addr)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, "pong", string(body))

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("run did not return")
		}
	})

	t.Run("stop ends streaming requests", func(t *testing.T) {
		t.Parallel()
		hookCalled := make(chan struct{})
		srv := server.New("127.0.0.1:0",
			server.WithShutdownTimeout(2*time.Second),
			server.WithOnShutdown(func() { close(hookCalled) }),
		)
		ctx, cancel := context.WithCancel(context.Background())

		streaming := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.(http.Flusher).Flush()
				close(streaming)
				<-r.Context().Done()
			}))()
		}()

		addr := waitListening(t, srv)
		go func() {
			resp, err := http.Get("http://" + addr)
			if err == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}
		}()
		<-streaming

		start := time.Now()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
			assert.Less(t, time.Since(start), time.Second)
		case <-time.After(3 * time.Second):
			t.Fatal("run did not return")
		}
		select {
		case <-hookCalled:
		case <-time.After(time.Second):
			t.Fatal("shutdown hook not called")
		}
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()
		srv := server.New("127.0.0.1:0")
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		go func() { _ = srv.Start(ctx, http.NotFoundHandler()) }()
		waitListening(t, srv)

		assert.ErrorIs(t, srv.Start(ctx, http.NotFoundHandler()), server.ErrServerAlreadyRunning)
		assert.NoError(t, srv.Stop())
		assert.NoError(t, srv.Stop())
	})

	t.Run("listen failure", func(t *testing.T) {
		t.Parallel()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = ln.Close() })

		err = server.New(ln.Addr().String()).Run(context.Background(), http.NotFoundHandler())()
		assert.ErrorIs(t, err, server.ErrListen)
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		srv, err := server.NewFromConfig(server.DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, ":8080", srv.Addr())
	})

	t.Run("missing address", func(t *testing.T) {
		t.Parallel()
		_, err := server.NewFromConfig(server.Config{})
		assert.ErrorIs(t, err, server.ErrMissingAddress)
	})

	t.Run("bad certificate files", func(t *testing.T) {
		t.Parallel()
		cfg := server.DefaultConfig()
		cfg.TLSCertFile = "/nonexistent/cert.pem"
		cfg.TLSKeyFile = "/nonexistent/key.pem"
		_, err := server.NewFromConfig(cfg)
		assert.ErrorIs(t, err, server.ErrFailedLoadCert)
	})
}
