package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bautismal/atmosphere/core/health"
)

func TestLiveness(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	health.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", rec.Body.String())

	rec = httptest.NewRecorder()
	health.NoContent(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		health.Readiness(nil, ok, ok)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("no checks", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		health.Readiness(nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing check", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		failing := func(context.Context) error { return errors.New("db down") }
		health.Readiness(nil, ok, failing)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "NOT READY", rec.Body.String())
	})

	t.Run("checks run concurrently", func(t *testing.T) {
		t.Parallel()
		slow := func(ctx context.Context) error {
			select {
			case <-time.After(100 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		rec := httptest.NewRecorder()
		start := time.Now()
		health.Readiness(nil, slow, slow, slow)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("request deadline bounds checks", func(t *testing.T) {
		t.Parallel()
		hang := func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

		rec := httptest.NewRecorder()
		health.Readiness(nil, hang)(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
