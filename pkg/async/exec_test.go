package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/pkg/async"
)

func TestExec(t *testing.T) {
	t.Parallel()

	t.Run("returns function error", func(t *testing.T) {
		t.Parallel()
		want := errors.New("boom")
		f := async.Exec(context.Background(), 42, func(ctx context.Context, n int) error {
			if n != 42 {
				return errors.New("unexpected number")
			}
			return want
		})
		assert.ErrorIs(t, f.Await(context.Background()), want)
		assert.True(t, f.IsComplete())
	})

	t.Run("pre-cancelled context skips function", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		f := async.Exec(ctx, "x", func(context.Context, string) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, f.Await(context.Background()), context.Canceled)
		assert.False(t, called)
	})

	t.Run("recovers panic", func(t *testing.T) {
		t.Parallel()
		f := async.Exec(context.Background(), 0, func(context.Context, int) error {
			panic("kaboom")
		})
		err := f.Await(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("await with timeout", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		f := async.Exec(context.Background(), 0, func(context.Context, int) error {
			<-release
			return nil
		})
		assert.ErrorIs(t, f.AwaitWithTimeout(20*time.Millisecond), async.ErrTimeout)
		assert.False(t, f.IsComplete())
		close(release)
		assert.NoError(t, f.AwaitWithTimeout(time.Second))
	})
}

func TestExecAll(t *testing.T) {
	t.Parallel()
	errA := errors.New("a")
	errB := errors.New("b")

	futures := []*async.ExecFuture{
		async.Exec(context.Background(), errA, func(_ context.Context, e error) error { return e }),
		async.Exec(context.Background(), error(nil), func(_ context.Context, e error) error { return e }),
		async.Exec(context.Background(), errB, func(_ context.Context, e error) error { return e }),
	}

	err := async.ExecAll(context.Background(), futures...)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	assert.NoError(t, async.ExecAll(context.Background()))
}

func TestExecAny(t *testing.T) {
	t.Parallel()

	t.Run("no futures", func(t *testing.T) {
		t.Parallel()
		idx, err := async.ExecAny(context.Background())
		assert.Equal(t, -1, idx)
		assert.ErrorIs(t, err, async.ErrNoFutures)
	})

	t.Run("first to finish wins", func(t *testing.T) {
		t.Parallel()
		slow := async.Exec(context.Background(), 0, func(ctx context.Context, _ int) error {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			return nil
		})
		fast := async.Exec(context.Background(), 0, func(context.Context, int) error { return nil })

		idx, err := async.ExecAny(context.Background(), slow, fast)
		require.NoError(t, err)
		assert.Equal(t, 1, idx)
	})
}
