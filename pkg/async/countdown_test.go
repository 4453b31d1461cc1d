package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/pkg/async"
)

func TestCountdownFuture(t *testing.T) {
	t.Parallel()

	t.Run("zero expected resolves immediately", func(t *testing.T) {
		t.Parallel()
		f := async.NewCountdownFuture("hello", 0)
		assert.True(t, f.IsComplete())

		v, err := f.AwaitWithTimeout(time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	})

	t.Run("negative expected treated as zero", func(t *testing.T) {
		t.Parallel()
		f := async.NewCountdownFuture(1, -3)
		assert.True(t, f.IsComplete())
		assert.Equal(t, 0, f.Expected())
	})

	t.Run("resolves after every step", func(t *testing.T) {
		t.Parallel()
		f := async.NewCountdownFuture("msg", 3)

		assert.False(t, f.Complete(nil))
		assert.False(t, f.IsComplete())
		assert.False(t, f.Complete(errors.New("write failed")))
		assert.False(t, f.IsComplete())
		assert.True(t, f.Complete(nil))
		assert.True(t, f.IsComplete())

		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "msg", v)
		assert.Equal(t, 3, f.Completed())
		assert.Equal(t, 1, f.Failed())
		require.Len(t, f.Errors(), 1)
	})

	t.Run("completion never exceeds expected", func(t *testing.T) {
		t.Parallel()
		f := async.NewCountdownFuture(0, 2)
		f.Complete(nil)
		f.Complete(nil)
		assert.False(t, f.Complete(nil))
		assert.False(t, f.Complete(errors.New("late")))
		assert.Equal(t, 2, f.Completed())
		assert.Equal(t, 0, f.Failed())
	})

	t.Run("concurrent completion resolves once", func(t *testing.T) {
		t.Parallel()
		const n = 200
		f := async.NewCountdownFuture(struct{}{}, n)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			resolved int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if f.Complete(nil) {
					mu.Lock()
					resolved++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, resolved)
		assert.Equal(t, n, f.Completed())
		assert.True(t, f.IsComplete())
	})

	t.Run("timeout while pending", func(t *testing.T) {
		t.Parallel()
		f := async.NewCountdownFuture("x", 1)
		_, err := f.AwaitWithTimeout(10 * time.Millisecond)
		assert.ErrorIs(t, err, async.ErrTimeout)
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()
		f := async.NewCountdownFuture("x", 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.Await(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancel releases waiters but counters advance", func(t *testing.T) {
		t.Parallel()
		f := async.NewCountdownFuture("x", 2)

		waitErr := make(chan error, 1)
		go func() {
			_, err := f.Await(context.Background())
			waitErr <- err
		}()

		assert.True(t, f.Cancel())
		assert.False(t, f.Cancel())

		select {
		case err := <-waitErr:
			assert.ErrorIs(t, err, async.ErrCancelled)
		case <-time.After(time.Second):
			t.Fatal("waiter not released")
		}

		f.Complete(nil)
		f.Complete(nil)
		assert.Equal(t, 2, f.Completed())
		assert.True(t, f.IsComplete())
		assert.True(t, f.IsCancelled())
	})

	t.Run("cancel after resolution is a no-op", func(t *testing.T) {
		t.Parallel()
		f := async.ResolvedFuture(7)
		assert.False(t, f.Cancel())
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})
}
