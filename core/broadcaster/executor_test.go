package broadcaster_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

func TestExecutor(t *testing.T) {
	t.Parallel()

	t.Run("runs a lane in submission order", func(t *testing.T) {
		t.Parallel()
		e := broadcaster.NewExecutor(broadcaster.WithWorkers(2), broadcaster.WithBatchSize(2))
		t.Cleanup(func() { _ = e.Close(context.Background()) })

		var (
			mu  sync.Mutex
			got []int
			wg  sync.WaitGroup
		)
		for i := range 50 {
			wg.Add(1)
			err := e.Enqueue("lane", func(context.Context) error {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
				return nil
			}, func(error) { wg.Done() })
			require.NoError(t, err)
		}
		wg.Wait()

		want := make([]int, 50)
		for i := range want {
			want[i] = i
		}
		assert.Equal(t, want, got)
	})

	t.Run("bounds concurrency across lanes", func(t *testing.T) {
		t.Parallel()
		const workers = 3
		e := broadcaster.NewExecutor(broadcaster.WithWorkers(workers))
		t.Cleanup(func() { _ = e.Close(context.Background()) })

		var (
			running, peak atomic.Int32
			wg            sync.WaitGroup
		)
		for i := range 20 {
			wg.Add(1)
			err := e.Enqueue(fmt.Sprintf("lane-%d", i), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			}, func(error) { wg.Done() })
			require.NoError(t, err)
		}
		wg.Wait()

		assert.LessOrEqual(t, peak.Load(), int32(workers))
		assert.Equal(t, int64(20), e.Stats().Succeeded)
	})

	t.Run("write timeout", func(t *testing.T) {
		t.Parallel()
		e := broadcaster.NewExecutor(broadcaster.WithWriteTimeout(10 * time.Millisecond))
		t.Cleanup(func() { _ = e.Close(context.Background()) })

		result := make(chan error, 1)
		err := e.Enqueue("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, func(err error) { result <- err })
		require.NoError(t, err)

		select {
		case err := <-result:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(time.Second):
			t.Fatal("write did not time out")
		}
		assert.Equal(t, int64(1), e.Stats().Failed)
	})

	t.Run("global queue bound", func(t *testing.T) {
		t.Parallel()
		e := broadcaster.NewExecutor(broadcaster.WithWorkers(1), broadcaster.WithMaxPending(1))

		release := make(chan struct{})
		started := make(chan struct{}, 1)
		block := func(context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		}

		require.NoError(t, e.Enqueue("a", block, nil))
		<-started
		require.NoError(t, e.Enqueue("b", block, nil))
		assert.ErrorIs(t, e.Enqueue("c", block, nil), broadcaster.ErrQueueFull)

		err := e.Healthcheck(context.Background())
		assert.ErrorIs(t, err, broadcaster.ErrHealthcheckFailed)
		assert.ErrorIs(t, err, broadcaster.ErrQueueFull)
		assert.Equal(t, int64(1), e.Stats().Rejected)

		close(release)
		require.NoError(t, e.Close(context.Background()))
	})

	t.Run("close drains then refuses work", func(t *testing.T) {
		t.Parallel()
		e := broadcaster.NewExecutor()

		var ran atomic.Int32
		for range 10 {
			require.NoError(t, e.Enqueue("lane", func(context.Context) error {
				ran.Add(1)
				return nil
			}, nil))
		}
		require.NoError(t, e.Close(context.Background()))
		assert.Equal(t, int32(10), ran.Load())

		assert.ErrorIs(t, e.Enqueue("lane", func(context.Context) error { return nil }, nil), broadcaster.ErrExecutorClosed)
		assert.NoError(t, e.Close(context.Background()))

		err := e.Healthcheck(context.Background())
		assert.ErrorIs(t, err, broadcaster.ErrExecutorClosed)
		assert.True(t, e.Stats().Closed)
	})

	t.Run("submit with refused lane completes future", func(t *testing.T) {
		t.Parallel()
		e := broadcaster.NewExecutor()
		require.NoError(t, e.Close(context.Background()))

		r := newRecorder("a", "")
		d := broadcaster.NewDeliver("chat", broadcaster.NewTextMessage("x"), broadcaster.Message{}, broadcaster.NewTargetSet(r))

		var failures []error
		d.OnFailed = func(_ broadcaster.Resource, _ broadcaster.Message, err error) { failures = append(failures, err) }
		e.Submit(d)

		require.True(t, d.Future.IsComplete())
		require.Len(t, failures, 1)
		assert.True(t, errors.Is(failures[0], broadcaster.ErrExecutorClosed))
	})
}

func TestNewExecutorFromConfig(t *testing.T) {
	t.Parallel()

	cfg := broadcaster.DefaultExecutorConfig()
	cfg.Workers = 1
	e := broadcaster.NewExecutorFromConfig(cfg)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	done := make(chan error, 1)
	require.NoError(t, e.Enqueue("k", func(context.Context) error { return nil }, func(err error) { done <- err }))
	assert.NoError(t, <-done)
	assert.NoError(t, e.Healthcheck(context.Background()))
}
