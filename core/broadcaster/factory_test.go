package broadcaster_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

func TestFactory(t *testing.T) {
	t.Parallel()

	t.Run("get creates once", func(t *testing.T) {
		t.Parallel()
		f := broadcaster.NewFactory()
		t.Cleanup(func() { _ = f.Destroy(context.Background()) })

		_, ok := f.Lookup("room")
		assert.False(t, ok)

		b1, err := f.Get("room")
		require.NoError(t, err)
		b2, err := f.Get("room")
		require.NoError(t, err)
		assert.Same(t, b1, b2)

		got, ok := f.Lookup("room")
		require.True(t, ok)
		assert.Same(t, b1, got)
		assert.Equal(t, []string{"room"}, f.IDs())
	})

	t.Run("broadcasters share the executor", func(t *testing.T) {
		t.Parallel()
		f := broadcaster.NewFactory()
		t.Cleanup(func() { _ = f.Destroy(context.Background()) })

		a, err := f.Get("a")
		require.NoError(t, err)
		b, err := f.Get("b")
		require.NoError(t, err)

		r := newRecorder("r", "")
		require.NoError(t, a.AddResource(r))

		require.NoError(t, b.Destroy(context.Background()))

		fut, err := a.Broadcast(context.Background(), broadcaster.NewTextMessage("still alive"))
		require.NoError(t, err)
		_, err = await(fut)
		require.NoError(t, err)
		assert.Equal(t, []string{"still alive"}, r.texts())
		assert.Equal(t, []string{"a"}, f.IDs())

		fresh, err := f.Get("b")
		require.NoError(t, err)
		assert.NotSame(t, b, fresh)
	})

	t.Run("default options apply", func(t *testing.T) {
		t.Parallel()
		mc := broadcaster.NewMemoryCache(broadcaster.DefaultMemoryCacheConfig())
		f := broadcaster.NewFactory(broadcaster.WithDefaults(broadcaster.WithCache(mc)))
		t.Cleanup(func() { _ = f.Destroy(context.Background()) })

		b, err := f.Get("news")
		require.NoError(t, err)
		_, err = b.Broadcast(context.Background(), broadcaster.NewTextMessage("x"))
		require.NoError(t, err)
		assert.Eventually(t, func() bool { return mc.Len("news") == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("remove destroys", func(t *testing.T) {
		t.Parallel()
		f := broadcaster.NewFactory()
		t.Cleanup(func() { _ = f.Destroy(context.Background()) })

		b, err := f.Get("x")
		require.NoError(t, err)
		require.NoError(t, f.Remove(context.Background(), "x"))
		require.NoError(t, f.Remove(context.Background(), "x"))
		assert.Equal(t, broadcaster.StateDestroyed, b.State())
		assert.Empty(t, f.IDs())
	})

	t.Run("run destroys on cancel", func(t *testing.T) {
		t.Parallel()
		f := broadcaster.NewFactoryFromConfig(broadcaster.DefaultConfig(),
			broadcaster.WithShutdownTimeout(time.Second))
		b, err := f.Get("x")
		require.NoError(t, err)
		require.NoError(t, f.Healthcheck(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.Run(ctx)() }()
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("run did not return")
		}

		assert.Equal(t, broadcaster.StateDestroyed, b.State())
		_, err = f.Get("y")
		assert.ErrorIs(t, err, broadcaster.ErrFactoryClosed)
		assert.ErrorIs(t, f.Healthcheck(context.Background()), broadcaster.ErrFactoryClosed)
		assert.True(t, f.Executor().Stats().Closed)
		assert.NoError(t, f.Destroy(context.Background()))
	})

	t.Run("shared executor survives factory", func(t *testing.T) {
		t.Parallel()
		e := broadcaster.NewExecutor()
		t.Cleanup(func() { _ = e.Close(context.Background()) })

		f := broadcaster.NewFactory(broadcaster.WithSharedExecutor(e))
		_, err := f.Get("x")
		require.NoError(t, err)
		require.NoError(t, f.Destroy(context.Background()))
		assert.False(t, e.Stats().Closed)
	})
}
