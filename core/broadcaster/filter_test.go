package broadcaster_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

func appendText(suffix string) broadcaster.Filter {
	return broadcaster.FilterFunc(func(_ context.Context, m broadcaster.Message) broadcaster.Result {
		return broadcaster.Transformed(m.WithText(m.Text() + suffix))
	})
}

func TestChain(t *testing.T) {
	t.Parallel()

	t.Run("empty chain passes through", func(t *testing.T) {
		t.Parallel()
		c := broadcaster.NewChain()
		msg := broadcaster.NewTextMessage("x")
		got, ok := c.Apply(context.Background(), msg).Message()
		require.True(t, ok)
		assert.Equal(t, msg, got)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("runs in registration order", func(t *testing.T) {
		t.Parallel()
		c := broadcaster.NewChain(appendText("1"), nil, appendText("2"))
		c.Add(appendText("3"))
		assert.Equal(t, 3, c.Len())

		got, ok := c.Apply(context.Background(), broadcaster.NewTextMessage("m")).Message()
		require.True(t, ok)
		assert.Equal(t, "m123", got.Text())
		assert.Equal(t, "m", got.OriginalMessage().Text())
	})

	t.Run("veto stops the chain", func(t *testing.T) {
		t.Parallel()
		called := false
		c := broadcaster.NewChain(
			broadcaster.FilterFunc(func(context.Context, broadcaster.Message) broadcaster.Result {
				return broadcaster.Vetoed()
			}),
			broadcaster.FilterFunc(func(_ context.Context, m broadcaster.Message) broadcaster.Result {
				called = true
				return broadcaster.Transformed(m)
			}),
		)
		res := c.Apply(context.Background(), broadcaster.NewTextMessage("m"))
		assert.True(t, res.IsVetoed())
		_, ok := res.Message()
		assert.False(t, ok)
		assert.False(t, called)
	})

	t.Run("add while applying", func(t *testing.T) {
		t.Parallel()
		c := broadcaster.NewChain(appendText("a"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Add(appendText(""))
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				got, ok := c.Apply(context.Background(), broadcaster.NewTextMessage("m")).Message()
				assert.True(t, ok)
				assert.Equal(t, "ma", got.Text())
			}
		}()
		wg.Wait()
		assert.Equal(t, 101, c.Len())
	})
}

func TestMessage(t *testing.T) {
	t.Parallel()

	msg := broadcaster.NewTextMessage("hello")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, broadcaster.TextMessage, msg.Type)
	assert.False(t, msg.IsTransformed())
	assert.Equal(t, msg, msg.OriginalMessage())

	once := msg.WithText("HELLO")
	twice := once.WithText("HELLO!")
	assert.Equal(t, "HELLO!", twice.Text())
	assert.Equal(t, "hello", string(twice.Original))
	assert.True(t, twice.IsTransformed())
	assert.Equal(t, "hello", twice.OriginalMessage().Text())
	assert.Equal(t, msg.ID, twice.ID)
	assert.Equal(t, "hello", msg.Text())

	bin := broadcaster.NewBinaryMessage([]byte{1, 2})
	assert.Equal(t, "binary", bin.Type.String())
	assert.Equal(t, "text", msg.Type.String())
}
