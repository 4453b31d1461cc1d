package cache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/core/cache"
)

func TestLRUCache(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		c.Put("a", 1)
		c.Put("b", 2)

		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)

		var evicted []string
		c.SetEvictCallback(func(k string, _ int) { evicted = append(evicted, k) })

		c.Put("a", 1)
		c.Put("b", 2)
		c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"b"}, evicted)
		assert.Equal(t, []string{"c", "a"}, c.Keys())
	})

	t.Run("update keeps single entry", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		c.Put("a", 1)
		c.Put("a", 10)
		assert.Equal(t, 1, c.Len())
		v, _ := c.Peek("a")
		assert.Equal(t, 10, v)
	})

	t.Run("peek does not touch recency", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		c.Put("a", 1)
		c.Put("b", 2)
		c.Peek("a")
		c.Put("c", 3)
		_, ok := c.Peek("a")
		assert.False(t, ok)
	})

	t.Run("remove skips callback", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		called := false
		c.SetEvictCallback(func(string, int) { called = true })
		c.Put("a", 1)

		v, ok := c.Remove("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)
		assert.False(t, called)

		_, ok = c.Remove("a")
		assert.False(t, ok)
	})

	t.Run("get or put", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](4)
		v, existed := c.GetOrPut("a", func() int { return 5 })
		assert.False(t, existed)
		assert.Equal(t, 5, v)

		v, existed = c.GetOrPut("a", func() int { return 6 })
		assert.True(t, existed)
		assert.Equal(t, 5, v)
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[int, int](0)
		c.Put(1, 1)
		c.Clear()
		assert.Equal(t, 0, c.Len())
	})

	t.Run("concurrent access", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[int, int](50)
		var wg sync.WaitGroup
		for g := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 500 {
					c.Put(g*1000+i, i)
					c.Get(i)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, c.Len())
	})
}
