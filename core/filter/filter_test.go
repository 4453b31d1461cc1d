package filter_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/filter"
)

func apply(t *testing.T, f broadcaster.Filter, m broadcaster.Message) (broadcaster.Message, bool) {
	t.Helper()
	return f.Filter(context.Background(), m).Message()
}

func TestTextFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter broadcaster.Filter
		in     string
		want   string
	}{
		{"upper", filter.Upper(), "héllo wörld", "HÉLLO WÖRLD"},
		{"lower", filter.Lower(), "HÉLLO", "héllo"},
		{"escape html", filter.EscapeHTML(), `<b>"x"</b>`, "&lt;b&gt;&#34;x&#34;&lt;/b&gt;"},
		{"strip html", filter.StripHTML(), "<p>Tom &amp; Jerry</p>", "Tom & Jerry"},
		{"truncate runes", filter.Truncate(3), "日本語テキスト", "日本語"},
		{"truncate short", filter.Truncate(10), "short", "short"},
		{"truncate zero", filter.Truncate(0), "gone", ""},
		{"control chars", filter.RemoveControlChars(), "a\x00b\tc\nd\x1b", "ab\tc\nd"},
		{"single line", filter.SingleLine(), "  one\n two\r\n\tthree ", "one two three"},
		{"trim", filter.Trim(), "  padded \n", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := apply(t, tt.filter, broadcaster.NewTextMessage(tt.in))
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Text())
		})
	}

	t.Run("keeps original payload", func(t *testing.T) {
		t.Parallel()
		got, ok := apply(t, filter.Upper(), broadcaster.NewTextMessage("abc"))
		require.True(t, ok)
		assert.True(t, got.IsTransformed())
		assert.Equal(t, "abc", got.OriginalMessage().Text())
	})

	t.Run("unchanged text is not marked transformed", func(t *testing.T) {
		t.Parallel()
		got, ok := apply(t, filter.Upper(), broadcaster.NewTextMessage("ABC"))
		require.True(t, ok)
		assert.False(t, got.IsTransformed())
	})

	t.Run("binary passes through", func(t *testing.T) {
		t.Parallel()
		in := broadcaster.NewBinaryMessage([]byte{'a', 0x00, 'b'})
		got, ok := apply(t, filter.Upper(), in)
		require.True(t, ok)
		assert.Equal(t, in.Payload, got.Payload)
		assert.False(t, got.IsTransformed())
	})
}

func TestVetoFilters(t *testing.T) {
	t.Parallel()

	t.Run("contains", func(t *testing.T) {
		t.Parallel()
		f := filter.VetoContains(false, "secret")
		_, ok := apply(t, f, broadcaster.NewTextMessage("the secret plan"))
		assert.False(t, ok)
		_, ok = apply(t, f, broadcaster.NewTextMessage("the SECRET plan"))
		assert.True(t, ok)
	})

	t.Run("contains case insensitive", func(t *testing.T) {
		t.Parallel()
		words := []string{"Secret"}
		f := filter.VetoContains(true, words...)
		_, ok := apply(t, f, broadcaster.NewTextMessage("the SECRET plan"))
		assert.False(t, ok)
		assert.Equal(t, []string{"Secret"}, words)
	})

	t.Run("contains ignores binary and empty words", func(t *testing.T) {
		t.Parallel()
		f := filter.VetoContains(false, "", "x")
		_, ok := apply(t, f, broadcaster.NewBinaryMessage([]byte("xxx")))
		assert.True(t, ok)
		_, ok = apply(t, f, broadcaster.NewTextMessage("abc"))
		assert.True(t, ok)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()
		f := filter.VetoPrefix([]byte("/cmd"))
		_, ok := apply(t, f, broadcaster.NewTextMessage("/cmd kick"))
		assert.False(t, ok)
		_, ok = apply(t, f, broadcaster.NewTextMessage("hello /cmd"))
		assert.True(t, ok)

		_, ok = apply(t, filter.VetoPrefix(nil), broadcaster.NewTextMessage("anything"))
		assert.True(t, ok)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		f := filter.VetoEmpty()
		_, ok := apply(t, f, broadcaster.NewTextMessage(" \n\t"))
		assert.False(t, ok)
		_, ok = apply(t, f, broadcaster.NewTextMessage("."))
		assert.True(t, ok)
	})

	t.Run("max size", func(t *testing.T) {
		t.Parallel()
		f := filter.MaxSize(4)
		_, ok := apply(t, f, broadcaster.NewTextMessage("1234"))
		assert.True(t, ok)
		_, ok = apply(t, f, broadcaster.NewTextMessage("12345"))
		assert.False(t, ok)
	})
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("shared budget", func(t *testing.T) {
		t.Parallel()
		f := filter.RateLimit(rate.Every(1<<62), 2)
		msg := broadcaster.NewTextMessage("x")

		_, ok := apply(t, f, msg)
		assert.True(t, ok)
		_, ok = apply(t, f, msg)
		assert.True(t, ok)
		_, ok = apply(t, f, msg)
		assert.False(t, ok)
	})

	t.Run("per recipient", func(t *testing.T) {
		t.Parallel()
		f := filter.RecipientRateLimit(rate.Every(1<<62), 1, 16)
		a := &sink{BaseResource: broadcaster.NewBaseResource("a", "")}
		b := &sink{BaseResource: broadcaster.NewBaseResource("b", "")}
		msg := broadcaster.NewTextMessage("x")
		ctx := context.Background()

		assert.False(t, f.FilterFor(ctx, a, msg).IsVetoed())
		assert.True(t, f.FilterFor(ctx, a, msg).IsVetoed())
		assert.False(t, f.FilterFor(ctx, b, msg).IsVetoed())
	})
}

type sink struct {
	*broadcaster.BaseResource
	mu  sync.Mutex
	got []string
}

func (s *sink) Write(_ context.Context, m broadcaster.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, m.Text())
	return nil
}

func (s *sink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestFiltersInBroadcaster(t *testing.T) {
	t.Parallel()

	b := broadcaster.New("chat", broadcaster.WithFilters(
		filter.Trim(),
		filter.VetoEmpty(),
		filter.StripHTML(),
		filter.Upper(),
	))
	t.Cleanup(func() { _ = b.Destroy(context.Background()) })

	s := &sink{BaseResource: broadcaster.NewBaseResource("s", "")}
	require.NoError(t, b.AddResource(s))

	for _, in := range []string{"  <i>hi</i> ", "   ", "bye"} {
		fut, err := b.Broadcast(context.Background(), broadcaster.NewTextMessage(in))
		require.NoError(t, err)
		_, err = fut.Await(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"HI", "BYE"}, s.texts())
}
