package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

func newBroadcaster(t *testing.T, opts ...broadcaster.Option) *broadcaster.Broadcaster {
	t.Helper()
	b := broadcaster.New("room", opts...)
	t.Cleanup(func() { _ = b.Destroy(context.Background()) })
	return b
}

func waitForResources(t *testing.T, b *broadcaster.Broadcaster, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Resources().Len() == n },
		2*time.Second, 5*time.Millisecond)
}

func broadcast(t *testing.T, b *broadcaster.Broadcaster, text string) broadcaster.Message {
	t.Helper()
	f, err := b.Broadcast(context.Background(), broadcaster.NewTextMessage(text))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := f.Await(ctx)
	require.NoError(t, err)
	return msg
}
