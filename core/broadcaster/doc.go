// Package broadcaster fans messages out to many connected clients.
//
// A Broadcaster owns one channel. Transports register a Resource per client
// connection; a broadcast takes a snapshot of the registry, narrows it with a
// Selector, runs the message through the filter Chain and queues one write
// per recipient on the Executor. The call returns at once with a Future that
// resolves after every recipient's write has finished.
//
//	b := broadcaster.New("chat",
//		broadcaster.WithFilters(filter.EscapeHTML()),
//		broadcaster.WithCache(broadcaster.NewMemoryCache(broadcaster.DefaultMemoryCacheConfig())),
//	)
//	defer b.Destroy(context.Background())
//
//	_ = b.AddResource(conn)
//
//	f, err := b.BroadcastExcluding(ctx, broadcaster.NewTextMessage("hi"), sender)
//	if err != nil {
//		return err
//	}
//	if _, err := f.AwaitWithTimeout(5 * time.Second); err != nil {
//		log.Warn("delivery still running", logger.Error(err))
//	}
//
// # Delivery guarantees
//
// Writes to one resource never overlap and follow submission order. A write
// that fails, times out or is refused for capacity still counts toward the
// future's completion and is recorded in Failed and Errors. A vetoed message
// is neither delivered nor cached; its future is resolved to the original
// message.
//
// # Lifecycle
//
// New returns an initialized broadcaster; the first broadcast starts it.
// After Destroy, Broadcast fails with ErrDestroyed while the exclusion and
// Only variants return an already resolved future.
//
// # Caching
//
// With a Cache configured, each accepted message is stored after filtering,
// in submission order per channel. Replay sends a resource everything stored
// after the id of the last message it saw. Cache errors are logged and passed
// to Hooks.OnCacheError, never to the broadcaster's caller.
//
// # Factory
//
// Factory keeps broadcasters by id and shares a single executor between them:
//
//	f := broadcaster.NewFactoryFromConfig(cfg, broadcaster.WithDefaults(broadcaster.WithCache(c)))
//	g.Go(f.Run(ctx))
//
//	b, err := f.Get("room:42")
package broadcaster
