// Package cache provides a generic, thread-safe LRU cache.
//
//	import "github.com/bautismal/atmosphere/core/cache"
//
//	c := cache.NewLRUCache[string, *ChannelLog](1024)
//	c.SetEvictCallback(func(channel string, log *ChannelLog) {
//		slog.Debug("channel log evicted", "channel", channel)
//	})
//
//	c.Put("chat", log)
//	if log, ok := c.Get("chat"); ok {
//		log.Append(msg)
//	}
//
// Get, Put and Remove are O(1). Eviction callbacks run outside the cache
// lock, so they may safely call back into the cache. Explicit Remove and
// Clear never fire the callback.
package cache
