// Package redis backs broadcasters with Redis: connection setup, a stream
// based delivery cache and a pub/sub relay for running several nodes.
//
// Connect parses a redis:// or rediss:// URL, then pings with exponential
// backoff until Redis answers or the attempts run out:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// # Cache
//
// Cache keeps the recent history of each channel in a stream capped at
// CacheMaxLen entries and expiring CacheTTL after the last write. A message
// id is stored once even when several nodes cache the same broadcast.
//
//	factory := broadcaster.NewFactory(broadcaster.WithDefaults(
//		broadcaster.WithCache(redis.NewCacheFromConfig(client, cfg)),
//	))
//
// # Relay
//
// Relay publishes local broadcasts on "<prefix>:relay:<channel>" and replays
// messages from other nodes into the local broadcaster of the same id. It
// never creates broadcasters for channels the node does not serve.
//
//	relay := redis.NewRelay(client, factory)
//	g.Go(relay.Run(ctx))
//	_, err = relay.Broadcast(ctx, b, broadcaster.NewTextMessage("hi"))
//
// Healthcheck returns a ping probe for readiness endpoints. Errors wrap the
// sentinels in errors.go and can be matched with errors.Is.
package redis
