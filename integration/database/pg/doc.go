// Package pg backs broadcasters with PostgreSQL.
//
// Connect creates a pgx pool from Config (PG_* variables) and pings it with
// retries. Migrate applies the embedded schema through goose, and
// Healthcheck returns a ping probe.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//
// Cache keeps channel history in the broadcast_messages table. Replay
// markers are message ids; rows are ordered by insertion. Prune removes
// old rows and Run prunes periodically:
//
//	cache := pg.NewCacheFromConfig(pool, cfg)
//	g.Go(cache.Run(ctx))
//
// Cache writes join a transaction placed on the context with WithTx, so a
// message can be stored atomically with application data.
package pg
