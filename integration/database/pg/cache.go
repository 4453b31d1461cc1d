package pg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/logger"
	"github.com/bautismal/atmosphere/pkg/codec"
)

const (
	insertMessage = `
INSERT INTO broadcast_messages (channel, id, body, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (channel, id) DO NOTHING`

	// Messages after the marker; all when the marker is unknown. The newest
	// $3 rows are kept and returned oldest first.
	selectAfter = `
SELECT body FROM (
    SELECT seq, body FROM broadcast_messages
    WHERE channel = $1
      AND seq > COALESCE(
          (SELECT seq FROM broadcast_messages WHERE channel = $1 AND id = $2), 0)
    ORDER BY seq DESC
    LIMIT $3
) recent
ORDER BY seq`

	deleteExpired = `DELETE FROM broadcast_messages WHERE created_at < $1`

	deleteOverflow = `
DELETE FROM broadcast_messages m
USING (
    SELECT seq FROM (
        SELECT seq, row_number() OVER (PARTITION BY channel ORDER BY seq DESC) AS rn
        FROM broadcast_messages
    ) ranked
    WHERE rn > $1
) old
WHERE m.seq = old.seq`
)

// Cache stores broadcast history in the broadcast_messages table created by
// Migrate. Bodies are CBOR encoded messages.
type Cache struct {
	pool      *pgxpool.Pool
	maxReplay int
	retention time.Duration
	keep      int
	interval  time.Duration
	logger    *slog.Logger
}

var _ broadcaster.Cache = (*Cache)(nil)

type CacheOption func(*Cache)

// WithMaxReplay bounds how many messages one Retrieve returns.
func WithMaxReplay(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.maxReplay = n
		}
	}
}

// WithRetention sets the age after which Prune deletes messages. Zero keeps
// them regardless of age.
func WithRetention(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.retention = max(d, 0)
	}
}

// WithKeepPerChannel sets how many messages per channel survive Prune. Zero
// disables the cap.
func WithKeepPerChannel(n int) CacheOption {
	return func(c *Cache) {
		c.keep = max(n, 0)
	}
}

// WithPruneInterval sets how often Run prunes.
func WithPruneInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCache(pool *pgxpool.Pool, opts ...CacheOption) *Cache {
	c := &Cache{
		pool:      pool,
		maxReplay: 500,
		retention: 24 * time.Hour,
		keep:      1000,
		interval:  10 * time.Minute,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCacheFromConfig applies cfg first, so opts win.
func NewCacheFromConfig(pool *pgxpool.Pool, cfg Config, opts ...CacheOption) *Cache {
	return NewCache(pool, append([]CacheOption{
		WithMaxReplay(cfg.CacheMaxReplay),
		WithRetention(cfg.CacheRetention),
		WithKeepPerChannel(cfg.CacheKeepPerChannel),
		WithPruneInterval(cfg.CachePruneInterval),
	}, opts...)...)
}

// Cache inserts msg. A message id already stored for channel is ignored.
func (c *Cache) Cache(ctx context.Context, channel string, msg broadcaster.Message) error {
	body, err := codec.Marshal(msg)
	if err != nil {
		return errors.Join(ErrCacheWrite, err)
	}
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := conn(ctx, c.pool).Exec(ctx, insertMessage, channel, msg.ID, body, at); err != nil {
		return errors.Join(ErrCacheWrite, err)
	}
	return nil
}

// Retrieve returns the messages stored after the one with id since, oldest
// first and at most the replay limit. The newest are kept when the limit
// cuts. Rows that fail to decode are skipped.
func (c *Cache) Retrieve(ctx context.Context, channel, since string) ([]broadcaster.Message, error) {
	rows, err := conn(ctx, c.pool).Query(ctx, selectAfter, channel, since, c.maxReplay)
	if err != nil {
		return nil, errors.Join(ErrCacheRead, err)
	}
	defer rows.Close()

	var out []broadcaster.Message
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Join(ErrCacheRead, err)
		}
		var m broadcaster.Message
		if err := codec.Unmarshal(body, &m); err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable cache row",
				logger.Channel(channel),
				logger.Error(err))
			continue
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrCacheRead, err)
	}
	return out, nil
}

// Prune deletes messages past retention and trims every channel to the
// per-channel cap in one transaction. It returns the number of rows removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	var removed int64
	err := InTx(ctx, c.pool, func(ctx context.Context) error {
		q := conn(ctx, c.pool)
		if c.retention > 0 {
			tag, err := q.Exec(ctx, deleteExpired, time.Now().Add(-c.retention))
			if err != nil {
				return err
			}
			removed += tag.RowsAffected()
		}
		if c.keep > 0 {
			tag, err := q.Exec(ctx, deleteOverflow, c.keep)
			if err != nil {
				return err
			}
			removed += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, errors.Join(ErrCacheWrite, err)
	}
	return removed, nil
}

// Run prunes on every interval until ctx is done. It fits an errgroup.
func (c *Cache) Run(ctx context.Context) func() error {
	return func() error {
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				n, err := c.Prune(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					c.logger.WarnContext(ctx, "prune failed", logger.Error(err))
					continue
				}
				if n > 0 {
					c.logger.DebugContext(ctx, "cache pruned", logger.Count("rows", int(n)))
				}
			}
		}
	}
}
