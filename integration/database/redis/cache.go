package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/logger"
	"github.com/bautismal/atmosphere/pkg/codec"
)

// seenTTL bounds the dedup marker when the stream itself never expires.
const seenTTL = time.Hour

// appendScript adds a message to a channel stream once per message id, so
// nodes relaying the same broadcast into a shared cache store it once.
//
// KEYS[1] stream, KEYS[2] dedup marker
// ARGV: id, body, maxlen, "~" for approximate trimming, marker ttl seconds,
// stream ttl seconds
var appendScript = redis.NewScript(`
if not redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[5]) then
	return 0
end
if tonumber(ARGV[3]) > 0 and ARGV[4] == '~' then
	redis.call('XADD', KEYS[1], 'MAXLEN', '~', ARGV[3], '*', 'id', ARGV[1], 'msg', ARGV[2])
elseif tonumber(ARGV[3]) > 0 then
	redis.call('XADD', KEYS[1], 'MAXLEN', ARGV[3], '*', 'id', ARGV[1], 'msg', ARGV[2])
else
	redis.call('XADD', KEYS[1], '*', 'id', ARGV[1], 'msg', ARGV[2])
end
if tonumber(ARGV[6]) > 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[6])
end
return 1
`)

// Cache stores broadcast history in one Redis stream per channel. Entries
// carry the message id and its CBOR encoding.
type Cache struct {
	client   redis.UniversalClient
	prefix   string
	maxLen   int64
	exactCap bool
	ttl      time.Duration
	logger   *slog.Logger
}

var _ broadcaster.Cache = (*Cache)(nil)

type CacheOption func(*Cache)

func WithCacheKeyPrefix(prefix string) CacheOption {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithMaxLen caps each stream. Zero keeps everything.
func WithMaxLen(n int64) CacheOption {
	return func(c *Cache) {
		c.maxLen = max(n, 0)
	}
}

// WithExactCap trims streams to exactly the cap instead of letting Redis
// trim in whole nodes.
func WithExactCap() CacheOption {
	return func(c *Cache) {
		c.exactCap = true
	}
}

// WithTTL expires idle channel streams. Zero keeps them forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = max(ttl, 0)
	}
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCache(client redis.UniversalClient, opts ...CacheOption) *Cache {
	c := &Cache{
		client: client,
		prefix: "atmosphere",
		maxLen: 1000,
		ttl:    24 * time.Hour,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCacheFromConfig applies cfg first, so opts win.
func NewCacheFromConfig(client redis.UniversalClient, cfg Config, opts ...CacheOption) *Cache {
	base := []CacheOption{
		WithCacheKeyPrefix(cfg.KeyPrefix),
		WithMaxLen(cfg.CacheMaxLen),
		WithTTL(cfg.CacheTTL),
	}
	if cfg.CacheExactCap {
		base = append(base, WithExactCap())
	}
	return NewCache(client, append(base, opts...)...)
}

// Keys of one channel share a hash tag so the append script stays in one
// cluster slot.
func (c *Cache) streamKey(channel string) string { return c.prefix + ":cache:{" + channel + "}" }

func (c *Cache) seenKey(channel, id string) string {
	return c.prefix + ":seen:{" + channel + "}:" + id
}

// Cache appends msg to the channel stream. A message id already stored is
// ignored.
func (c *Cache) Cache(ctx context.Context, channel string, msg broadcaster.Message) error {
	body, err := codec.Marshal(msg)
	if err != nil {
		return errors.Join(ErrCacheWrite, err)
	}

	trim := "~"
	if c.exactCap {
		trim = ""
	}
	marker := seenTTL
	if c.ttl > 0 {
		marker = c.ttl
	}

	keys := []string{c.streamKey(channel), c.seenKey(channel, msg.ID)}
	err = appendScript.Run(ctx, c.client, keys,
		msg.ID, body, c.maxLen, trim, seconds(marker), seconds(c.ttl),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Join(ErrCacheWrite, err)
	}
	return nil
}

// Retrieve returns the messages stored after the one with id since, oldest
// first. An empty or unknown since returns the whole stream. Entries that
// fail to decode are skipped.
func (c *Cache) Retrieve(ctx context.Context, channel, since string) ([]broadcaster.Message, error) {
	entries, err := c.client.XRange(ctx, c.streamKey(channel), "-", "+").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Join(ErrCacheRead, err)
	}

	start := 0
	if since != "" {
		for i, e := range entries {
			if id, _ := e.Values["id"].(string); id == since {
				start = i + 1
				break
			}
		}
	}

	out := make([]broadcaster.Message, 0, len(entries)-start)
	for _, e := range entries[start:] {
		body, _ := e.Values["msg"].(string)
		var m broadcaster.Message
		if err := codec.Unmarshal([]byte(body), &m); err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable cache entry",
				logger.Channel(channel),
				logger.Key("entry", e.ID),
				logger.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Len reports the number of entries stored for channel.
func (c *Cache) Len(ctx context.Context, channel string) (int64, error) {
	n, err := c.client.XLen(ctx, c.streamKey(channel)).Result()
	if err != nil {
		return 0, errors.Join(ErrCacheRead, err)
	}
	return n, nil
}

// Evict drops the history of channel.
func (c *Cache) Evict(ctx context.Context, channel string) error {
	if err := c.client.Del(ctx, c.streamKey(channel)).Err(); err != nil {
		return errors.Join(ErrCacheWrite, err)
	}
	return nil
}

func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
