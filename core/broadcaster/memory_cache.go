package broadcaster

import (
	"context"
	"sync"
	"time"

	"github.com/bautismal/atmosphere/core/cache"
)

// MemoryCacheConfig bounds an in-process MemoryCache.
type MemoryCacheConfig struct {
	MaxChannels int           `env:"CACHE_MAX_CHANNELS" envDefault:"1024"`
	MaxMessages int           `env:"CACHE_MAX_MESSAGES" envDefault:"256"`
	TTL         time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

func DefaultMemoryCacheConfig() MemoryCacheConfig {
	return MemoryCacheConfig{
		MaxChannels: 1024,
		MaxMessages: 256,
		TTL:         5 * time.Minute,
	}
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// MemoryCache keeps the latest messages of each channel in memory. Channels
// are held in an LRU so idle ones are dropped first once MaxChannels is hit.
type MemoryCache struct {
	cfg      MemoryCacheConfig
	channels *cache.LRUCache[string, *channelLog]
	now      func() time.Time
}

type channelLog struct {
	mu      sync.Mutex
	entries []cachedMessage
}

type cachedMessage struct {
	msg Message
	at  time.Time
}

// NewMemoryCache creates a MemoryCache. Zero config fields fall back to
// DefaultMemoryCacheConfig; a negative TTL disables expiry.
func NewMemoryCache(cfg MemoryCacheConfig, opts ...MemoryCacheOption) *MemoryCache {
	def := DefaultMemoryCacheConfig()
	if cfg.MaxChannels <= 0 {
		cfg.MaxChannels = def.MaxChannels
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.TTL == 0 {
		cfg.TTL = def.TTL
	}

	c := &MemoryCache{
		cfg:      cfg,
		channels: cache.NewLRUCache[string, *channelLog](cfg.MaxChannels),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Cache(_ context.Context, channel string, msg Message) error {
	log, _ := c.channels.GetOrPut(channel, func() *channelLog { return &channelLog{} })

	now := c.now()
	log.mu.Lock()
	defer log.mu.Unlock()

	log.expire(now, c.cfg.TTL)
	log.entries = append(log.entries, cachedMessage{msg: msg, at: now})
	if over := len(log.entries) - c.cfg.MaxMessages; over > 0 {
		log.entries = append(log.entries[:0:0], log.entries[over:]...)
	}
	return nil
}

func (c *MemoryCache) Retrieve(_ context.Context, channel, since string) ([]Message, error) {
	log, ok := c.channels.Get(channel)
	if !ok {
		return nil, nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	log.expire(c.now(), c.cfg.TTL)

	start := 0
	if since != "" {
		for i, e := range log.entries {
			if e.msg.ID == since {
				start = i + 1
				break
			}
		}
	}

	out := make([]Message, 0, len(log.entries)-start)
	for _, e := range log.entries[start:] {
		out = append(out, e.msg)
	}
	return out, nil
}

// Len returns the number of messages retained for channel.
func (c *MemoryCache) Len(channel string) int {
	log, ok := c.channels.Peek(channel)
	if !ok {
		return 0
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	return len(log.entries)
}

// Channels returns the cached channel names, most recently used first.
func (c *MemoryCache) Channels() []string {
	return c.channels.Keys()
}

// Evict drops a channel's history.
func (c *MemoryCache) Evict(channel string) {
	c.channels.Remove(channel)
}

func (l *channelLog) expire(now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	cut := 0
	for cut < len(l.entries) && now.Sub(l.entries[cut].at) >= ttl {
		cut++
	}
	if cut > 0 {
		l.entries = append(l.entries[:0:0], l.entries[cut:]...)
	}
}
