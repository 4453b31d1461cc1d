package redis

import "time"

// Config holds the connection settings and the defaults for the cache and
// relay built on top of the client.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	KeyPrefix     string        `env:"REDIS_KEY_PREFIX" envDefault:"atmosphere"`
	CacheMaxLen   int64         `env:"REDIS_CACHE_MAX_LEN" envDefault:"1000"`
	CacheTTL      time.Duration `env:"REDIS_CACHE_TTL" envDefault:"24h"`
	CacheExactCap bool          `env:"REDIS_CACHE_EXACT_CAP" envDefault:"false"`
}

func DefaultConfig() Config {
	return Config{
		ConnectionURL:  "redis://localhost:6379/0",
		RetryAttempts:  3,
		RetryInterval:  5 * time.Second,
		ConnectTimeout: 30 * time.Second,
		KeyPrefix:      "atmosphere",
		CacheMaxLen:    1000,
		CacheTTL:       24 * time.Hour,
	}
}
