package broadcaster

import "time"

const (
	DefaultCacheTimeout    = 2 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Config holds broadcaster settings loaded from the environment.
type Config struct {
	Executor        ExecutorConfig
	Cache           MemoryCacheConfig
	CacheTimeout    time.Duration `env:"BROADCASTER_CACHE_TIMEOUT" envDefault:"2s"`
	ShutdownTimeout time.Duration `env:"BROADCASTER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func DefaultConfig() Config {
	return Config{
		Executor:        DefaultExecutorConfig(),
		Cache:           DefaultMemoryCacheConfig(),
		CacheTimeout:    DefaultCacheTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// NewFromConfig creates a broadcaster with an owned executor built from cfg.
// Additional options override config values.
func NewFromConfig(id string, cfg Config, opts ...Option) *Broadcaster {
	allOpts := append([]Option{
		WithExecutorConfig(cfg.Executor),
		WithCacheTimeout(cfg.CacheTimeout),
	}, opts...)
	return New(id, allOpts...)
}
