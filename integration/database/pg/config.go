package pg

import "time"

type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL"`
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`
	RetryAttempts     int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval     time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
	MigrationsTable   string        `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"`

	// Delivery cache.
	CacheMaxReplay      int           `env:"PG_CACHE_MAX_REPLAY" envDefault:"500"`
	CacheRetention      time.Duration `env:"PG_CACHE_RETENTION" envDefault:"24h"`
	CacheKeepPerChannel int           `env:"PG_CACHE_KEEP_PER_CHANNEL" envDefault:"1000"`
	CachePruneInterval  time.Duration `env:"PG_CACHE_PRUNE_INTERVAL" envDefault:"10m"`
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckPeriod:   time.Minute,
		MaxConnIdleTime:     10 * time.Minute,
		MaxConnLifetime:     30 * time.Minute,
		RetryAttempts:       3,
		RetryInterval:       5 * time.Second,
		MigrationsTable:     "schema_migrations",
		CacheMaxReplay:      500,
		CacheRetention:      24 * time.Hour,
		CacheKeepPerChannel: 1000,
		CachePruneInterval:  10 * time.Minute,
	}
}
