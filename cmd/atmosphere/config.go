package main

import (
	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/server"
	"github.com/bautismal/atmosphere/core/transport"
	"github.com/bautismal/atmosphere/integration/database/pg"
	"github.com/bautismal/atmosphere/integration/database/redis"
)

// Cache backends.
const (
	cacheNone   = "none"
	cacheMemory = "memory"
	cacheRedis  = "redis"
	cachePG     = "postgres"
)

type Config struct {
	AppName   string `env:"APP_NAME" envDefault:"atmosphere"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"25"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"10"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`

	CacheBackend string `env:"CACHE_BACKEND" envDefault:"memory"`
	RelayEnabled bool   `env:"RELAY_ENABLED" envDefault:"false"`

	// Message filters, built per channel. FILTER_CHANNEL_RATE is messages per
	// second for each channel; zero disables the limit.
	EscapeHTML   bool    `env:"FILTER_ESCAPE_HTML" envDefault:"true"`
	MaxMessage   int     `env:"FILTER_MAX_MESSAGE_BYTES" envDefault:"65536"`
	ChannelRate  float64 `env:"FILTER_CHANNEL_RATE" envDefault:"0"`
	ChannelBurst int     `env:"FILTER_CHANNEL_BURST" envDefault:"100"`

	SessionCookie string `env:"SESSION_COOKIE" envDefault:"atmosphere_session"`

	Server      server.Config
	Broadcaster broadcaster.Config
	Transport   transport.Config
	Redis       redis.Config
	PG          pg.Config
}
