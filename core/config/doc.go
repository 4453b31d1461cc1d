// Package config loads typed configuration from environment variables.
//
// Each configuration type is parsed once with caarlos0/env and cached for
// later calls. A .env file is loaded with joho/godotenv on first use; call
// LoadEnvFiles before the first Load to point at other files.
//
//	type BroadcastConfig struct {
//		Workers      int           `env:"BROADCASTER_WORKERS" envDefault:"16"`
//		WriteTimeout time.Duration `env:"BROADCASTER_WRITE_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg BroadcastConfig
//	config.MustLoad(&cfg)
//
// Parse bypasses the cache, which is handy when a component wants a fresh
// read of its own settings.
package config
