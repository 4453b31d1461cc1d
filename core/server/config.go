package server

import (
	"time"
)

// Config holds server settings loaded from SERVER_* variables.
type Config struct {
	Addr              string        `env:"SERVER_ADDR" envDefault:":8080"`
	ReadTimeout       time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"0s"`
	ReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout       time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxHeaderBytes    int           `env:"SERVER_MAX_HEADER_BYTES" envDefault:"1048576"`

	TLSCertFile string `env:"SERVER_TLS_CERT_FILE"`
	TLSKeyFile  string `env:"SERVER_TLS_KEY_FILE"`
}

func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// NewFromConfig builds a Server from cfg; opts override it.
func NewFromConfig(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Addr == "" {
		return nil, ErrMissingAddress
	}

	base := []Option{
		WithReadTimeout(cfg.ReadTimeout),
		WithWriteTimeout(cfg.WriteTimeout),
	}
	if cfg.ReadHeaderTimeout > 0 {
		base = append(base, WithReadHeaderTimeout(cfg.ReadHeaderTimeout))
	}
	if cfg.IdleTimeout > 0 {
		base = append(base, WithIdleTimeout(cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout > 0 {
		base = append(base, WithShutdownTimeout(cfg.ShutdownTimeout))
	}
	if cfg.MaxHeaderBytes > 0 {
		base = append(base, WithMaxHeaderBytes(cfg.MaxHeaderBytes))
	}
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		tlsCfg, err := LoadTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		base = append(base, WithTLS(tlsCfg))
	}

	return New(cfg.Addr, append(base, opts...)...), nil
}
