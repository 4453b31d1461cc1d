// Command atmosphere serves broadcast channels over WebSocket, SSE and long-poll.
//
// Channels are created on first connection. Messages posted to
// /broadcast/{channel} or sent by clients are fanned out to every connection
// of the channel, optionally cached for replay in memory, redis or postgres
// and relayed to other nodes over redis pub/sub.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/config"
	"github.com/bautismal/atmosphere/core/filter"
	"github.com/bautismal/atmosphere/core/health"
	"github.com/bautismal/atmosphere/core/logger"
	"github.com/bautismal/atmosphere/core/server"
	"github.com/bautismal/atmosphere/integration/database/pg"
	"github.com/bautismal/atmosphere/integration/database/redis"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "atmosphere:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("atmosphere", pflag.ContinueOnError)
	envFiles := flags.StringSlice("env-file", []string{".env"}, "dotenv files to load before reading the environment")
	addr := flags.String("addr", "", "listen address, overrides SERVER_ADDR")
	backend := flags.String("cache", "", "delivery cache: none, memory, redis or postgres; overrides CACHE_BACKEND")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := config.LoadEnvFiles(*envFiles...); err != nil {
		return err
	}
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backend != "" {
		cfg.CacheBackend = *backend
	}

	log, closeLog := newLogger(cfg)
	defer closeLog()
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	checks := []func(context.Context) error{}

	cache, err := openCache(ctx, cfg, log, eg, &checks)
	if err != nil {
		return err
	}

	factory := broadcaster.NewFactoryFromConfig(cfg.Broadcaster,
		broadcaster.WithFactoryLogger(log.With(logger.Component("broadcaster"))),
		broadcaster.WithDefaults(broadcaster.WithCache(cache)),
	)
	checks = append(checks, factory.Healthcheck)

	var relay *redis.Relay
	if cfg.RelayEnabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		relay = redis.NewRelay(client, factory,
			redis.WithRelayKeyPrefix(cfg.Redis.KeyPrefix),
			redis.WithRelayLogger(log))
		eg.Go(relay.Run(ctx))
		checks = append(checks, redis.Healthcheck(client))
	}

	h := newHub(ctx, factory, relay, cfg, log, eg.Go)
	router := newRouter(h, log, health.Readiness(log, checks...))

	srv, err := server.NewFromConfig(cfg.Server,
		server.WithLogger(log),
		server.WithOnShutdown(h.close),
	)
	if err != nil {
		return err
	}
	eg.Go(srv.Run(ctx, router))
	eg.Go(factory.Run(ctx))

	log.Info("atmosphere started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("cache", cfg.CacheBackend),
		slog.Bool("relay", relay != nil))

	if err := eg.Wait(); err != nil {
		log.Error("stopped with error", logger.Error(err))
		return err
	}
	log.Info("atmosphere stopped")
	return nil
}

func newLogger(cfg Config) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = func() { _ = rotating.Close() }
	}

	var opts []logger.Option
	switch strings.ToLower(cfg.AppEnv) {
	case "production", "prod":
		opts = append(opts, logger.WithProduction(cfg.AppName))
	case "staging":
		opts = append(opts, logger.WithStaging(cfg.AppName))
	default:
		opts = append(opts, logger.WithDevelopment(cfg.AppName))
	}
	opts = append(opts, logger.WithOutput(out))

	if cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			opts = append(opts, logger.WithLevel(level))
		}
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		opts = append(opts, logger.WithJSONFormatter())
	case "text":
		opts = append(opts, logger.WithTextFormatter())
	}
	return logger.New(opts...), closeFn
}

// openCache connects the configured delivery cache and registers its
// background work and readiness probe.
func openCache(ctx context.Context, cfg Config, log *slog.Logger, eg *errgroup.Group, checks *[]func(context.Context) error) (broadcaster.Cache, error) {
	switch strings.ToLower(cfg.CacheBackend) {
	case cacheNone, "":
		return broadcaster.NoopCache{}, nil
	case cacheMemory:
		return broadcaster.NewMemoryCache(cfg.Broadcaster.Cache), nil
	case cacheRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		eg.Go(func() error {
			<-ctx.Done()
			return client.Close()
		})
		*checks = append(*checks, redis.Healthcheck(client))
		return redis.NewCacheFromConfig(client, cfg.Redis,
			redis.WithCacheLogger(log.With(logger.Component("cache")))), nil
	case cachePG, "pg":
		pool, err := pg.Connect(ctx, cfg.PG)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, cfg.PG, log.With(logger.Component("migration"))); err != nil {
			pool.Close()
			return nil, err
		}
		cache := pg.NewCacheFromConfig(pool, cfg.PG,
			pg.WithCacheLogger(log.With(logger.Component("cache"))))
		eg.Go(cache.Run(ctx))
		eg.Go(func() error {
			<-ctx.Done()
			pool.Close()
			return nil
		})
		*checks = append(*checks, pg.Healthcheck(pool))
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// channelFilters builds a fresh filter set for one channel, so stateful
// filters such as the rate limit are never shared between channels.
func channelFilters(cfg Config) []broadcaster.Filter {
	filters := []broadcaster.Filter{filter.RemoveControlChars(), filter.VetoEmpty()}
	if cfg.MaxMessage > 0 {
		filters = append(filters, filter.MaxSize(cfg.MaxMessage))
	}
	if cfg.EscapeHTML {
		filters = append(filters, filter.EscapeHTML())
	}
	if cfg.ChannelRate > 0 {
		filters = append(filters, filter.RateLimit(rate.Limit(cfg.ChannelRate), cfg.ChannelBurst))
	}
	return filters
}
