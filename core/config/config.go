package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once
	cacheMu    sync.Mutex
	cache      = make(map[reflect.Type]any)
)

// LoadEnvFiles loads the given .env files into the process environment
// before the first Load. Values already set in the environment win, and
// earlier files win over later ones. Missing files are skipped. Without
// arguments it loads ".env" if present.
func LoadEnvFiles(files ...string) error {
	var err error
	dotenvOnce.Do(func() {
		err = loadEnvFiles(files)
	})
	return err
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var errs []error
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("config: load %s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}

// Load parses environment variables into cfg. The first successful load for
// a type is cached and copied into later calls for the same type.
func Load[T any](cfg *T) error {
	if err := LoadEnvFiles(); err != nil {
		return err
	}

	typ := reflect.TypeOf(*cfg)

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[typ]; ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", typ, err)
	}
	cache[typ] = *cfg
	return nil
}

// MustLoad is Load that panics on failure.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Parse loads cfg from the environment without consulting or filling the cache.
func Parse[T any](cfg *T) error {
	if err := LoadEnvFiles(); err != nil {
		return err
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %T: %w", *cfg, err)
	}
	return nil
}

// Reset clears the cache. Intended for tests.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[reflect.Type]any)
}
