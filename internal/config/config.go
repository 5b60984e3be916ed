// Package config loads service configuration from an optional YAML
// file, BENKYO_-prefixed environment variables, and command-line
// flags, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

const envPrefix = "BENKYO_"

// Config is the full service configuration. Keys are nested with dots,
// so BENKYO_DATABASE_URL sets database.url and --cache.url sets
// cache.url.
type Config struct {
	Server   Server   `koanf:"server"`
	Database Database `koanf:"database"`
	Cache    Cache    `koanf:"cache"`
	Study    Study    `koanf:"study"`
}

type Server struct {
	Addr string `koanf:"addr" validate:"required"`
}

type Database struct {
	URL string `koanf:"url" validate:"required"`
}

type Cache struct {
	// URL may be empty, in which case sessions cannot be cached and
	// study endpoints report the cache as unavailable.
	URL string `koanf:"url"`
}

type Study struct {
	Limit int `koanf:"limit" validate:"gt=0"`
}

// Defaults returns a configuration suitable for local development.
func Defaults() Config {
	return Config{
		Server:   Server{Addr: ":8080"},
		Database: Database{URL: "postgres://localhost:5432/benkyo?sslmode=disable"},
		Cache:    Cache{URL: "redis://localhost:6379/0"},
		Study:    Study{Limit: 100},
	}
}

// Load merges the file at path (when non-empty), the environment, and
// flags over Defaults, then validates the result.
func Load(path string, flags *flag.FlagSet) (*Config, error) {
	ko := koanf.New(".")

	if path != "" {
		if err := ko.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := ko.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := ko.Load(posflag.Provider(flags, ".", ko), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Defaults()
	if err := ko.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// envKey maps BENKYO_DATABASE_URL to database.url. Key segments are
// single words, so every underscore is a nesting separator.
func envKey(name string) string {
	name = strings.TrimPrefix(name, envPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "_", ".")
}
