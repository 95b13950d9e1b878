// Package config loads the server configuration.
//
// A config file is YAML. It is first checked against an embedded CUE
// schema, which rejects unknown keys, bad enums and malformed durations,
// then decoded over Default.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/persist"
	"github.com/roach88/cadstore/internal/store"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full server configuration.
type Config struct {
	Listen        string           `yaml:"listen"`
	MetricsListen string           `yaml:"metrics_listen"`
	Log           LogConfig        `yaml:"log"`
	Store         StoreConfig      `yaml:"store"`
	Graph         GraphConfig      `yaml:"graph"`
	Outbox        OutboxConfig     `yaml:"outbox"`
	Engine        EngineConfig     `yaml:"engine"`
	S3            persist.S3Config `yaml:"s3"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	LockTimeout  time.Duration `yaml:"lock_timeout"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Shards       int           `yaml:"shards"`
}

type GraphConfig struct {
	Shards int `yaml:"shards"`
}

type OutboxConfig struct {
	Capacity int `yaml:"capacity"`
}

type EngineConfig struct {
	Workers int `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			LockTimeout:  store.DefaultLockTimeout,
			RetryBackoff: store.DefaultRetryBackoff,
			Shards:       store.DefaultShards,
		},
		Graph:  GraphConfig{Shards: 16},
		Outbox: OutboxConfig{Capacity: 1024},
		Engine: EngineConfig{Workers: 8},
	}
}

// Load reads and validates the config file at path. An empty path
// returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data and decodes it over Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := Validate(data); err != nil {
		return Config{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// Validate checks data against the embedded schema.
func Validate(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses Log.Level.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// EngineOptions returns the per-file engine options the config implies.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithStoreOptions(
			store.WithLockTimeout(c.Store.LockTimeout),
			store.WithRetryBackoff(c.Store.RetryBackoff),
			store.WithShards(c.Store.Shards),
		),
		engine.WithGraphShards(c.Graph.Shards),
		engine.WithWorkers(c.Engine.Workers),
	}
}

// S3Enabled reports whether an S3 backend should be configured.
func (c Config) S3Enabled() bool {
	return c.S3.Region != "" || c.S3.Endpoint != ""
}
