// Package config loads the tracekit configuration file.
//
// The file is TOML and lives at $XDG_CONFIG_HOME/tracekit/config.toml, or
// ~/.config/tracekit/config.toml when XDG_CONFIG_HOME is unset:
//
//	[vectorize]
//	colors = 16
//	blur = 1.5
//
//	[server]
//	addr = ":8080"
//	redis_addr = "localhost:6379"
//	artifact_ttl = "15m"
//	trace_timeout = "30s"
//
//	[cache]
//	enabled = true
//	ttl = "30m"
//
// A missing file is not an error; [Default] values are used. Keys present in
// the file override defaults, and command-line flags override the file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/session"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

const (
	// appName is used for the config directory.
	appName = "tracekit"

	// fileName is the config file inside the directory.
	fileName = "config.toml"

	// DefaultAddr is the HTTP listen address.
	DefaultAddr = ":8080"

	// DefaultMaxUpload bounds multipart request bodies.
	DefaultMaxUpload = 32 << 20
)

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the whole configuration file.
type Config struct {
	Vectorize vectorize.Options `toml:"vectorize"`
	Server    Server            `toml:"server"`
	Cache     Cache             `toml:"cache"`
}

// Server configures `tracekit serve`.
type Server struct {
	Addr          string   `toml:"addr"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	ArtifactTTL   Duration `toml:"artifact_ttl"`
	SessionTTL    Duration `toml:"session_ttl"`
	TraceTimeout  Duration `toml:"trace_timeout"` // zero waits indefinitely
	MaxUpload     int64    `toml:"max_upload"`
}

// Cache configures the traced-markup cache.
type Cache struct {
	Enabled bool     `toml:"enabled"`
	TTL     Duration `toml:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:        DefaultAddr,
			ArtifactTTL: Duration(cache.TTLArtifact),
			SessionTTL:  Duration(session.DefaultTTL),
			MaxUpload:   DefaultMaxUpload,
		},
		Cache: Cache{
			Enabled: true,
			TTL:     Duration(cache.TTLVectorize),
		},
	}
}

// Dir returns the configuration directory using XDG standard (~/.config/tracekit/).
func Dir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads path on top of Default. An empty path uses Path(). A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return Default(), nil
		}
		path = p
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses TOML from r on top of Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode writes cfg as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if err := c.PipelineOptions().Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "[vectorize]")
	}
	switch {
	case c.Server.Addr == "":
		return errors.New(errors.ErrCodeInvalidConfig, "[server] addr must not be empty")
	case c.Server.ArtifactTTL < 0, c.Server.SessionTTL < 0, c.Server.TraceTimeout < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "[server] durations must not be negative")
	case c.Server.MaxUpload < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "[server] max_upload must not be negative")
	case c.Server.RedisDB < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "[server] redis_db must not be negative")
	case c.Cache.TTL < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "[cache] ttl must not be negative")
	}
	return nil
}

// PipelineOptions returns the conversion options from [vectorize].
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{Vectorize: c.Vectorize}
}

// RedisConfig returns the redis connection settings, or false when redis is
// not configured.
func (c Config) RedisConfig() (cache.RedisConfig, bool) {
	if c.Server.RedisAddr == "" {
		return cache.RedisConfig{}, false
	}
	return cache.RedisConfig{
		Addr:     c.Server.RedisAddr,
		Password: c.Server.RedisPassword,
		DB:       c.Server.RedisDB,
	}, true
}
