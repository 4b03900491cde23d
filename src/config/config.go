// Package config loads vsnap settings with koanf.
//
// Sources in priority order (later wins): defaults, the YAML file, VSNAP_*
// environment variables, explicit command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"vsnap/src/target"
	"vsnap/src/version"
)

const (
	EnvPrefix = "VSNAP_"
	// EnvFile names the config file when --config is not given.
	EnvFile = "VSNAP_CONFIG"
)

// Config is the complete vsnap configuration.
type Config struct {
	Image  string       `koanf:"image"`
	Docker DockerConfig `koanf:"docker"`
	List   ListConfig   `koanf:"list"`
	Log    LogConfig    `koanf:"log"`
}

type DockerConfig struct {
	// Host is a daemon endpoint; empty means DOCKER_HOST or the default socket.
	Host string `koanf:"host"`
}

type ListConfig struct {
	// Concurrency bounds the size helpers run in parallel by list --size.
	Concurrency int `koanf:"concurrency"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Image: version.DefaultImage(),
		List:  ListConfig{Concurrency: 4},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

func defaultsMap() map[string]any {
	d := Defaults()
	return map[string]any{
		"image":  d.Image,
		"docker": map[string]any{"host": d.Docker.Host},
		"list":   map[string]any{"concurrency": d.List.Concurrency},
		"log":    map[string]any{"level": d.Log.Level, "format": d.Log.Format},
	}
}

// Options selects the sources Load reads.
type Options struct {
	// File is the YAML file to read. Empty falls back to $VSNAP_CONFIG; no
	// file at all is fine.
	File string
	// Overrides are flag values keyed by config key ("docker.host"). Only
	// flags the user actually set belong here.
	Overrides map[string]any
}

// Load merges all sources into a validated Config.
func Load(opts Options) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(mapProvider(defaultsMap()), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	path := opts.File
	if path == "" {
		path = os.Getenv(EnvFile)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// VSNAP_DOCKER_HOST -> docker.host
	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if len(opts.Overrides) > 0 {
		if err := k.Load(mapProvider(nest(opts.Overrides)), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot check by type.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Image) == "" {
		errs = append(errs, errors.New("image must not be empty"))
	}
	if c.List.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("list.concurrency must be at least 1, got %d", c.List.Concurrency))
	}
	if c.Docker.Host != "" {
		if _, err := target.Parse(c.Docker.Host); err != nil {
			errs = append(errs, fmt.Errorf("docker.host: %w", err))
		}
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		errs = append(errs, fmt.Errorf("log.level %q is not one of trace, debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DockerHost returns the normalised daemon endpoint, or "" for the
// environment default.
func (c Config) DockerHost() string {
	if c.Docker.Host == "" {
		return ""
	}
	t, err := target.Parse(c.Docker.Host)
	if err != nil {
		return c.Docker.Host
	}
	return t.String()
}

// nest turns {"docker.host": v} into {"docker": {"host": v}}.
func nest(flat map[string]any) map[string]any {
	out := map[string]any{}
	for key, v := range flat {
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := m[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				m[p] = child
			}
			m = child
		}
		m[parts[len(parts)-1]] = v
	}
	return out
}
