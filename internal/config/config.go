// Package config loads service configuration from defaults, an optional
// YAML file, and RADVIEW_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides, e.g. RADVIEW_SERVER_ADDR.
const envPrefix = "RADVIEW_"

// Config is the explicit configuration handed to each collaborator at
// construction time.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Media  MediaConfig  `koanf:"media"`
	Data   DataConfig   `koanf:"data"`
	Log    LogConfig    `koanf:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// MediaConfig configures artifact storage and serving.
type MediaConfig struct {
	// Root is the directory rendered artifacts are written under.
	Root string `koanf:"root"`
	// URLPrefix is the mount point artifacts are served from.
	URLPrefix string `koanf:"urlprefix"`
}

// DataConfig configures the document store.
type DataConfig struct {
	Dir string `koanf:"dir"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8000"},
		Media:  MediaConfig{Root: "media", URLPrefix: "/media"},
		Data:   DataConfig{Dir: "data"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the effective configuration. path may be empty, in which
// case only defaults and environment overrides apply; a named but
// missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
