// Package config handles loading and saving slidetree configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config: ~/.config/slidetree/config.yaml
//
// Values are layered: built-in defaults, then the YAML file, then
// SLIDETREE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/vanderheijden86/slidetree/pkg/mode"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SLIDETREE_"

// DefaultsConfig holds the build defaults used when neither the command line
// nor an input file sets them.
type DefaultsConfig struct {
	Mode              string `koanf:"mode" yaml:"mode,omitempty"` // e.g. "w1" or "b1w3,20"
	Random            bool   `koanf:"random" yaml:"random,omitempty"`
	DontRecurse       bool   `koanf:"dont_recurse" yaml:"dont_recurse,omitempty"`
	Video             bool   `koanf:"video" yaml:"video,omitempty"`
	Mute              bool   `koanf:"mute" yaml:"mute,omitempty"`
	MaxDepth          int    `koanf:"max_depth" yaml:"max_depth,omitempty"`
	IgnoreBelowBottom bool   `koanf:"ignore_below_bottom" yaml:"ignore_below_bottom,omitempty"`
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level,omitempty"`   // trace, debug, info, warn, error
	Format string `koanf:"format" yaml:"format,omitempty"` // console or json
}

// OutputConfig controls where exports land when no explicit path is given.
type OutputConfig struct {
	Dir string `koanf:"dir" yaml:"dir,omitempty"`
}

// Config is the top-level configuration for slidetree.
type Config struct {
	Defaults DefaultsConfig `koanf:"defaults" yaml:"defaults,omitempty"`
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging,omitempty"`
	Output   OutputConfig   `koanf:"output" yaml:"output,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			Mode:     mode.DefaultMap().String(),
			MaxDepth: DefaultMaxDepth,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigDir returns the XDG config directory for slidetree.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "slidetree")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "slidetree")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig (plus environment overrides) if the file doesn't exist.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from a specific path. A missing file is not an error.
func LoadFrom(path string) (Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return DefaultConfig(), fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return DefaultConfig(), fmt.Errorf("reading config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return DefaultConfig(), fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Output.Dir = expandHome(cfg.Output.Dir)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envKeys maps SLIDETREE_* variables to config paths. Anything else under the
// prefix (SLIDETREE_DEBUG, SLIDETREE_METRICS) is left alone.
var envKeys = map[string]string{
	"slidetree_mode":                "defaults.mode",
	"slidetree_random":              "defaults.random",
	"slidetree_dont_recurse":        "defaults.dont_recurse",
	"slidetree_video":               "defaults.video",
	"slidetree_mute":                "defaults.mute",
	"slidetree_max_depth":           "defaults.max_depth",
	"slidetree_ignore_below_bottom": "defaults.ignore_below_bottom",
	"slidetree_log_level":           "logging.level",
	"slidetree_log_format":          "logging.format",
	"slidetree_output_dir":          "output.dir",
}

func envTransformFunc(key string) string {
	return envKeys[strings.ToLower(key)]
}

// Validate checks values that the rest of the program would otherwise
// reject later with a less helpful message.
func (c Config) Validate() error {
	if c.Defaults.Mode != "" {
		if _, err := mode.Parse(c.Defaults.Mode); err != nil {
			return fmt.Errorf("defaults.mode: %w", err)
		}
	}
	if c.Defaults.MaxDepth < 0 {
		return fmt.Errorf("defaults.max_depth must not be negative, got %d", c.Defaults.MaxDepth)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
