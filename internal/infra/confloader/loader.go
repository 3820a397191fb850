// Package confloader loads server configuration.
//
// It uses koanf to merge sources with priority:
// environment > file > defaults.
//
// @design DS-0801
package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "SCRIPTGATE_"

// Loader merges configuration from defaults, a YAML file, and the
// environment.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures the Loader.
type Option func(*Loader)

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the configuration file path. Empty skips file
// loading.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// New creates a configuration loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges the config file and the environment into target.
// The target carries the defaults; only keys present in a source are
// overwritten, so pass a pre-populated config struct.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}
	if err := l.loadEnv(); err != nil {
		return err
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// loadEnv loads environment variables. A double underscore separates
// nesting levels so single underscores survive inside key names:
// SCRIPTGATE_SCRIPT__DEFAULT_MAX_USED -> script.default_max_used.
func (l *Loader) loadEnv() error {
	transform := func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap merges a flat map of keys. Used for CLI flag overrides and
// in tests.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// String returns a string value by key from the merged config.
func (l *Loader) String(key string) string {
	return l.k.String(key)
}
