// Package config defines the server configuration structure.
package config

import (
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/pkg/namegen"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultStorageBackend = "memory"
	DefaultDataDir        = "/var/lib/scriptgate-server/data"
	DefaultGCInterval     = 10 * time.Minute

	DefaultArtifactDir = "/var/lib/scriptgate-server/artifacts"

	DefaultEvalTimeout    = 60 * time.Second
	DefaultEvalMaxRetries = 3

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	nameDefaults := namegen.DefaultConfig(domain.NameAlphabet)
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Storage: StorageSection{
			Backend:    DefaultStorageBackend,
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Script: ScriptSection{
			ActiveWindow:         domain.DefaultActiveWindow,
			DefaultMaxUsed:       domain.DefaultMaxUsed,
			MinFingerprintLength: domain.MinFingerprintLength,
			FingerprintPolicy:    "match",
		},
		Name: NameSection{
			Alphabet:       nameDefaults.Alphabet,
			MinLength:      nameDefaults.MinLength,
			MaxLength:      nameDefaults.MaxLength,
			FallbackLength: nameDefaults.FallbackLength,
			MaxAttempts:    nameDefaults.MaxAttempts,
		},
		Artifact: ArtifactSection{
			Dir: DefaultArtifactDir,
		},
		Eval: EvalSection{
			Enabled:    true,
			Timeout:    DefaultEvalTimeout,
			MaxRetries: DefaultEvalMaxRetries,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
