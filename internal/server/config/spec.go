// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for scriptgate-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Script   ScriptSection   `koanf:"script"`
	Name     NameSection     `koanf:"name"`
	Artifact ArtifactSection `koanf:"artifact"`
	Eval     EvalSection     `koanf:"eval"`
	Admin    AdminSection    `koanf:"admin"`
	Limit    LimitSection    `koanf:"limit"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// AllowedOrigins lists CORS origins for the public endpoints.
	// Empty means same-origin only; "*" allows any origin.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	// Backend selects the storage engine: "memory" or "badger".
	Backend string `koanf:"backend"`

	// DataDir is the Badger data directory. Required for the badger
	// backend.
	DataDir string `koanf:"data_dir"`

	// SyncWrites forces fsync on every Badger write.
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval is the Badger value-log GC cadence.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// ScriptSection configures script lifecycle behavior.
type ScriptSection struct {
	// ActiveWindow is how long a script stays usable after first use.
	ActiveWindow time.Duration `koanf:"active_window"`

	// DefaultMaxUsed is the usage budget for newly issued scripts.
	DefaultMaxUsed int `koanf:"default_max_used"`

	// MinFingerprintLength is the minimum accepted fingerprint length.
	MinFingerprintLength int `koanf:"min_fingerprint_length"`

	// FingerprintPolicy selects fingerprint enforcement:
	// "match" or "single-claim".
	FingerprintPolicy string `koanf:"fingerprint_policy"`

	// PayloadFile is the client script template served on delivery.
	PayloadFile string `koanf:"payload_file"`
}

// NameSection configures script name generation.
type NameSection struct {
	Alphabet       string `koanf:"alphabet"`
	MinLength      int    `koanf:"min_length"`
	MaxLength      int    `koanf:"max_length"`
	FallbackLength int    `koanf:"fallback_length"`
	MaxAttempts    int    `koanf:"max_attempts"`
}

// ArtifactSection configures artifact storage.
type ArtifactSection struct {
	// Dir is the directory for uploaded artifacts.
	Dir string `koanf:"dir"`

	// EncryptionKey, when set, enables at-rest encryption.
	EncryptionKey string `koanf:"encryption_key"`
}

// EvalSection configures the vision evaluation client.
type EvalSection struct {
	// Enabled toggles evaluation. When disabled, submissions are
	// stored without an output.
	Enabled bool `koanf:"enabled"`

	BaseURL    string        `koanf:"base_url"`
	APIKey     string        `koanf:"api_key"`
	Model      string        `koanf:"model"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	RatePerSec float64       `koanf:"rate_per_sec"`
	Burst      int           `koanf:"burst"`
}

// AdminSection configures the admin API.
type AdminSection struct {
	// APIKeyHash is the Argon2id hash of the admin API key in the
	// standard encoded form. Empty disables the admin API.
	APIKeyHash string `koanf:"api_key_hash"`
}

// LimitSection configures per-client rate limiting.
type LimitSection struct {
	// PerIP is the sustained request rate per client IP. Zero
	// disables limiting.
	PerIP float64 `koanf:"per_ip"`

	// Burst is the per-IP burst size.
	Burst int `koanf:"burst"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
