// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyScript(&cfg.Script); err != nil {
		return err
	}
	if err := verifyName(&cfg.Name); err != nil {
		return err
	}
	if err := verifyEval(&cfg.Eval); err != nil {
		return err
	}
	if err := verifyAdmin(&cfg.Admin); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http: tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		return nil
	case "badger":
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required for the badger backend")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend must be memory or badger, got %q", cfg.Backend)
	}
}

func verifyScript(cfg *ScriptSection) error {
	if cfg.ActiveWindow <= 0 {
		return errors.New("script.active_window must be positive")
	}
	if cfg.DefaultMaxUsed < 1 {
		return errors.New("script.default_max_used must be at least 1")
	}
	if cfg.MinFingerprintLength < 1 {
		return errors.New("script.min_fingerprint_length must be at least 1")
	}
	switch cfg.FingerprintPolicy {
	case "match", "single-claim":
		return nil
	default:
		return fmt.Errorf("script.fingerprint_policy must be match or single-claim, got %q", cfg.FingerprintPolicy)
	}
}

func verifyName(cfg *NameSection) error {
	if cfg.MinLength < 1 || cfg.MaxLength < cfg.MinLength {
		return errors.New("name: min_length must be positive and max_length >= min_length")
	}
	if cfg.FallbackLength <= cfg.MaxLength {
		return errors.New("name.fallback_length must exceed max_length")
	}
	if cfg.MaxAttempts < 1 {
		return errors.New("name.max_attempts must be at least 1")
	}
	return nil
}

func verifyEval(cfg *EvalSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.APIKey == "" {
		return errors.New("eval.api_key is required when eval is enabled")
	}
	return nil
}

func verifyAdmin(cfg *AdminSection) error {
	if cfg.APIKeyHash == "" {
		return nil
	}
	if !strings.HasPrefix(cfg.APIKeyHash, "$argon2id$") {
		return errors.New("admin.api_key_hash must be an encoded argon2id hash")
	}
	return nil
}
