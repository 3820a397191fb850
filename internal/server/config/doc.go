// Package config defines the configuration structure for
// scriptgate-server.
//
//   - spec.go: configuration sections and koanf tags
//   - default.go: default values
//   - verify.go: validation of loaded configuration
//   - sanitize.go: secret masking for safe logging
//
// Loading from file and environment is handled by
// internal/infra/confloader.
package config
