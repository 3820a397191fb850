// Package main provides the entry point for scriptgate-server.
//
// The server gates delivery of a client script behind a per-name
// lifecycle state machine and evaluates submitted image artifacts:
//
//   - GET /script/{name} serves the script when the name is active
//   - POST /check/{name} accepts a fingerprint plus image and returns
//     the evaluation output
//   - /admin/v1 manages scripts, guarded by a hashed API key
//
// Usage:
//
//	scriptgate-server serve --config /path/to/config.yaml
//	scriptgate-server hash-key <key>
//	scriptgate-server version
//
// Configuration merges built-in defaults, the YAML file, and
// SCRIPTGATE_* environment variables, in increasing priority.
package main
