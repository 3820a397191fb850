// Package logger provides structured logging for ScriptGate.
package logger

import (
	"log/slog"
	"strings"
)

// Key patterns that mark an attribute as fully sensitive.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"api_key",
	"apikey",
	"credential",
	"authorization",
	"bearer",
}

// Keys that carry client fingerprints. Fingerprints identify users,
// so they are masked rather than dropped to keep log lines
// correlatable.
var fingerprintKeyPatterns = []string{
	"fingerprint",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive rewrites an attribute if its key suggests
// sensitive content.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		keyLower := strings.ToLower(a.Key)
		strVal := a.Value.String()
		if strVal == "" {
			return a
		}

		for _, pattern := range fingerprintKeyPatterns {
			if strings.Contains(keyLower, pattern) {
				return slog.String(a.Key, MaskFingerprint(strVal))
			}
		}
		for _, pattern := range sensitiveKeyPatterns {
			if strings.Contains(keyLower, pattern) {
				return slog.String(a.Key, redactedValue)
			}
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// MaskFingerprint partially masks a fingerprint value, keeping the
// first and last 4 characters.
func MaskFingerprint(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
