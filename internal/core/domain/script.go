// Package domain defines the core domain models for ScriptGate.
package domain

import (
	"fmt"
	"time"
)

// Script constraints and defaults (based on RQ-0101).
const (
	// NameAlphabet is the default alphabet for generated script names.
	// Ambiguous glyphs (0/O, 1/I) are excluded.
	NameAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// MaxNameLength is the hard upper bound on a script name,
	// generated or explicit.
	MaxNameLength = 64

	// DefaultMaxUsed is the default usage ceiling for a new script.
	DefaultMaxUsed = 50

	// DefaultActiveWindow is the default activation window measured
	// from first_seen.
	DefaultActiveWindow = 60 * time.Minute

	// MinFingerprintLength is the minimum accepted length of a
	// client-supplied fingerprint.
	MinFingerprintLength = 16

	// MaxFingerprintLength bounds fingerprint storage.
	MaxFingerprintLength = 512
)

// Script represents a named, single-use access grant.
//
// A script gates two actions: delivery of the front-end payload and
// submission of an image artifact for evaluation. Name and MaxUsed are
// immutable after issuance; FirstSeen and Fingerprint are each set at
// most once; Status and Used are engine-owned.
//
// @req RQ-0101
// @design DS-0101
type Script struct {
	// Name is the unique, immutable primary lookup key.
	Name string `json:"name"`

	// Status is the lifecycle state. Engine-owned.
	Status ScriptStatus `json:"status"`

	// MaxUsed is the usage ceiling. Immutable after issuance.
	MaxUsed int `json:"max_used"`

	// Used is the accepted-submission count. Monotonically
	// non-decreasing, never exceeds MaxUsed through engine flows.
	Used int `json:"used"`

	// FirstSeen is the timestamp of the first accepted submission
	// (Unix milliseconds). Zero means unset. Set exactly once; the
	// activation window [FirstSeen, FirstSeen+window] is fixed.
	FirstSeen int64 `json:"first_seen"`

	// Fingerprint is the device binding established by the first
	// accepted submission. Empty means unbound. Set exactly once.
	Fingerprint string `json:"fingerprint"`

	// CreatedAt is the issuance timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// NewScript creates a new Script with the given name, usage ceiling and
// initial status. CreatedAt and Version are initialized.
//
// @design DS-0101
func NewScript(name string, maxUsed int, status ScriptStatus) *Script {
	if maxUsed <= 0 {
		maxUsed = DefaultMaxUsed
	}
	if status == "" {
		status = StatusInactive
	}
	return &Script{
		Name:      name,
		Status:    status,
		MaxUsed:   maxUsed,
		CreatedAt: time.Now().UnixMilli(),
		Version:   1,
	}
}

// Validate checks the script's structural invariants.
func (s *Script) Validate() error {
	if s.Name == "" {
		return ErrScriptValidation.WithDetails("name is required")
	}
	if len(s.Name) > MaxNameLength {
		return ErrScriptValidation.WithDetails(fmt.Sprintf("name exceeds %d characters", MaxNameLength))
	}
	if !s.Status.IsValid() {
		return ErrScriptValidation.WithDetails(fmt.Sprintf("unknown status %q", s.Status))
	}
	if s.MaxUsed < 0 || s.Used < 0 {
		return ErrScriptValidation.WithDetails("negative usage counters")
	}
	if len(s.Fingerprint) > MaxFingerprintLength {
		return ErrScriptValidation.WithDetails("fingerprint too long")
	}
	return nil
}

// Clone returns a deep copy of the script.
func (s *Script) Clone() *Script {
	c := *s
	return &c
}

// HasFirstSeen reports whether the activation window has started.
func (s *Script) HasFirstSeen() bool {
	return s.FirstSeen != 0
}

// WindowDeadline returns the end of the activation window. Only
// meaningful when HasFirstSeen.
func (s *Script) WindowDeadline(window time.Duration) time.Time {
	return time.UnixMilli(s.FirstSeen).Add(window)
}

// WindowElapsed reports whether the activation window has elapsed at
// the given instant. A script with no first_seen never expires by time.
func (s *Script) WindowElapsed(now time.Time, window time.Duration) bool {
	if !s.HasFirstSeen() {
		return false
	}
	return now.After(s.WindowDeadline(window))
}

// UsageExhausted reports whether the usage ceiling has been reached.
func (s *Script) UsageExhausted() bool {
	return s.Used >= s.MaxUsed
}

// MarkFirstSeen sets FirstSeen to the given instant if it is unset.
// Returns true if the value was set by this call.
func (s *Script) MarkFirstSeen(now time.Time) bool {
	if s.HasFirstSeen() {
		return false
	}
	s.FirstSeen = now.UnixMilli()
	return true
}

// BindFingerprint binds the fingerprint if no binding exists yet.
// Returns true if the binding was established by this call.
func (s *Script) BindFingerprint(fp string) bool {
	if s.Fingerprint != "" {
		return false
	}
	s.Fingerprint = fp
	return true
}
