// Package domain defines the core domain models for ScriptGate.
package domain

// ScriptStatus is the lifecycle status of a script.
//
// @design DS-0101
type ScriptStatus string

// Script lifecycle states.
//
// State machine:
//
//	inactive -> active | expired | limit
//	active   -> expired | limit
//	expired  -> (terminal)
//	limit    -> (terminal)
const (
	// StatusInactive is the initial state: issued but not yet delivered.
	StatusInactive ScriptStatus = "inactive"

	// StatusActive means the script has been delivered and is usable.
	StatusActive ScriptStatus = "active"

	// StatusExpired means the activation window elapsed or the
	// fingerprint policy was violated. Terminal.
	StatusExpired ScriptStatus = "expired"

	// StatusLimit means the usage ceiling was reached. Terminal.
	StatusLimit ScriptStatus = "limit"
)

// IsValid reports whether the status is one of the known states.
func (s ScriptStatus) IsValid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusExpired, StatusLimit:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s ScriptStatus) IsTerminal() bool {
	return s == StatusExpired || s == StatusLimit
}

// CanTransitionTo reports whether the state machine allows a transition
// from s to next. Self-transitions are allowed (status refresh writes
// the same value back).
func (s ScriptStatus) CanTransitionTo(next ScriptStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	// inactive may go anywhere; active may only degrade.
	if s == StatusActive && next == StatusInactive {
		return false
	}
	return true
}
