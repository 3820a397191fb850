// Package domain defines the core domain models for ScriptGate.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. The script lifecycle state
// machine (status values, terminality rules, guard predicates) lives
// here; the services in internal/core/service drive it.
package domain
