// Package service provides domain services for ScriptGate.
//
// ScriptService owns the script lifecycle state machine: issuance,
// read-with-refresh, and the two guarded mutation flows (delivery gate
// and submission gate). NameGenerator produces unique script names
// against the repository. Storage, artifact IO and the evaluation call
// are consumed through interfaces declared in this package.
//
// @design DS-0103
package service
