// Package memory provides in-memory storage for ScriptGate.
//
// It implements the script and answer repositories using
// concurrent-safe sharded maps. The per-key Update primitive of
// pkg/cmap makes the optimistic-locked write a single atomic
// read-modify-write, which is what gives the lifecycle engine its
// at-most-once mutation guarantee on this backend.
//
// @design DS-0401
package memory

import (
	"context"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/pkg/cmap"
)

// Store provides in-memory script storage.
type Store struct {
	// Primary index: script name -> Script.
	scripts *cmap.Map[*domain.Script]
}

// New creates a new in-memory script store.
func New() *Store {
	return &Store{scripts: cmap.New[*domain.Script]()}
}

// Create stores a new script. The name uniqueness check and the write
// are atomic per key, so concurrent issuers racing for the same name
// see exactly one winner.
func (s *Store) Create(_ context.Context, script *domain.Script) error {
	if err := script.Validate(); err != nil {
		return err
	}
	if !s.scripts.SetIfAbsent(script.Name, script.Clone()) {
		return domain.ErrNameConflict.WithDetails("name=" + script.Name)
	}
	return nil
}

// Get retrieves a script by name. A clone is returned to prevent
// external mutation of the stored record.
func (s *Store) Get(_ context.Context, name string) (*domain.Script, error) {
	script, ok := s.scripts.Get(name)
	if !ok {
		return nil, domain.ErrScriptNotFound
	}
	return script.Clone(), nil
}

// Exists reports whether a script with the given name exists.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	return s.scripts.Has(name), nil
}

// Update writes the script if the stored version matches
// expectedVersion, bumping the version on success. The check and the
// swap run under one shard lock.
func (s *Store) Update(_ context.Context, script *domain.Script, expectedVersion uint64) error {
	if err := script.Validate(); err != nil {
		return err
	}

	var missing, conflict bool
	s.scripts.Update(script.Name, func(cur *domain.Script, exists bool) (*domain.Script, bool) {
		if !exists {
			missing = true
			return nil, false
		}
		if cur.Version != expectedVersion {
			conflict = true
			return nil, false
		}
		next := script.Clone()
		next.Version = expectedVersion + 1
		return next, true
	})

	switch {
	case missing:
		return domain.ErrScriptNotFound
	case conflict:
		return domain.ErrScriptVersionConflict
	}
	script.Version = expectedVersion + 1
	return nil
}

// Count returns the number of stored scripts.
func (s *Store) Count() int {
	return s.scripts.Count()
}
