package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

const scriptKeyPrefix = "script:"

func scriptKey(name string) []byte {
	return []byte(scriptKeyPrefix + name)
}

// ScriptStore implements the script repository on Badger.
type ScriptStore struct {
	db *badger.DB
}

// Create stores a new script. The existence check and the write share
// a transaction, so concurrent issuers racing for the same name see
// exactly one winner.
func (s *ScriptStore) Create(_ context.Context, script *domain.Script) error {
	if err := script.Validate(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := scriptKey(script.Name)
		_, err := txn.Get(key)
		if err == nil {
			return domain.ErrNameConflict.WithDetails("name=" + script.Name)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("read script: %w", err)
		}
		return writeJSON(txn, key, script)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrNameConflict.WithDetails("name=" + script.Name)
	}
	return wrapStorage(err)
}

// Get retrieves a script by name.
func (s *ScriptStore) Get(_ context.Context, name string) (*domain.Script, error) {
	var script domain.Script
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(scriptKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrScriptNotFound
		}
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &script)
		})
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &script, nil
}

// Exists reports whether a script with the given name exists.
func (s *ScriptStore) Exists(_ context.Context, name string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(scriptKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, wrapStorage(err)
	}
	return found, nil
}

// Update writes the script if the stored version matches
// expectedVersion, bumping the version on success. The check runs
// inside the transaction; Badger's conflict detection covers
// concurrent writers that slipped between reads.
func (s *ScriptStore) Update(_ context.Context, script *domain.Script, expectedVersion uint64) error {
	if err := script.Validate(); err != nil {
		return err
	}

	next := script.Clone()
	next.Version = expectedVersion + 1

	err := s.db.Update(func(txn *badger.Txn) error {
		key := scriptKey(script.Name)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrScriptNotFound
		}
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}

		var cur domain.Script
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cur)
		}); err != nil {
			return fmt.Errorf("decode script: %w", err)
		}
		if cur.Version != expectedVersion {
			return domain.ErrScriptVersionConflict
		}
		return writeJSON(txn, key, next)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrScriptVersionConflict
	}
	if err != nil {
		return wrapStorage(err)
	}
	script.Version = next.Version
	return nil
}

func writeJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return txn.Set(key, data)
}

// wrapStorage maps non-domain failures to the storage error code so
// callers see a uniform taxonomy regardless of backend.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		return err
	}
	return domain.ErrStorageFailure.WithCause(err)
}
