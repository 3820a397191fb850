package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

const (
	answerKeyPrefix = "answer:"

	// Secondary index: answeridx:<script>:<answer-id> -> answer-id.
	// Answer IDs embed a ULID, so keys under one script sort by
	// creation time.
	answerIdxPrefix = "answeridx:"
)

func answerKey(id string) []byte {
	return []byte(answerKeyPrefix + id)
}

func answerIdxKey(scriptName, id string) []byte {
	return []byte(answerIdxPrefix + scriptName + ":" + id)
}

// AnswerStore implements the answer repository on Badger.
type AnswerStore struct {
	db *badger.DB
}

// Create stores a new answer and indexes it by script.
func (s *AnswerStore) Create(_ context.Context, answer *domain.Answer) error {
	if err := answer.Validate(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := answerKey(answer.ID)
		_, err := txn.Get(key)
		if err == nil {
			return domain.ErrAnswerValidation.WithDetails("duplicate answer id " + answer.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("read answer: %w", err)
		}
		if err := writeJSON(txn, key, answer); err != nil {
			return err
		}
		return txn.Set(answerIdxKey(answer.ScriptName, answer.ID), []byte(answer.ID))
	})
	return wrapStorage(err)
}

// Get retrieves an answer by ID.
func (s *AnswerStore) Get(_ context.Context, id string) (*domain.Answer, error) {
	var answer domain.Answer
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(answerKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrAnswerNotFound
		}
		if err != nil {
			return fmt.Errorf("read answer: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &answer)
		})
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &answer, nil
}

// SetOutput attaches the evaluation output to an answer.
func (s *AnswerStore) SetOutput(_ context.Context, id, output string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := answerKey(id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrAnswerNotFound
		}
		if err != nil {
			return fmt.Errorf("read answer: %w", err)
		}

		var answer domain.Answer
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &answer)
		}); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		answer.Output = output
		return writeJSON(txn, key, &answer)
	})
	return wrapStorage(err)
}

// ListByScript returns all answers for a script, newest first.
func (s *AnswerStore) ListByScript(ctx context.Context, scriptName string) ([]*domain.Answer, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(answerIdxPrefix + scriptName + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return fmt.Errorf("read answer index: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	// Index keys sort oldest first; reverse for the newest-first
	// contract of the repository.
	out := make([]*domain.Answer, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		answer, err := s.Get(ctx, ids[i])
		if err != nil {
			if errors.Is(err, domain.ErrAnswerNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, answer)
	}
	return out, nil
}
