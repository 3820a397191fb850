// Package memory provides in-memory storage for ScriptGate.
package memory

import (
	"context"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/pkg/cmap"
)

// AnswerStore provides in-memory answer storage with a per-script
// index.
type AnswerStore struct {
	// Primary index: answer ID -> Answer.
	answers *cmap.Map[*domain.Answer]

	// Secondary index: script name -> answer IDs, oldest first.
	byScript *cmap.Map[[]string]
}

// NewAnswerStore creates a new in-memory answer store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		answers:  cmap.New[*domain.Answer](),
		byScript: cmap.New[[]string](),
	}
}

// Create stores a new answer and indexes it by script.
func (s *AnswerStore) Create(_ context.Context, answer *domain.Answer) error {
	if err := answer.Validate(); err != nil {
		return err
	}
	if !s.answers.SetIfAbsent(answer.ID, answer.Clone()) {
		return domain.ErrAnswerValidation.WithDetails("duplicate answer id " + answer.ID)
	}
	s.byScript.Update(answer.ScriptName, func(ids []string, _ bool) ([]string, bool) {
		return append(ids, answer.ID), true
	})
	return nil
}

// Get retrieves an answer by ID.
func (s *AnswerStore) Get(_ context.Context, id string) (*domain.Answer, error) {
	answer, ok := s.answers.Get(id)
	if !ok {
		return nil, domain.ErrAnswerNotFound
	}
	return answer.Clone(), nil
}

// SetOutput attaches the evaluation output to an answer.
func (s *AnswerStore) SetOutput(_ context.Context, id, output string) error {
	var missing bool
	s.answers.Update(id, func(cur *domain.Answer, exists bool) (*domain.Answer, bool) {
		if !exists {
			missing = true
			return nil, false
		}
		next := cur.Clone()
		next.Output = output
		return next, true
	})
	if missing {
		return domain.ErrAnswerNotFound
	}
	return nil
}

// ListByScript returns all answers for a script, newest first.
func (s *AnswerStore) ListByScript(_ context.Context, scriptName string) ([]*domain.Answer, error) {
	ids, _ := s.byScript.Get(scriptName)
	out := make([]*domain.Answer, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if answer, ok := s.answers.Get(ids[i]); ok {
			out = append(out, answer.Clone())
		}
	}
	return out, nil
}
