// Package service provides domain services for ScriptGate.
package service

import (
	"context"
	"fmt"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/pkg/namegen"
)

// NameChecker is the minimal repository surface the name generator
// needs: an existence probe. It never persists anything itself; the
// check-then-create race is settled by the repository uniqueness error
// at issuance time.
type NameChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// NameGenerator produces unique human-readable script names.
//
// Starting at the configured minimum length it draws random candidates
// from the alphabet; every collision grows the next draw by one
// character (capped at the maximum length). When the attempt budget is
// exhausted a single fallback draw at the fallback length is tried.
//
// @design DS-0103
type NameGenerator struct {
	cfg  namegen.Config
	repo NameChecker
}

// NewNameGenerator creates a NameGenerator with the given
// configuration and repository.
func NewNameGenerator(cfg namegen.Config, repo NameChecker) (*NameGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("namegen: repository is required")
	}
	return &NameGenerator{cfg: cfg, repo: repo}, nil
}

// Generate returns a name that was free at probe time.
//
// Returns ErrNameExhausted when the attempt budget and the fallback
// draw both collide, and ErrNameNotGenerated when drawing itself
// fails.
func (g *NameGenerator) Generate(ctx context.Context) (string, error) {
	length := g.cfg.MinLength

	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		name, err := namegen.Draw(g.cfg.Alphabet, length)
		if err != nil {
			return "", domain.ErrNameNotGenerated.WithCause(err)
		}

		exists, err := g.repo.Exists(ctx, name)
		if err != nil {
			return "", domain.ErrStorageFailure.WithCause(err)
		}
		if !exists {
			return name, nil
		}

		if length < g.cfg.MaxLength {
			length++
		}
	}

	fallback, err := namegen.Draw(g.cfg.Alphabet, g.cfg.FallbackLength)
	if err != nil {
		return "", domain.ErrNameNotGenerated.WithCause(err)
	}
	exists, err := g.repo.Exists(ctx, fallback)
	if err != nil {
		return "", domain.ErrStorageFailure.WithCause(err)
	}
	if !exists {
		return fallback, nil
	}

	return "", domain.ErrNameExhausted.WithDetails(
		fmt.Sprintf("%d attempts plus fallback at length %d", g.cfg.MaxAttempts, g.cfg.FallbackLength))
}
