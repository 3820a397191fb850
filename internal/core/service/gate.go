// Package service provides domain services for ScriptGate.
//
// This file implements the guarded mutation flows. Both gates run the
// same parameterized pipeline: an ordered list of guards, each able to
// reject the request and, as a side effect of rejecting, push the
// script into a terminal status. The whole guard-chain + mutation
// sequence is one optimistic-locked transaction per script name.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

// guard is one step of a gate pipeline. reject reports whether the
// request must be refused; status is the terminal status written as a
// side effect of the refusal ("" leaves the status untouched).
//
// @design DS-0103
type guard struct {
	reject func(now time.Time, script *domain.Script) bool
	status domain.ScriptStatus
	err    *domain.DomainError
}

// activeGuard requires the script to already be active. Delivery never
// auto-promotes; a caller must have gone through Resolve first or the
// script must have been issued as active.
func activeGuard() guard {
	return guard{
		reject: func(_ time.Time, script *domain.Script) bool {
			return script.Status != domain.StatusActive
		},
		err: domain.ErrScriptNotActive,
	}
}

// usageGuard rejects once the usage ceiling is reached and parks the
// script in limit.
func usageGuard() guard {
	return guard{
		reject: func(_ time.Time, script *domain.Script) bool {
			return script.UsageExhausted()
		},
		status: domain.StatusLimit,
		err:    domain.ErrUsageLimitReached,
	}
}

// timeGuard rejects once the activation window has elapsed and parks
// the script in expired.
func (s *ScriptService) timeGuard() guard {
	return guard{
		reject: func(now time.Time, script *domain.Script) bool {
			return script.WindowElapsed(now, s.cfg.ActiveWindow)
		},
		status: domain.StatusExpired,
		err:    domain.ErrUsageTimeExpired,
	}
}

// fingerprintLengthGuard rejects fingerprints below the minimum length
// before any prior-binding state is consulted.
func (s *ScriptService) fingerprintLengthGuard(fingerprint string) guard {
	return guard{
		reject: func(_ time.Time, _ *domain.Script) bool {
			return len(fingerprint) < s.cfg.MinFingerprintLength
		},
		err: domain.ErrFingerprintTooShort,
	}
}

// fingerprintGuard applies the configured binding policy.
func (s *ScriptService) fingerprintGuard(fingerprint string) guard {
	if s.cfg.FingerprintPolicy == PolicySingleClaim {
		return guard{
			reject: func(_ time.Time, script *domain.Script) bool {
				return script.Fingerprint != ""
			},
			status: domain.StatusExpired,
			err:    domain.ErrFingerprintBound,
		}
	}
	return guard{
		reject: func(_ time.Time, script *domain.Script) bool {
			return script.Fingerprint != "" && script.Fingerprint != fingerprint
		},
		err: domain.ErrFingerprintMismatch,
	}
}

// applyGates runs the guard chain and, on full pass, the mutation, as
// one serializable read-modify-write per script name. Version
// conflicts retry the entire chain so every decision is made against
// fresh state. A nil mutation makes the pass side-effect free.
func (s *ScriptService) applyGates(
	ctx context.Context,
	name string,
	guards []guard,
	mutate func(now time.Time, script *domain.Script),
) (*domain.Script, error) {
	for attempt := 0; attempt < s.cfg.UpdateAttempts; attempt++ {
		script, err := s.getScript(ctx, name)
		if err != nil {
			return nil, err
		}
		now := s.clock()

		rejected, retry, err := s.runGuards(ctx, now, script, guards)
		if retry {
			continue
		}
		if rejected {
			return nil, err
		}

		if mutate == nil {
			return script, nil
		}

		mutate(now, script)
		err = s.scripts.Update(ctx, script, script.Version)
		if err == nil {
			return script, nil
		}
		if errors.Is(err, domain.ErrScriptVersionConflict) {
			continue
		}
		return nil, storageFailure(err)
	}
	return nil, domain.ErrScriptVersionConflict.WithDetails("gate retries exhausted")
}

// runGuards evaluates the chain, persisting a terminal status when a
// rejecting guard carries one. retry is true when that persistence hit
// a version conflict and the whole chain must rerun.
func (s *ScriptService) runGuards(
	ctx context.Context,
	now time.Time,
	script *domain.Script,
	guards []guard,
) (rejected, retry bool, err error) {
	for _, g := range guards {
		if !g.reject(now, script) {
			continue
		}

		if g.status != "" && script.Status != g.status {
			script.Status = g.status
			if uerr := s.scripts.Update(ctx, script, script.Version); uerr != nil {
				if errors.Is(uerr, domain.ErrScriptVersionConflict) {
					return false, true, nil
				}
				return true, false, storageFailure(uerr)
			}
		}
		return true, false, g.err
	}
	return false, false, nil
}

// ============================================================================
// Delivery Gate
// ============================================================================

// DeliveryGate validates a script for payload delivery.
//
// Guard order: script must exist, must already be active, usage guard,
// time guard. A full pass mutates nothing; used and first_seen are
// owned by the submission flow.
//
// @req RQ-0102
func (s *ScriptService) DeliveryGate(ctx context.Context, name string) (*domain.Script, error) {
	return s.applyGates(ctx, name, []guard{
		activeGuard(),
		usageGuard(),
		s.timeGuard(),
	}, nil)
}

// ============================================================================
// Submission Gate
// ============================================================================

// SubmitRequest contains parameters for an answer submission.
type SubmitRequest struct {
	// Name is the script name from the request path.
	Name string

	// Fingerprint is the client-supplied device identifier.
	Fingerprint string

	// Image is the raw artifact payload.
	Image []byte

	// Filename is the client-supplied file name (extension matters).
	Filename string
}

// SubmitResponse contains the result of an accepted submission.
type SubmitResponse struct {
	Script *domain.Script
	Answer *domain.Answer

	// Output is the evaluation result text.
	Output string
}

// SubmissionGate validates and records an answer submission.
//
// Guard order: script must exist, fingerprint length, time guard,
// usage guard, fingerprint policy. On a full pass, first_seen is bound
// if unset, the fingerprint is bound if unset and used is incremented,
// all in one transaction. The artifact is then stored, the answer
// recorded, and the evaluation call made outside the script
// transaction; its output is attached to the answer.
//
// @req RQ-0102
func (s *ScriptService) SubmissionGate(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if len(req.Image) == 0 {
		return nil, domain.ErrArtifactInvalid.WithDetails("image is required")
	}
	if err := ValidateArtifactFilename(req.Filename); err != nil {
		return nil, err
	}

	script, err := s.applyGates(ctx, req.Name, []guard{
		s.fingerprintLengthGuard(req.Fingerprint),
		s.timeGuard(),
		usageGuard(),
		s.fingerprintGuard(req.Fingerprint),
	}, func(now time.Time, script *domain.Script) {
		script.MarkFirstSeen(now)
		script.BindFingerprint(req.Fingerprint)
		script.Used++
	})
	if err != nil {
		return nil, err
	}

	_, relPath, err := s.artifacts.Save(ctx, req.Image, req.Filename, req.Name)
	if err != nil {
		return nil, storageFailure(err)
	}

	answer, err := domain.NewAnswer(req.Name, relPath)
	if err != nil {
		return nil, err
	}
	if err := s.answers.Create(ctx, answer); err != nil {
		return nil, storageFailure(err)
	}

	output, err := s.evaluator.Solve(ctx, base64.StdEncoding.EncodeToString(req.Image))
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, domain.ErrEvaluationFailed.WithCause(err)
	}

	if err := s.answers.SetOutput(ctx, answer.ID, output); err != nil {
		return nil, storageFailure(err)
	}
	answer.Output = output

	return &SubmitResponse{
		Script: script,
		Answer: answer,
		Output: output,
	}, nil
}

// AllowedArtifactExtensions lists the accepted artifact types.
var AllowedArtifactExtensions = []string{".png", ".jpg", ".jpeg"}

// ValidateArtifactFilename checks the artifact file extension against
// the allowlist. The check is shared by the HTTP layer and the
// artifact store.
func ValidateArtifactFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedArtifactExtensions {
		if ext == allowed {
			return nil
		}
	}
	return domain.ErrArtifactInvalid.WithDetails(fmt.Sprintf("filename %q", filename))
}
