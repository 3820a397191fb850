// Package service provides domain services for ScriptGate.
//
// ScriptService handles all script lifecycle operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

// ScriptRepository defines the storage interface for script operations.
//
// Update performs an optimistic-locked full-record write: it succeeds
// only when the stored version equals expectedVersion, and bumps the
// version on success (reflected in the passed script).
//
// @design DS-0103
type ScriptRepository interface {
	// Create persists a new script. Returns ErrNameConflict when the
	// name is already taken.
	Create(ctx context.Context, script *domain.Script) error

	// Get retrieves a script by name.
	Get(ctx context.Context, name string) (*domain.Script, error)

	// Exists reports whether a script with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Update writes the script if the stored version matches
	// expectedVersion; otherwise returns ErrScriptVersionConflict.
	Update(ctx context.Context, script *domain.Script, expectedVersion uint64) error
}

// AnswerRepository defines the storage interface for answer records.
type AnswerRepository interface {
	// Create persists a new answer.
	Create(ctx context.Context, answer *domain.Answer) error

	// Get retrieves an answer by ID.
	Get(ctx context.Context, id string) (*domain.Answer, error)

	// SetOutput attaches the evaluation output to an answer.
	SetOutput(ctx context.Context, id, output string) error

	// ListByScript returns all answers for a script, newest first.
	ListByScript(ctx context.Context, scriptName string) ([]*domain.Answer, error)
}

// ArtifactStore persists submitted image artifacts.
type ArtifactStore interface {
	// Save stores the artifact bytes and returns the absolute path
	// and the store-relative path.
	Save(ctx context.Context, data []byte, filename, namePrefix string) (fullPath, relPath string, err error)
}

// Evaluator is the external image-understanding collaborator.
type Evaluator interface {
	// Solve returns a short textual answer for a Base64-encoded image.
	Solve(ctx context.Context, imageBase64 string) (string, error)
}

// FingerprintPolicy selects how the submission gate treats an existing
// fingerprint binding.
type FingerprintPolicy string

const (
	// PolicyMatch rejects only when the supplied fingerprint differs
	// from the bound one. The binding survives the rejection.
	PolicyMatch FingerprintPolicy = "match"

	// PolicySingleClaim treats any existing binding as grounds to
	// force the script to expired, regardless of match.
	PolicySingleClaim FingerprintPolicy = "single-claim"
)

// GateConfig holds the lifecycle engine parameters.
//
// @design DS-0103
type GateConfig struct {
	// ActiveWindow is the usable time span after first_seen.
	ActiveWindow time.Duration

	// MinFingerprintLength is the minimum accepted fingerprint length.
	MinFingerprintLength int

	// FingerprintPolicy selects the binding policy (see constants).
	FingerprintPolicy FingerprintPolicy

	// DefaultMaxUsed is the usage ceiling applied when an issue
	// request does not specify one.
	DefaultMaxUsed int

	// IssueAttempts is the create retry budget on name conflicts.
	IssueAttempts int

	// UpdateAttempts is the optimistic-lock retry budget for each
	// guard-chain + mutation sequence.
	UpdateAttempts int
}

// DefaultGateConfig returns the default engine parameters.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ActiveWindow:         domain.DefaultActiveWindow,
		MinFingerprintLength: domain.MinFingerprintLength,
		FingerprintPolicy:    PolicyMatch,
		DefaultMaxUsed:       domain.DefaultMaxUsed,
		IssueAttempts:        3,
		UpdateAttempts:       5,
	}
}

// Validate checks the configuration.
func (c GateConfig) Validate() error {
	if c.ActiveWindow <= 0 {
		return fmt.Errorf("gate: active window must be positive")
	}
	if c.MinFingerprintLength <= 0 {
		return fmt.Errorf("gate: min fingerprint length must be positive")
	}
	switch c.FingerprintPolicy {
	case PolicyMatch, PolicySingleClaim:
	default:
		return fmt.Errorf("gate: unknown fingerprint policy %q", c.FingerprintPolicy)
	}
	if c.DefaultMaxUsed <= 0 || c.IssueAttempts <= 0 || c.UpdateAttempts <= 0 {
		return fmt.Errorf("gate: budgets must be positive")
	}
	return nil
}

// ScriptService owns the script lifecycle state machine.
//
// @req RQ-0102
// @design DS-0103
type ScriptService struct {
	scripts   ScriptRepository
	answers   AnswerRepository
	artifacts ArtifactStore
	evaluator Evaluator
	names     *NameGenerator
	cfg       GateConfig

	// clock is swapped in tests.
	clock func() time.Time
}

// NewScriptService creates a new ScriptService.
func NewScriptService(
	scripts ScriptRepository,
	answers AnswerRepository,
	artifacts ArtifactStore,
	evaluator Evaluator,
	names *NameGenerator,
	cfg GateConfig,
) (*ScriptService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ScriptService{
		scripts:   scripts,
		answers:   answers,
		artifacts: artifacts,
		evaluator: evaluator,
		names:     names,
		cfg:       cfg,
		clock:     time.Now,
	}, nil
}

// ============================================================================
// Issue Operation
// ============================================================================

// IssueScriptRequest contains parameters for script issuance.
type IssueScriptRequest struct {
	// Name is the explicit script name. Empty means generate one.
	Name string

	// MaxUsed is the usage ceiling. Zero means the configured default.
	MaxUsed int

	// Status is the initial status. Empty means inactive.
	Status domain.ScriptStatus
}

// Issue creates a new script.
//
// Generated-name conflicts re-derive a fresh name on every retry;
// retrying a conflicting explicit name is pointless, so those exhaust
// the retry budget and return ErrNameConflict.
//
// @req RQ-0102
func (s *ScriptService) Issue(ctx context.Context, req *IssueScriptRequest) (*domain.Script, error) {
	maxUsed := req.MaxUsed
	if maxUsed == 0 {
		maxUsed = s.cfg.DefaultMaxUsed
	}
	if maxUsed < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("max_used must not be negative")
	}

	status := req.Status
	if status == "" {
		status = domain.StatusInactive
	}
	if !status.IsValid() {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown status %q", status))
	}

	explicit := req.Name != ""
	name := req.Name

	for attempt := 0; attempt < s.cfg.IssueAttempts; attempt++ {
		if name == "" {
			generated, err := s.names.Generate(ctx)
			if err != nil {
				return nil, err
			}
			name = generated
		}

		script := domain.NewScript(name, maxUsed, status)
		if err := script.Validate(); err != nil {
			return nil, err
		}

		err := s.scripts.Create(ctx, script)
		if err == nil {
			return script, nil
		}
		if !errors.Is(err, domain.ErrNameConflict) {
			return nil, storageFailure(err)
		}

		// A generated name lost the check-then-create race; derive a
		// fresh one for the next attempt.
		if !explicit {
			name = ""
		}
	}

	return nil, domain.ErrNameConflict.WithDetails(
		fmt.Sprintf("gave up after %d attempts", s.cfg.IssueAttempts))
}

// ============================================================================
// Resolve Operation
// ============================================================================

// Resolve looks up a script and refreshes its status from current
// fields: usage ceiling first, then activation window, otherwise
// active. The refreshed status is persisted. Idempotent absent
// intervening usage.
//
// This is the advisory read path; the gates below run the stricter
// chains.
func (s *ScriptService) Resolve(ctx context.Context, name string) (*domain.Script, error) {
	for attempt := 0; attempt < s.cfg.UpdateAttempts; attempt++ {
		script, err := s.getScript(ctx, name)
		if err != nil {
			return nil, err
		}

		next := s.recomputeStatus(s.clock(), script)
		if next == script.Status {
			return script, nil
		}

		script.Status = next
		err = s.scripts.Update(ctx, script, script.Version)
		if err == nil {
			return script, nil
		}
		if errors.Is(err, domain.ErrScriptVersionConflict) {
			continue
		}
		return nil, storageFailure(err)
	}
	return nil, domain.ErrScriptVersionConflict.WithDetails("resolve retries exhausted")
}

// recomputeStatus derives the advisory status, first match wins.
// Terminal statuses stay put: expired and limit can be reached by
// guard side effects the current fields do not encode (the
// single-claim fingerprint policy), so they are never recomputed away.
func (s *ScriptService) recomputeStatus(now time.Time, script *domain.Script) domain.ScriptStatus {
	if script.Status.IsTerminal() {
		return script.Status
	}
	switch {
	case script.UsageExhausted():
		return domain.StatusLimit
	case script.WindowElapsed(now, s.cfg.ActiveWindow):
		return domain.StatusExpired
	default:
		return domain.StatusActive
	}
}

// ============================================================================
// Administrative Operations
// ============================================================================

// ChangeStatus overrides the script status. This is an administrative
// override and bypasses the lifecycle transition rules.
func (s *ScriptService) ChangeStatus(ctx context.Context, name string, status domain.ScriptStatus) (*domain.Script, error) {
	if !status.IsValid() {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown status %q", status))
	}
	return s.adminUpdate(ctx, name, func(script *domain.Script) {
		script.Status = status
	})
}

// ChangeFirstSeen overrides the activation window start. A zero time
// (or the Unix epoch) clears it, so the next accepted submission
// starts a fresh window. Administrative override; the gated flow sets
// first_seen exactly once.
func (s *ScriptService) ChangeFirstSeen(ctx context.Context, name string, firstSeen time.Time) (*domain.Script, error) {
	millis := firstSeen.UnixMilli()
	if firstSeen.IsZero() {
		millis = 0
	}
	if millis < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("first_seen predates the Unix epoch")
	}
	return s.adminUpdate(ctx, name, func(script *domain.Script) {
		script.FirstSeen = millis
	})
}

// ChangeFingerprint overrides the device binding.
// Administrative override; the gated flow binds exactly once.
func (s *ScriptService) ChangeFingerprint(ctx context.Context, name, fingerprint string) (*domain.Script, error) {
	if len(fingerprint) > domain.MaxFingerprintLength {
		return nil, domain.ErrInvalidArgument.WithDetails("fingerprint too long")
	}
	return s.adminUpdate(ctx, name, func(script *domain.Script) {
		script.Fingerprint = fingerprint
	})
}

// Answers returns the answers recorded against a script, newest first.
func (s *ScriptService) Answers(ctx context.Context, name string) ([]*domain.Answer, error) {
	if _, err := s.getScript(ctx, name); err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByScript(ctx, name)
	if err != nil {
		return nil, storageFailure(err)
	}
	return answers, nil
}

func (s *ScriptService) adminUpdate(ctx context.Context, name string, apply func(*domain.Script)) (*domain.Script, error) {
	for attempt := 0; attempt < s.cfg.UpdateAttempts; attempt++ {
		script, err := s.getScript(ctx, name)
		if err != nil {
			return nil, err
		}

		apply(script)
		if err := script.Validate(); err != nil {
			return nil, err
		}

		err = s.scripts.Update(ctx, script, script.Version)
		if err == nil {
			return script, nil
		}
		if errors.Is(err, domain.ErrScriptVersionConflict) {
			continue
		}
		return nil, storageFailure(err)
	}
	return nil, domain.ErrScriptVersionConflict.WithDetails("update retries exhausted")
}

// getScript loads a script, mapping repository errors to the domain
// taxonomy.
func (s *ScriptService) getScript(ctx context.Context, name string) (*domain.Script, error) {
	if name == "" {
		return nil, domain.ErrMissingArgument.WithDetails("name is required")
	}
	script, err := s.scripts.Get(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrScriptNotFound) {
			return nil, domain.ErrScriptNotFound.WithDetails("name=" + name)
		}
		return nil, storageFailure(err)
	}
	return script, nil
}

// storageFailure wraps repository errors without masking domain ones.
func storageFailure(err error) error {
	if domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorageFailure.WithCause(err)
}
