// Package domain defines the core domain models for ScriptGate.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured
// error code and a stable machine-readable reason tag. Guard failures
// and issuance failures are expected, recoverable-by-caller outcomes;
// they cross the engine boundary as values, never as panics.
//
// @req RQ-0104
// @design DS-0104
type DomainError struct {
	Code    string // Error code (e.g., "SG-GATE-4001")
	Reason  string // Stable reason tag (e.g., "usage_limit_reached")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError.
func NewDomainError(code, reason, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Reason:  reason,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it is a
// DomainError, or "" otherwise.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetErrorReason extracts the stable reason tag from an error if it is
// a DomainError, or "" otherwise.
func GetErrorReason(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

// ============================================================================
// Name Generation Errors (NAME)
// ============================================================================

var (
	// ErrNameNotGenerated indicates no free name could be produced.
	ErrNameNotGenerated = NewDomainError("SG-NAME-5001", "name_not_generated", "script name could not be generated")

	// ErrNameExhausted indicates the generation attempt budget and the
	// fallback draw were both exhausted.
	ErrNameExhausted = NewDomainError("SG-NAME-5002", "name_exhausted", "script name space exhausted")

	// ErrNameConflict indicates the name already exists at persistence
	// time (issuance race or explicit duplicate).
	ErrNameConflict = NewDomainError("SG-NAME-4090", "name_conflict", "script name already exists")
)

// ============================================================================
// Script Errors (SCRP)
// ============================================================================

var (
	// ErrScriptNotFound indicates the requested script was not found.
	ErrScriptNotFound = NewDomainError("SG-SCRP-4040", "script_not_found", "script not found")

	// ErrScriptVersionConflict indicates an optimistic lock conflict.
	ErrScriptVersionConflict = NewDomainError("SG-SCRP-4091", "version_conflict", "version conflict, please retry")

	// ErrScriptValidation indicates script data validation failed.
	ErrScriptValidation = NewDomainError("SG-SCRP-4001", "script_validation", "script validation failed")

	// ErrAnswerNotFound indicates the requested answer was not found.
	ErrAnswerNotFound = NewDomainError("SG-ANSW-4040", "answer_not_found", "answer not found")

	// ErrAnswerValidation indicates answer data validation failed.
	ErrAnswerValidation = NewDomainError("SG-ANSW-4001", "answer_validation", "answer validation failed")
)

// ============================================================================
// Gate Errors (GATE)
// ============================================================================

var (
	// ErrUsageLimitReached indicates the usage ceiling was reached.
	// The rejecting gate sets status to limit.
	ErrUsageLimitReached = NewDomainError("SG-GATE-4001", "usage_limit_reached", "usage limit reached")

	// ErrUsageTimeExpired indicates the activation window elapsed.
	// The rejecting gate sets status to expired.
	ErrUsageTimeExpired = NewDomainError("SG-GATE-4002", "usage_time_expired", "usage time expired")

	// ErrFingerprintMismatch indicates the supplied fingerprint differs
	// from the bound one. The binding is unchanged by the rejection.
	ErrFingerprintMismatch = NewDomainError("SG-GATE-4003", "fingerprint_mismatch", "fingerprint mismatch")

	// ErrFingerprintTooShort indicates the supplied fingerprint is
	// below the minimum length.
	ErrFingerprintTooShort = NewDomainError("SG-GATE-4004", "fingerprint_too_short", "fingerprint too short")

	// ErrScriptNotActive indicates a delivery attempt on a script that
	// is not in the active state.
	ErrScriptNotActive = NewDomainError("SG-GATE-4005", "script_not_active", "script not active")

	// ErrFingerprintBound indicates the script already carries a
	// fingerprint binding under the single-claim policy. The rejecting
	// gate sets status to expired.
	ErrFingerprintBound = NewDomainError("SG-GATE-4006", "fingerprint_already_bound", "fingerprint already bound")
)

// ============================================================================
// Artifact Errors (ARTF)
// ============================================================================

var (
	// ErrArtifactInvalid indicates the submitted artifact was rejected
	// (missing, empty, or disallowed extension).
	ErrArtifactInvalid = NewDomainError("SG-ARTF-4000", "artifact_invalid", "artifact must be png, jpg or jpeg")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("SG-SYS-5000", "internal_error", "internal server error")

	// ErrStorageFailure indicates a repository or artifact-store I/O
	// failure. The original cause is preserved.
	ErrStorageFailure = NewDomainError("SG-SYS-5001", "storage_failure", "storage failure")

	// ErrEvaluationFailed indicates the external evaluation call failed
	// after retries.
	ErrEvaluationFailed = NewDomainError("SG-EVAL-5020", "evaluation_failure", "evaluation failed")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("SG-SYS-4000", "bad_request", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("SG-SYS-4290", "rate_limited", "too many requests")

	// ErrUnauthorized indicates a missing or invalid admin key.
	ErrUnauthorized = NewDomainError("SG-AUTH-4010", "unauthorized", "authentication required")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SG-ARG-1001", "invalid_argument", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SG-ARG-1002", "missing_argument", "missing required argument")
)
