// Package domain defines the core domain models for ScriptGate.
package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// AnswerIDPrefix is the prefix for answer IDs.
// Format: ans-{ulid_lowercase}, 30 characters total.
const AnswerIDPrefix = "ans-"

// Answer records one accepted submission against a script.
//
// The artifact is stored outside the repository; ArtifactPath is the
// store-relative reference. Output is attached after the evaluation
// call returns and is empty until then.
//
// @design DS-0102
type Answer struct {
	// ID is the unique answer identifier (ans-{ulid}).
	ID string `json:"id"`

	// ScriptName is the owning script. Many answers may reference
	// one script; the script outlives its answers.
	ScriptName string `json:"script_name"`

	// ArtifactPath is the store-relative path of the submitted image.
	ArtifactPath string `json:"artifact_path"`

	// Output is the evaluation result text. Empty until evaluated.
	Output string `json:"output"`

	// CreatedAt is the submission timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`
}

// NewAnswer creates a new Answer for the given script with a generated ID.
func NewAnswer(scriptName, artifactPath string) (*Answer, error) {
	id, err := GenerateAnswerID()
	if err != nil {
		return nil, err
	}
	return &Answer{
		ID:           id,
		ScriptName:   scriptName,
		ArtifactPath: artifactPath,
		CreatedAt:    time.Now().UnixMilli(),
	}, nil
}

// GenerateAnswerID generates a new answer ID using ULID.
func GenerateAnswerID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return AnswerIDPrefix + strings.ToLower(id.String()), nil
}

// Clone returns a copy of the answer.
func (a *Answer) Clone() *Answer {
	c := *a
	return &c
}

// Validate checks the answer's structural invariants.
func (a *Answer) Validate() error {
	if a.ID == "" || !strings.HasPrefix(a.ID, AnswerIDPrefix) {
		return ErrAnswerValidation.WithDetails("malformed answer id")
	}
	if a.ScriptName == "" {
		return ErrAnswerValidation.WithDetails("script_name is required")
	}
	return nil
}
