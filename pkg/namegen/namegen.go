// Package namegen provides random script-name drawing primitives.
//
// It only draws candidate names from a configured alphabet; uniqueness
// checking against storage and the grow-on-collision loop live in the
// service layer, which keeps this package free of IO.
package namegen

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Defaults for name generation.
const (
	DefaultMinLength      = 5
	DefaultMaxLength      = 10
	DefaultFallbackLength = 12
	DefaultMaxAttempts    = 5
)

// ErrEmptyAlphabet is returned when the configured alphabet is empty.
var ErrEmptyAlphabet = errors.New("namegen: alphabet is empty")

// Config holds name generation parameters. It is an explicit value
// passed to the generator, not package state.
type Config struct {
	// Alphabet is the character set names are drawn from.
	Alphabet string

	// MinLength is the length of the first draw.
	MinLength int

	// MaxLength caps the length growth on collisions.
	MaxLength int

	// FallbackLength is the length of the single fallback draw after
	// the attempt budget is exhausted.
	FallbackLength int

	// MaxAttempts is the draw attempt budget before the fallback.
	MaxAttempts int
}

// DefaultConfig returns the default generation parameters with the
// given alphabet.
func DefaultConfig(alphabet string) Config {
	return Config{
		Alphabet:       alphabet,
		MinLength:      DefaultMinLength,
		MaxLength:      DefaultMaxLength,
		FallbackLength: DefaultFallbackLength,
		MaxAttempts:    DefaultMaxAttempts,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if len(c.Alphabet) == 0 {
		return ErrEmptyAlphabet
	}
	if len(c.Alphabet) > 256 {
		return fmt.Errorf("namegen: alphabet exceeds 256 characters")
	}
	if c.MinLength <= 0 {
		return fmt.Errorf("namegen: min length must be positive, got %d", c.MinLength)
	}
	if c.MaxLength < c.MinLength {
		return fmt.Errorf("namegen: max length %d below min length %d", c.MaxLength, c.MinLength)
	}
	if c.FallbackLength <= 0 {
		return fmt.Errorf("namegen: fallback length must be positive, got %d", c.FallbackLength)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("namegen: attempt budget must be positive, got %d", c.MaxAttempts)
	}
	return nil
}

// Draw returns a uniformly random string of the given length over the
// alphabet, using crypto/rand with rejection sampling to avoid modulo
// bias.
func Draw(alphabet string, length int) (string, error) {
	if len(alphabet) == 0 {
		return "", ErrEmptyAlphabet
	}
	if length <= 0 {
		return "", fmt.Errorf("namegen: length must be positive, got %d", length)
	}

	// Largest byte value usable without bias.
	limit := byte(256 - 256%len(alphabet))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("namegen: read entropy: %w", err)
		}
		for _, b := range buf {
			if limit != 0 && b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
