// Package artifact stores uploaded artifact files on the local
// filesystem, optionally encrypting them at rest.
//
// @design DS-0501
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

// Storage errors.
var (
	ErrKeyTooShort = errors.New("artifact: encryption key too short (minimum 16 bytes)")
	ErrDirRequired = errors.New("artifact: storage directory is required")
)

const (
	// MinKeyLength is the minimum master key length for encryption.
	MinKeyLength = 16

	// timestampLayout matches the upload filename convention:
	// 20060102_150405_123456_<prefix>_<uuid><ext>.
	timestampLayout = "20060102_150405"

	dirPerm  = 0o750
	filePerm = 0o640
)

// allowedExtensions lists the upload types the store accepts.
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Config configures the artifact store.
type Config struct {
	// Dir is the root directory for stored artifacts.
	Dir string

	// EncryptionKey, when non-empty, enables at-rest encryption of
	// every stored file. Minimum 16 bytes.
	EncryptionKey []byte
}

// Store writes artifacts to disk under a single root directory.
type Store struct {
	dir    string
	cipher *fileCipher

	// now is a hook for testing.
	now func() time.Time
}

// New creates the artifact store, creating the root directory if
// needed.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, ErrDirRequired
	}
	if err := os.MkdirAll(cfg.Dir, dirPerm); err != nil {
		return nil, fmt.Errorf("artifact: create dir: %w", err)
	}

	s := &Store{dir: cfg.Dir, now: time.Now}
	if len(cfg.EncryptionKey) > 0 {
		c, err := newFileCipher(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		s.cipher = c
	}
	return s, nil
}

// Encrypted reports whether the store encrypts files at rest.
func (s *Store) Encrypted() bool {
	return s.cipher != nil
}

// Save writes the artifact to disk under a collision-free generated
// name and returns the absolute path plus the path relative to the
// store root.
func (s *Store) Save(ctx context.Context, data []byte, filename, namePrefix string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if len(data) == 0 {
		return "", "", domain.ErrArtifactInvalid.WithDetails("empty artifact")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", "", domain.ErrArtifactInvalid.WithDetails("unsupported extension " + ext)
	}

	relPath := s.generateName(namePrefix, ext)
	fullPath := filepath.Join(s.dir, relPath)

	payload := data
	if s.cipher != nil {
		sealed, err := s.cipher.seal(data)
		if err != nil {
			return "", "", fmt.Errorf("artifact: encrypt: %w", err)
		}
		payload = sealed
	}

	if err := os.WriteFile(fullPath, payload, filePerm); err != nil {
		return "", "", fmt.Errorf("artifact: write file: %w", err)
	}
	return fullPath, relPath, nil
}

// Load reads an artifact back by its relative path, decrypting it
// when the store is encrypted.
func (s *Store) Load(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reject traversal outside the store root.
	fullPath := filepath.Join(s.dir, filepath.Clean("/"+relPath))
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("artifact: read file: %w", err)
	}
	if s.cipher != nil {
		plain, err := s.cipher.open(data)
		if err != nil {
			return nil, fmt.Errorf("artifact: decrypt: %w", err)
		}
		return plain, nil
	}
	return data, nil
}

// generateName builds <timestamp>_<micros>_<prefix>_<uuid><ext>.
// The UUID alone makes the name unique; the timestamp and script
// prefix keep directory listings scannable by hand.
func (s *Store) generateName(namePrefix, ext string) string {
	now := s.now().UTC()
	name := fmt.Sprintf("%s_%06d_%s_%s%s",
		now.Format(timestampLayout),
		now.Nanosecond()/1000,
		sanitizePrefix(namePrefix),
		uuid.New().String(),
		ext)
	return name
}

// sanitizePrefix strips anything that is not a plain name character so
// the caller-supplied prefix cannot alter the path.
func sanitizePrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "artifact"
	}
	return b.String()
}
