package artifact

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

func newTestStore(t *testing.T, key []byte) *Store {
	t.Helper()
	store, err := New(Config{Dir: t.TempDir(), EncryptionKey: key})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 30, 0, 123456000, time.UTC)
	}
	return store
}

func TestSavePlaintext(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()
	data := []byte("fake png bytes")

	fullPath, relPath, err := store.Save(ctx, data, "shot.PNG", "ABCDE")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(fullPath) != store.dir {
		t.Errorf("file written outside store dir: %s", fullPath)
	}
	if !strings.HasPrefix(relPath, "20250314_093000_123456_ABCDE_") {
		t.Errorf("unexpected name: %s", relPath)
	}
	if !strings.HasSuffix(relPath, ".png") {
		t.Errorf("extension not lowercased: %s", relPath)
	}

	onDisk, err := os.ReadFile(fullPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(onDisk, data) {
		t.Error("plaintext store must write data verbatim")
	}

	loaded, err := store.Load(ctx, relPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded, data) {
		t.Error("Load returned different bytes")
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	if _, _, err := store.Save(ctx, nil, "shot.png", "ABCDE"); !errors.Is(err, domain.ErrArtifactInvalid) {
		t.Errorf("empty data: got %v", err)
	}
	if _, _, err := store.Save(ctx, []byte("x"), "shot.gif", "ABCDE"); !errors.Is(err, domain.ErrArtifactInvalid) {
		t.Errorf("bad extension: got %v", err)
	}
	if _, _, err := store.Save(ctx, []byte("x"), "noext", "ABCDE"); !errors.Is(err, domain.ErrArtifactInvalid) {
		t.Errorf("missing extension: got %v", err)
	}
}

func TestSavePrefixSanitized(t *testing.T) {
	store := newTestStore(t, nil)

	_, relPath, err := store.Save(context.Background(), []byte("x"), "shot.png", "../../etc")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if strings.Contains(relPath, "..") || strings.Contains(relPath, "/") {
		t.Errorf("prefix leaked path characters: %s", relPath)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	store := newTestStore(t, key)
	ctx := context.Background()
	data := []byte("secret image bytes")

	fullPath, relPath, err := store.Save(ctx, data, "shot.jpg", "ABCDE")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !store.Encrypted() {
		t.Fatal("Encrypted() = false")
	}

	onDisk, _ := os.ReadFile(fullPath)
	if bytes.Contains(onDisk, data) {
		t.Error("encrypted file contains plaintext")
	}
	if !bytes.HasPrefix(onDisk, []byte(fileMagic)) {
		t.Error("encrypted file missing magic header")
	}

	loaded, err := store.Load(ctx, relPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded, data) {
		t.Error("decrypted bytes differ from original")
	}

	// A store with a different key must fail to open the file.
	other, err := New(Config{Dir: store.dir, EncryptionKey: []byte("another-key-entirely-0123456789")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := other.Load(ctx, relPath); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("wrong key: got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrDirRequired) {
		t.Errorf("missing dir: got %v", err)
	}
	if _, err := New(Config{Dir: t.TempDir(), EncryptionKey: []byte("short")}); !errors.Is(err, ErrKeyTooShort) {
		t.Errorf("short key: got %v", err)
	}
}
