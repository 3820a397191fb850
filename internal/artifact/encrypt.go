package artifact

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encrypted file framing: magic || salt || nonce || ciphertext.
// Each file gets its own HKDF subkey so a leaked per-file key never
// exposes the master key or sibling files.
const (
	fileMagic  = "SGA1"
	saltLength = 16
	hkdfInfo   = "scriptgate artifact v1"
)

// ErrDecryptFailed is returned when an encrypted artifact cannot be
// opened with the configured key.
var ErrDecryptFailed = errors.New("artifact: decryption failed - wrong key or corrupted data")

type fileCipher struct {
	masterKey []byte
}

func newFileCipher(masterKey []byte) (*fileCipher, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	return &fileCipher{masterKey: key}, nil
}

// deriveSubkey derives the per-file ChaCha20-Poly1305 key from the
// master key and the file salt.
func (c *fileCipher) deriveSubkey(salt []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, c.masterKey, salt, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (c *fileCipher) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := c.deriveSubkey(salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(fileMagic)+saltLength+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, fileMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, nil), nil
}

func (c *fileCipher) open(sealed []byte) ([]byte, error) {
	headerLen := len(fileMagic) + saltLength + chacha20poly1305.NonceSizeX
	if len(sealed) < headerLen || string(sealed[:len(fileMagic)]) != fileMagic {
		return nil, ErrDecryptFailed
	}

	salt := sealed[len(fileMagic) : len(fileMagic)+saltLength]
	nonce := sealed[len(fileMagic)+saltLength : headerLen]
	ciphertext := sealed[headerLen:]

	key, err := c.deriveSubkey(salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
