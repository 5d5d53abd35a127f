package store

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/mnemolabs/mnemo/core"
)

// cipherbox encrypts memory content at rest. Each memory class gets its
// own subkey derived from the master key, so content from one class never
// decrypts under another class's key.
type cipherbox struct {
	master []byte
}

func newCipherbox(masterKey []byte) (*cipherbox, error) {
	if len(masterKey) < 32 {
		return nil, fmt.Errorf("master key must be at least 32 bytes, got %d", len(masterKey))
	}
	return &cipherbox{master: masterKey}, nil
}

// keyID names the key a row was sealed with. Bump the version on key
// rotation.
func keyID(class core.MemoryClass) string {
	return fmt.Sprintf("v1:%s", class)
}

// subkey derives the per-class encryption key via HKDF-SHA256.
func (c *cipherbox) subkey(class core.MemoryClass) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, c.master, nil, []byte("mnemo/"+string(class)))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive class key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext under the class subkey. The nonce is prepended
// to the ciphertext.
func (c *cipherbox) seal(class core.MemoryClass, plaintext []byte) ([]byte, error) {
	key, err := c.subkey(class)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a sealed blob produced by seal.
func (c *cipherbox) open(class core.MemoryClass, sealed []byte) ([]byte, error) {
	key, err := c.subkey(class)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed blob too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
