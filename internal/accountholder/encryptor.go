package accountholder

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Envelope implements §4.6's token encryption scheme: a per-account
// data encryption key (DEK) wrapped under a long-lived master key,
// with tokens themselves sealed under the unwrapped DEK via AES-GCM.
// Adapted from the teacher's security.BYOKEncryptor (per-org DEK cache)
// down to a single master key with no in-memory DEK cache of its own —
// each accountholder.Actor owns exactly one account's DEK in memory for
// its own lifetime, so the map-of-orgs cache the teacher needs does not
// apply here.
type Envelope struct {
	masterKey []byte
}

// NewEnvelope decodes a base64-encoded 256-bit master key.
func NewEnvelope(masterKeyB64 string) (*Envelope, error) {
	key, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 256 bits (32 bytes), got %d", len(key))
	}
	return &Envelope{masterKey: key}, nil
}

// GenerateDEK mints a random 256-bit DEK for an account and returns it
// wrapped (encrypted) under the master key for storage.
func (e *Envelope) GenerateDEK(accountID string) (dek []byte, wrapped string, err error) {
	dek = make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, "", fmt.Errorf("generate dek: %w", err)
	}
	wrapped, err = e.wrapDEK(accountID, dek)
	if err != nil {
		return nil, "", err
	}
	return dek, wrapped, nil
}

func (e *Envelope) wrapDEK(accountID string, dek []byte) (string, error) {
	gcm, err := e.masterGCM()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	wrapped := gcm.Seal(nonce, nonce, dek, []byte(accountID))
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapDEK decrypts an account's stored DEK using the master key.
func (e *Envelope) UnwrapDEK(accountID, wrappedB64 string) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped dek: %w", err)
	}
	gcm, err := e.masterGCM()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, fmt.Errorf("wrapped dek too short")
	}
	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]
	dek, err := gcm.Open(nil, nonce, ciphertext, []byte(accountID))
	if err != nil {
		return nil, fmt.Errorf("unwrap dek: %w", err)
	}
	return dek, nil
}

func (e *Envelope) masterGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.masterKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under dek, returning base64 ciphertext. An
// empty plaintext seals to an empty string so unset tokens round-trip
// without a spurious ciphertext.
func Seal(dek, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts base64 ciphertext sealed by Seal under dek.
func Open(dek []byte, ciphertextB64 string) ([]byte, error) {
	if ciphertextB64 == "" {
		return nil, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
