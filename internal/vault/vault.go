// Package vault encrypts secret values at rest for internal/store's
// secrets table: ModelManager backends and, eventually, tool
// credentials are never written to sqlite as plaintext.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Vault derives an AES-256-GCM key from a passphrase via Argon2id and
// uses it to seal/open secret payloads.
type Vault struct {
	key [32]byte
}

// New derives a Vault's key from passphrase. The salt is the
// passphrase's own SHA-256 digest, so a given passphrase always
// rederives the same key across restarts without needing separate
// salt storage.
func New(passphrase string) *Vault {
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	v := &Vault{}
	copy(v.key[:], key)
	return v
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under a random nonce, for values destined
// for internal/store.Secret's Value/Nonce columns.
func (v *Vault) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens a ciphertext/nonce pair previously produced by
// Encrypt.
func (v *Vault) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}

	return plaintext, nil
}

// EncryptString is Encrypt for the common case of a string-valued
// secret (API keys, tokens) rather than raw bytes.
func (v *Vault) EncryptString(plaintext string) (ciphertext, nonce []byte, err error) {
	return v.Encrypt([]byte(plaintext))
}

// DecryptString is Decrypt for a secret whose plaintext is a string.
func (v *Vault) DecryptString(ciphertext, nonce []byte) (string, error) {
	plaintext, err := v.Decrypt(ciphertext, nonce)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
