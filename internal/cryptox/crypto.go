// Package cryptox holds the small cryptographic toolbox shared by the client
// vault: argon2id key derivation for the unlock factor and AES-GCM sealing
// for the credential payload at rest.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"

	"golang.org/x/crypto/argon2"
)

// DeriveUnlockKey stretches a user-supplied secret (the unlock passphrase)
// into a 32-byte key using argon2id.
func DeriveUnlockKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// MakeVerifier turns a derived key into a value safe to store for later
// comparison. The key itself is never persisted.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// SealValue serializes v to JSON and encrypts it with AES-GCM under key.
//
// The key must be 16, 24, or 32 bytes. A fresh random 12-byte nonce is
// generated per call and returned alongside the ciphertext; both must be
// stored to decrypt later.
func SealValue(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// OpenValue decrypts ciphertext produced by SealValue and unmarshals the
// JSON payload into v. A wrong key or tampered ciphertext fails the GCM
// authentication check and returns an error without touching v.
func OpenValue(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
