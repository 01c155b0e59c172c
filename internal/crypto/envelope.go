package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// KeySize is the length of a session key (AES-256).
const KeySize = 32

const envelopeSeparator = ":"

// NewSymmetricKey returns a random session key.
func NewSymmetricKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random IV and returns the
// envelope "ivHex:cipherHex".
func Encrypt(plaintext, key []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	ct := aead.Seal(nil, iv, plaintext, nil)
	return hex.EncodeToString(iv) + envelopeSeparator + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope produced by Encrypt.
func Decrypt(envelope string, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	ivHex, ctHex, ok := strings.Cut(envelope, envelopeSeparator)
	if !ok {
		return nil, ErrMalformedEnvelope
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aead.NonceSize() {
		return nil, ErrMalformedEnvelope
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) < aead.Overhead() {
		return nil, ErrMalformedEnvelope
	}
	pt, err := aead.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, ErrCrypto
	}
	return pt, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrCrypto
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrCrypto
	}
	return cipher.NewGCM(block)
}
