package crypto_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"securechat/internal/crypto"
)

// wrapRaw OAEP-encrypts arbitrary bytes, bypassing the key size check.
func wrapRaw(t *testing.T, pub *rsa.PublicKey, b []byte) string {
	t.Helper()
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, b, nil)
	if err != nil {
		t.Fatalf("EncryptOAEP: %v", err)
	}
	return crypto.B64(ct)
}
