package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

const (
	// DefaultRSABits is the modulus size of per-connection key pairs.
	DefaultRSABits = 4096
	// MinRSABits is the smallest modulus GenerateKeypairBits accepts.
	MinRSABits = 2048

	pemBlockType = "RSA PUBLIC KEY"
)

// GenerateKeypair returns a fresh 4096-bit RSA key pair.
func GenerateKeypair() (*rsa.PublicKey, *rsa.PrivateKey, error) {
	return GenerateKeypairBits(DefaultRSABits)
}

// GenerateKeypairBits returns a fresh RSA key pair with the given modulus size.
func GenerateKeypairBits(bits int) (*rsa.PublicKey, *rsa.PrivateKey, error) {
	if bits < MinRSABits {
		return nil, nil, fmt.Errorf("crypto: rsa modulus %d below minimum %d", bits, MinRSABits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}
	return &priv.PublicKey, priv, nil
}

// WrapSymmetricKey encrypts key for pub with RSA-OAEP(SHA-256) and returns
// the ciphertext in standard base64.
func WrapSymmetricKey(key []byte, pub *rsa.PublicKey) (string, error) {
	if pub == nil || len(key) != KeySize {
		return "", ErrCrypto
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return B64(ct), nil
}

// UnwrapSymmetricKey reverses WrapSymmetricKey. The decrypted blob may be
// either the raw 32-byte key or its 64-character hex text.
//
// All failure modes return the same ErrCrypto value.
func UnwrapSymmetricKey(blob string, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrCrypto
	}
	ct, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrCrypto
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ct, nil)
	if err != nil {
		return nil, ErrCrypto
	}
	switch len(pt) {
	case KeySize:
		return pt, nil
	case hex.EncodedLen(KeySize):
		key := make([]byte, KeySize)
		if _, err := hex.Decode(key, pt); err != nil {
			return nil, ErrCrypto
		}
		return key, nil
	default:
		return nil, ErrCrypto
	}
}

// MarshalPublicKeyPEM encodes pub as a PKCS#1 PEM block.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  pemBlockType,
		Bytes: x509.MarshalPKCS1PublicKey(pub),
	}))
}

// ParsePublicKeyPEM decodes a PKCS#1 PEM public key.
func ParsePublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil || block.Type != pemBlockType {
		return nil, fmt.Errorf("%w: no %s block", ErrCrypto, pemBlockType)
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return pub, nil
}

// PublicKeyFingerprint returns the short fingerprint of pub's PKCS#1 encoding.
func PublicKeyFingerprint(pub *rsa.PublicKey) string {
	return Fingerprint(x509.MarshalPKCS1PublicKey(pub))
}
