// Package crypto exposes the hybrid encryption primitives used by the relay.
//
// Contents
//
//   - RSA key pair generation and PKCS#1 PEM encoding of the public half
//     (GenerateKeypair, MarshalPublicKeyPEM, ParsePublicKeyPEM)
//   - RSA-OAEP wrapping of a 32-byte session key (WrapSymmetricKey,
//     UnwrapSymmetricKey)
//   - AES-256-GCM message envelopes of the form "ivHex:cipherHex" (Encrypt,
//     Decrypt)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Every function is stateless and draws randomness from crypto/rand. All
// failures are reported as ErrCrypto (or an error wrapping it) without
// revealing which check failed.
package crypto
