package handshake

import (
	"crypto/rsa"
	"fmt"
	"math/big"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/util/memzero"
)

// KeyStore is the subset of the session registry the handshake needs.
type KeyStore interface {
	IsKeyReady(conn domain.ConnID) bool
	SetSymmetricKey(conn domain.ConnID, key []byte) error
}

// Keypair is the RSA keypair generated for a single connection. It is owned
// by the connection's goroutine and never shared.
type Keypair struct {
	pub  *rsa.PublicKey
	priv *rsa.PrivateKey

	pem         string
	fingerprint domain.Fingerprint
}

// PublicKeyPEM returns the PKCS#1 PEM encoding sent to the client.
func (k *Keypair) PublicKeyPEM() string { return k.pem }

// Fingerprint returns a short fingerprint of the public key.
func (k *Keypair) Fingerprint() domain.Fingerprint { return k.fingerprint }

// PublicKey returns the public half.
func (k *Keypair) PublicKey() *rsa.PublicKey { return k.pub }

// Destroy clears the private exponent and primes. The keypair is unusable
// afterwards.
func (k *Keypair) Destroy() {
	if k == nil || k.priv == nil {
		return
	}
	zero := new(big.Int)
	k.priv.D.Set(zero)
	for _, p := range k.priv.Primes {
		p.Set(zero)
	}
	k.priv = nil
}

// Service generates connection keypairs and completes key exchanges.
type Service struct {
	keys KeyStore
	bits int
}

// New returns a handshake service storing negotiated keys in keys. A bits
// value of zero selects crypto.DefaultRSABits.
func New(keys KeyStore, bits int) *Service {
	if bits == 0 {
		bits = crypto.DefaultRSABits
	}
	return &Service{keys: keys, bits: bits}
}

// NewKeypair generates a fresh keypair for one connection.
func (s *Service) NewKeypair() (*Keypair, error) {
	pub, priv, err := crypto.GenerateKeypairBits(s.bits)
	if err != nil {
		return nil, fmt.Errorf("handshake: generate keypair: %w", err)
	}
	return &Keypair{
		pub:         pub,
		priv:        priv,
		pem:         crypto.MarshalPublicKeyPEM(pub),
		fingerprint: domain.Fingerprint(crypto.PublicKeyFingerprint(pub)),
	}, nil
}

// Establish unwraps blob with kp and stores the resulting key for conn.
//
// A connection that already has a key is rejected with ErrAlreadyKeyed
// before any RSA work is done. Unwrap failures are reported as
// crypto.ErrCrypto and leave the session untouched.
func (s *Service) Establish(conn domain.ConnID, kp *Keypair, blob string) error {
	if kp == nil || kp.priv == nil {
		return domain.ErrNotAuthenticated
	}
	if s.keys.IsKeyReady(conn) {
		return domain.ErrAlreadyKeyed
	}

	key, err := crypto.UnwrapSymmetricKey(blob, kp.priv)
	if err != nil {
		return err
	}
	defer memzero.Zero(key)

	return s.keys.SetSymmetricKey(conn, key)
}
