package handshake_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/services/handshake"
	"securechat/internal/services/session"
)

type stubPeer struct{ id domain.ConnID }

func (p stubPeer) ID() domain.ConnID       { return p.id }
func (p stubPeer) Send(domain.Frame) error { return nil }

var (
	kpOnce sync.Once
	kp     *handshake.Keypair
	kpErr  error
)

func sharedKeypair(t *testing.T, svc *handshake.Service) *handshake.Keypair {
	t.Helper()
	kpOnce.Do(func() { kp, kpErr = svc.NewKeypair() })
	require.NoError(t, kpErr)
	return kp
}

func setup(t *testing.T) (*session.Registry, *handshake.Service, *handshake.Keypair) {
	t.Helper()
	reg := session.NewRegistry()
	svc := handshake.New(reg, crypto.MinRSABits)
	return reg, svc, sharedKeypair(t, svc)
}

func TestNewKeypair_PublishesPEMAndFingerprint(t *testing.T) {
	_, _, kp := setup(t)

	pub, err := crypto.ParsePublicKeyPEM(kp.PublicKeyPEM())
	require.NoError(t, err)
	assert.True(t, pub.Equal(kp.PublicKey()))
	assert.Equal(t, crypto.PublicKeyFingerprint(pub), kp.Fingerprint().String())
}

func TestEstablish_StoresUnwrappedKey(t *testing.T) {
	reg, svc, kp := setup(t)
	_, err := reg.Bind(stubPeer{"c1"}, "alice")
	require.NoError(t, err)

	key, err := crypto.NewSymmetricKey()
	require.NoError(t, err)
	blob, err := crypto.WrapSymmetricKey(key, kp.PublicKey())
	require.NoError(t, err)

	require.NoError(t, svc.Establish("c1", kp, blob))
	s, ok := reg.Get("c1")
	require.True(t, ok)
	got, ok := s.Key()
	require.True(t, ok)
	assert.Equal(t, key, got)

	require.ErrorIs(t, svc.Establish("c1", kp, blob), domain.ErrAlreadyKeyed)
}

func TestEstablish_FailureLeavesSessionUnkeyed(t *testing.T) {
	reg, svc, kp := setup(t)
	_, err := reg.Bind(stubPeer{"c1"}, "alice")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Establish("c1", kp, "not-base64!"), crypto.ErrCrypto)
	assert.False(t, reg.IsKeyReady("c1"))
}

func TestEstablish_UnknownConnection(t *testing.T) {
	_, svc, kp := setup(t)
	key, err := crypto.NewSymmetricKey()
	require.NoError(t, err)
	blob, err := crypto.WrapSymmetricKey(key, kp.PublicKey())
	require.NoError(t, err)

	require.ErrorIs(t, svc.Establish("ghost", kp, blob), domain.ErrUnknownConnection)
}

func TestEstablish_WithoutKeypair(t *testing.T) {
	_, svc, _ := setup(t)
	require.ErrorIs(t, svc.Establish("c1", nil, "x"), domain.ErrNotAuthenticated)
}

func TestKeypair_Destroy(t *testing.T) {
	_, svc, _ := setup(t)
	own, err := svc.NewKeypair()
	require.NoError(t, err)
	own.Destroy()
	own.Destroy()
	require.ErrorIs(t, svc.Establish("c1", own, "x"), domain.ErrNotAuthenticated)
}
