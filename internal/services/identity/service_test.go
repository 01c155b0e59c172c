package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"securechat/internal/domain"
	"securechat/internal/log"
	"securechat/internal/services/identity"
	"securechat/internal/services/lockout"
	"securechat/internal/store"
)

type countingStore struct {
	*store.MemoryStore
	lookups int
}

func (s *countingStore) FindByUsername(ctx context.Context, u domain.Username) (domain.User, bool, error) {
	s.lookups++
	return s.MemoryStore.FindByUsername(ctx, u)
}

type failingStore struct{ *store.MemoryStore }

func (failingStore) FindByUsername(context.Context, domain.Username) (domain.User, bool, error) {
	return domain.User{}, false, errors.New("db down")
}

func newService(t *testing.T) (*identity.Service, *countingStore, *lockout.Guard, *time.Time) {
	t.Helper()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	guard := lockout.New(lockout.WithClock(func() time.Time { return now }))
	cs := &countingStore{MemoryStore: store.NewMemoryStore(0)}
	svc := identity.New(cs, guard, bcrypt.MinCost, log.NewDiscard().GetLogger("identity"))
	return svc, cs, guard, &now
}

func TestSignup(t *testing.T) {
	svc, cs, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Signup(ctx, "alice", "pw1"))
	require.ErrorIs(t, svc.Signup(ctx, "alice", "pw2"), domain.ErrUserExists)
	require.ErrorIs(t, svc.Available(ctx, "alice"), domain.ErrUserExists)
	require.NoError(t, svc.Available(ctx, "bob"))

	u, ok, err := cs.MemoryStore.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, []byte("pw1"), u.PasswordHash, "password must be stored hashed")
	assert.NoError(t, bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("pw1")))
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	for _, tc := range []struct {
		user domain.Username
		pass string
	}{
		{"", "pw"},
		{"alice", ""},
		{"../etc", "pw"},
		{"a|b", "pw"},
		{".hidden", "pw"},
		{domain.Username(strings.Repeat("a", identity.MaxUsernameLength+1)), "pw"},
		{"alice", strings.Repeat("p", 73)},
	} {
		assert.ErrorIs(t, svc.Signup(ctx, tc.user, tc.pass), domain.ErrValidation, "Signup(%q)", tc.user)
	}
	assert.NoError(t, svc.Signup(ctx, "Bob_the-2nd.x", "pw"))
}

func TestLogin_LockoutScenario(t *testing.T) {
	svc, cs, guard, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Signup(ctx, "alice", "pw1"))

	for i := 1; i <= lockout.DefaultMaxFailures; i++ {
		require.ErrorIs(t, svc.Login(ctx, "alice", "wrongpw"), domain.ErrInvalidCredentials, "attempt %d", i)
	}
	require.True(t, guard.IsLocked("alice"))

	before := cs.lookups
	require.ErrorIs(t, svc.Login(ctx, "alice", "pw1"), domain.ErrLockedOut)
	assert.Equal(t, before, cs.lookups, "locked login must not touch the credential store")
}

func TestLogin_ExpiryThenSuccessClearsFailures(t *testing.T) {
	svc, _, guard, now := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Signup(ctx, "alice", "pw1"))

	for i := 0; i < lockout.DefaultMaxFailures; i++ {
		_ = svc.Login(ctx, "alice", "nope")
	}
	*now = now.Add(lockout.DefaultWindow)

	require.NoError(t, svc.Login(ctx, "alice", "pw1"))
	assert.Equal(t, 0, guard.Failures("alice"))
}

func TestLogin_UnknownUserLooksLikeWrongPassword(t *testing.T) {
	svc, _, guard, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Signup(ctx, "alice", "pw1"))

	errUnknown := svc.Login(ctx, "mallory", "pw")
	errWrong := svc.Login(ctx, "alice", "pw")
	require.ErrorIs(t, errUnknown, domain.ErrInvalidCredentials)
	assert.Equal(t, errWrong, errUnknown)
	assert.Equal(t, 1, guard.Failures("mallory"), "unknown identities are counted too")
}

func TestLogin_ImpossibleUsernameSkipsGuardAndStore(t *testing.T) {
	svc, cs, guard, _ := newService(t)
	ctx := context.Background()

	for _, name := range []domain.Username{
		domain.Username(strings.Repeat("m", 64*1024)),
		"../etc",
		".hidden",
	} {
		err := svc.Login(ctx, name, "pw")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
		if n := guard.Failures(name); n != 0 {
			t.Fatalf("guard holds %d failure(s) for %.16q...", n, name)
		}
	}
	assert.Equal(t, 0, cs.lookups)
}

func TestLogin_StoreErrorIsNotCountedAsFailure(t *testing.T) {
	guard := lockout.New()
	svc := identity.New(failingStore{store.NewMemoryStore(0)}, guard, bcrypt.MinCost, log.NewDiscard().GetLogger("identity"))
	err := svc.Login(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, 0, guard.Failures("alice"))
}

func TestPeers(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	for _, u := range []domain.Username{"carol", "alice", "bob"} {
		require.NoError(t, svc.Signup(ctx, u, "pw"))
	}
	peers, err := svc.Peers(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.Username{"alice", "carol"}, peers)
}
