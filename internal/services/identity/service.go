package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/op/go-logging.v1"

	"securechat/internal/domain"
	"securechat/internal/instrument"
)

const (
	// MaxUsernameLength bounds usernames in bytes.
	MaxUsernameLength = 32
	// maxPasswordLength is bcrypt's input limit.
	maxPasswordLength = 72
)

var (
	// ErrInvalidUsername is returned for usernames outside [A-Za-z0-9_.-]
	// or longer than MaxUsernameLength.
	ErrInvalidUsername = fmt.Errorf("%w: invalid username", domain.ErrValidation)

	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = fmt.Errorf("%w: password longer than %d bytes", domain.ErrValidation, maxPasswordLength)
)

// Service implements domain.Authenticator over a credential store.
type Service struct {
	store domain.CredentialStore
	guard domain.LockoutGuard
	cost  int
	log   *logging.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// New returns an identity service. A cost of zero selects
// bcrypt.DefaultCost.
func New(store domain.CredentialStore, guard domain.LockoutGuard, cost int, log *logging.Logger) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, guard: guard, cost: cost, log: log}
}

// ValidateCredentials checks the shape of a username and password.
func ValidateCredentials(username domain.Username, password string) error {
	if username == "" || password == "" {
		return domain.ErrValidation
	}
	if !validUsername(username) {
		return ErrInvalidUsername
	}
	if len(password) > maxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

func validUsername(username domain.Username) bool {
	if username == "" || len(username) > MaxUsernameLength || !utf8.ValidString(string(username)) {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return username[0] != '.'
}

// Available returns domain.ErrUserExists if username is taken.
func (s *Service) Available(ctx context.Context, username domain.Username) error {
	_, found, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("identity: lookup %s: %w", username, err)
	}
	if found {
		return domain.ErrUserExists
	}
	return nil
}

// Signup creates a user. Signup is not subject to lockout.
func (s *Service) Signup(ctx context.Context, username domain.Username, password string) error {
	if err := ValidateCredentials(username, password); err != nil {
		return err
	}
	if err := s.Available(ctx, username); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}
	if err := s.store.CreateUser(ctx, username, hash); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return err
		}
		return fmt.Errorf("identity: create %s: %w", username, err)
	}
	s.log.Noticef("Registered user %s", username)
	return nil
}

// Login verifies a password. A locked identity is rejected before the
// credential store is consulted. A failed attempt is recorded with the
// lockout guard; a successful one clears it.
func (s *Service) Login(ctx context.Context, username domain.Username, password string) error {
	if username == "" || password == "" {
		return domain.ErrValidation
	}
	// No such user can exist, and the name must not reach the guard.
	if !validUsername(username) {
		instrument.AuthFailure()
		return domain.ErrInvalidCredentials
	}
	if s.guard.IsLocked(username) {
		instrument.LockedOut()
		s.log.Warningf("Rejected login for locked identity %s", username)
		return domain.ErrLockedOut
	}

	user, found, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("identity: lookup %s: %w", username, err)
	}

	hash := s.dummy()
	if found {
		hash = user.PasswordHash
	}
	// Compare against a dummy hash for unknown users so both paths cost one
	// bcrypt verification.
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !found {
		s.guard.RecordFailure(username)
		instrument.AuthFailure()
		s.log.Infof("Failed login for %s", username)
		return domain.ErrInvalidCredentials
	}

	s.guard.ClearFailures(username)
	s.log.Debugf("Login succeeded for %s", username)
	return nil
}

// Peers returns every registered username other than except.
func (s *Service) Peers(ctx context.Context, except domain.Username) ([]domain.Username, error) {
	names, err := s.store.ListUsernames(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	out := make([]domain.Username, 0, len(names))
	for _, n := range names {
		if n != except {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("securechat-unknown-user"), s.cost)
		if err != nil {
			panic(err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Compile-time assertion that Service implements domain.Authenticator.
var _ domain.Authenticator = (*Service)(nil)
