package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"securechat/internal/domain"
)

const usersFile = "users.json"

// UserFileStore persists user accounts to a JSON file. Every write rewrites
// the file atomically, so it suits relays with a modest number of users.
type UserFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewUserFileStore returns a UserFileStore rooted at dir.
func NewUserFileStore(dir string) *UserFileStore {
	return &UserFileStore{dir: dir}
}

func (s *UserFileStore) load() (map[domain.Username]domain.User, error) {
	users := make(map[domain.Username]domain.User)
	if err := readJSON(filepath.Join(s.dir, usersFile), &users); err != nil {
		return nil, fmt.Errorf("store: read %s: %w", usersFile, err)
	}
	return users, nil
}

// FindByUsername returns the user named username.
func (s *UserFileStore) FindByUsername(_ context.Context, username domain.Username) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return domain.User{}, false, err
	}
	u, ok := users[username]
	return u, ok, nil
}

// CreateUser adds a user; a taken username returns domain.ErrUserExists.
func (s *UserFileStore) CreateUser(_ context.Context, username domain.Username, passwordHash []byte) error {
	if !validUsername(username) {
		return domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := users[username]; ok {
		return domain.ErrUserExists
	}
	users[username] = domain.User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	return writeJSON(filepath.Join(s.dir, usersFile), users, 0o600)
}

// ListUsernames returns every username in sorted order.
func (s *UserFileStore) ListUsernames(_ context.Context) ([]domain.Username, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Username, 0, len(users))
	for name := range users {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Compile-time assertion that UserFileStore implements domain.CredentialStore.
var _ domain.CredentialStore = (*UserFileStore)(nil)
