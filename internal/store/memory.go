package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"securechat/internal/domain"
)

// DefaultMemoryHistory is the number of records MemoryStore keeps per
// conversation.
const DefaultMemoryHistory = 500

// MemoryStore keeps users and chat history in memory. History is bounded
// per conversation; the oldest records are evicted first.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[domain.Username]domain.User
	history    map[string][]domain.ChatRecord
	maxHistory int
}

// NewMemoryStore returns an empty MemoryStore. A maxHistory of zero selects
// DefaultMemoryHistory.
func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMemoryHistory
	}
	return &MemoryStore{
		users:      make(map[domain.Username]domain.User),
		history:    make(map[string][]domain.ChatRecord),
		maxHistory: maxHistory,
	}
}

func (s *MemoryStore) FindByUsername(_ context.Context, username domain.Username) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	return u, ok, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, username domain.Username, passwordHash []byte) error {
	if !validUsername(username) {
		return domain.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return domain.ErrUserExists
	}
	hash := make([]byte, len(passwordHash))
	copy(hash, passwordHash)
	s.users[username] = domain.User{Username: username, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) ListUsernames(_ context.Context) ([]domain.Username, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Username, 0, len(s.users))
	for name := range s.users {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Append records a relayed message.
func (s *MemoryStore) Append(_ context.Context, rec domain.ChatRecord) error {
	k := conversationKey(rec.From, rec.To)
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[k], rec)
	if over := len(h) - s.maxHistory; over > 0 {
		h = append([]domain.ChatRecord(nil), h[over:]...)
	}
	s.history[k] = h
	return nil
}

// Recent returns up to limit of the latest records between a and b, oldest
// first.
func (s *MemoryStore) Recent(_ context.Context, a, b domain.Username, limit int) ([]domain.ChatRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[conversationKey(a, b)]
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]domain.ChatRecord(nil), h...), nil
}

// Compile-time assertions that MemoryStore implements the store interfaces.
var (
	_ domain.CredentialStore = (*MemoryStore)(nil)
	_ domain.MessageSink     = (*MemoryStore)(nil)
	_ domain.HistoryStore    = (*MemoryStore)(nil)
)
