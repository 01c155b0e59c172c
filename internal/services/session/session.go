package session

import (
	"sync"

	"securechat/internal/domain"
	"securechat/internal/util/memzero"
)

// Session is the per-connection state of an authenticated client.
type Session struct {
	peer     domain.Peer
	username domain.Username

	mu     sync.Mutex
	key    []byte
	closed bool
}

// Peer returns the outbound handle of the session's connection.
func (s *Session) Peer() domain.Peer { return s.peer }

// ConnID returns the ID of the session's connection.
func (s *Session) ConnID() domain.ConnID { return s.peer.ID() }

// Username returns the bound identity.
func (s *Session) Username() domain.Username { return s.username }

// KeyReady reports whether a symmetric key has been set.
func (s *Session) KeyReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// Key returns a copy of the symmetric key. The caller should wipe it after use.
func (s *Session) Key() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, false
	}
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out, true
}

func (s *Session) setKey(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrUnknownConnection
	}
	if s.key != nil {
		return domain.ErrAlreadyKeyed
	}
	s.key = make([]byte, len(key))
	copy(s.key, key)
	return nil
}

func (s *Session) wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	memzero.Zero(s.key)
	s.key = nil
	s.closed = true
}
