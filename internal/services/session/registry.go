package session

import (
	"hash/fnv"
	"sort"
	"sync"

	"securechat/internal/domain"
)

const shardCount = 32

type identityShard struct {
	sync.RWMutex
	byName map[domain.Username]map[domain.ConnID]*Session
}

// Registry maps connections to sessions and identities to their live
// connections. One identity may be bound on several connections; each gets
// an independent Session.
type Registry struct {
	conns  sync.Map // domain.ConnID -> *Session
	shards [shardCount]identityShard
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].byName = make(map[domain.Username]map[domain.ConnID]*Session)
	}
	return r
}

// Bind attaches username to the peer's connection.
func (r *Registry) Bind(peer domain.Peer, username domain.Username) (*Session, error) {
	s := &Session{peer: peer, username: username}
	if _, loaded := r.conns.LoadOrStore(peer.ID(), s); loaded {
		return nil, domain.ErrAlreadyBound
	}

	sh := r.shardFor(username)
	sh.Lock()
	m, ok := sh.byName[username]
	if !ok {
		m = make(map[domain.ConnID]*Session)
		sh.byName[username] = m
	}
	m[peer.ID()] = s
	sh.Unlock()
	return s, nil
}

// SetSymmetricKey stores key on the connection's session. The key is copied.
func (r *Registry) SetSymmetricKey(conn domain.ConnID, key []byte) error {
	s, ok := r.Get(conn)
	if !ok {
		return domain.ErrUnknownConnection
	}
	return s.setKey(key)
}

// Get returns the session bound to conn.
func (r *Registry) Get(conn domain.ConnID) (*Session, bool) {
	v, ok := r.conns.Load(conn)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// IsKeyReady reports whether conn is bound and has a symmetric key.
func (r *Registry) IsKeyReady(conn domain.ConnID) bool {
	s, ok := r.Get(conn)
	return ok && s.KeyReady()
}

// Lookup returns every live session bound to username.
func (r *Registry) Lookup(username domain.Username) []*Session {
	sh := r.shardFor(username)
	sh.RLock()
	defer sh.RUnlock()
	m := sh.byName[username]
	out := make([]*Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// Unbind removes the connection's session and wipes its key. Calling it for
// an unknown connection is a no-op.
func (r *Registry) Unbind(conn domain.ConnID) {
	v, ok := r.conns.LoadAndDelete(conn)
	if !ok {
		return
	}
	s := v.(*Session)

	sh := r.shardFor(s.username)
	sh.Lock()
	if m, ok := sh.byName[s.username]; ok {
		delete(m, conn)
		if len(m) == 0 {
			delete(sh.byName, s.username)
		}
	}
	sh.Unlock()

	s.wipe()
}

// Online returns the sorted set of identities with at least one session.
func (r *Registry) Online() []domain.Username {
	var out []domain.Username
	for i := range r.shards {
		sh := &r.shards[i]
		sh.RLock()
		for name := range sh.byName {
			out = append(out, name)
		}
		sh.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) shardFor(username domain.Username) *identityShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return &r.shards[h.Sum32()%shardCount]
}
