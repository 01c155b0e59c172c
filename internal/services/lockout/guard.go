package lockout

import (
	"hash/fnv"
	"sync"
	"time"

	"securechat/internal/domain"
)

const (
	// DefaultMaxFailures is the failure count at which an identity locks.
	DefaultMaxFailures = 5
	// DefaultWindow is how long a lock lasts after the latest failure.
	DefaultWindow = 5 * time.Minute

	shardCount = 32
)

type record struct {
	failures    int
	lastFailure time.Time
}

type shard struct {
	sync.Mutex
	records map[domain.Username]*record
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxFailures overrides DefaultMaxFailures.
func WithMaxFailures(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxFailures = n
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// Guard tracks authentication failures per identity. Records are spread over
// lock-striped shards so unrelated identities never contend.
type Guard struct {
	maxFailures int
	window      time.Duration
	now         func() time.Time

	shards [shardCount]shard
}

// New returns an empty Guard.
func New(opts ...Option) *Guard {
	g := &Guard{
		maxFailures: DefaultMaxFailures,
		window:      DefaultWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	for i := range g.shards {
		g.shards[i].records = make(map[domain.Username]*record)
	}
	return g
}

// RecordFailure counts one failed attempt for username and refreshes its
// window. A record whose window already elapsed starts over.
func (g *Guard) RecordFailure(username domain.Username) {
	s := g.shardFor(username)
	s.Lock()
	defer s.Unlock()

	now := g.now()
	r, ok := s.records[username]
	if !ok || g.expired(r, now) {
		r = &record{}
		s.records[username] = r
	}
	r.failures++
	r.lastFailure = now
}

// IsLocked reports whether username has reached the threshold within the
// window. An expired record is purged as a side effect.
func (g *Guard) IsLocked(username domain.Username) bool {
	s := g.shardFor(username)
	s.Lock()
	defer s.Unlock()

	r, ok := s.records[username]
	if !ok {
		return false
	}
	if g.expired(r, g.now()) {
		delete(s.records, username)
		return false
	}
	return r.failures >= g.maxFailures
}

// ClearFailures forgets every failure recorded for username.
func (g *Guard) ClearFailures(username domain.Username) {
	s := g.shardFor(username)
	s.Lock()
	defer s.Unlock()
	delete(s.records, username)
}

// Failures returns the current failure count for username.
func (g *Guard) Failures(username domain.Username) int {
	s := g.shardFor(username)
	s.Lock()
	defer s.Unlock()
	if r, ok := s.records[username]; ok {
		return r.failures
	}
	return 0
}

func (g *Guard) expired(r *record, now time.Time) bool {
	return now.Sub(r.lastFailure) >= g.window
}

func (g *Guard) shardFor(username domain.Username) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return &g.shards[h.Sum32()%shardCount]
}

// Compile-time assertion that Guard implements domain.LockoutGuard.
var _ domain.LockoutGuard = (*Guard)(nil)
