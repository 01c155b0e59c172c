package message

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/instrument"
	"securechat/internal/protocol"
	"securechat/internal/services/session"
	"securechat/internal/util/memzero"
)

// DefaultHistoryLimit caps the number of records a history request returns.
const DefaultHistoryLimit = 50

// Sessions is the subset of the session registry the relay reads.
type Sessions interface {
	Get(conn domain.ConnID) (*session.Session, bool)
	Lookup(username domain.Username) []*session.Session
}

// Option configures a Service.
type Option func(*Service)

// WithHistory enables history replay from h, returning at most limit
// records per request.
func WithHistory(h domain.HistoryStore, limit int) Option {
	return func(s *Service) {
		s.history = h
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithRecipients persists only messages addressed to users registered in
// users.
func WithRecipients(users domain.CredentialStore) Option {
	return func(s *Service) { s.users = users }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the relay engine.
type Service struct {
	sessions Sessions
	sink     domain.MessageSink
	log      *logging.Logger

	users        domain.CredentialStore
	history      domain.HistoryStore
	historyLimit int
	now          func() time.Time
}

// New returns a relay engine. sink may be nil to disable persistence.
func New(sessions Sessions, sink domain.MessageSink, log *logging.Logger, opts ...Option) *Service {
	s := &Service{
		sessions:     sessions,
		sink:         sink,
		log:          log,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver relays envelope from the sender connection to every key-ready
// connection of recipient.
//
// Errors concern the sender only: ErrNotAuthenticated, ErrKeyNotReady or
// ErrDecryption. A recipient that is offline or not key-ready is skipped
// silently, and a failed send to one recipient connection does not affect
// the others.
func (s *Service) Deliver(ctx context.Context, sender domain.ConnID, recipient domain.Username, envelope string) error {
	from, key, err := s.keyFor(sender)
	if err != nil {
		return err
	}
	defer memzero.Zero(key)

	plaintext, err := crypto.Decrypt(envelope, key)
	if err != nil {
		instrument.DecryptFailure()
		s.log.Debugf("Rejected envelope from %s: %v", from.Username(), err)
		return fmt.Errorf("%w: %w", domain.ErrDecryption, err)
	}
	defer memzero.Zero(plaintext)

	now := s.now()
	sent := 0
	for _, r := range s.sessions.Lookup(recipient) {
		if s.sendTo(r, from.Username(), plaintext, now) {
			sent++
		}
	}
	if sent == 0 {
		instrument.Dropped("offline")
		s.log.Debugf("Dropped message %s -> %s: no key-ready recipient", from.Username(), recipient)
		if !s.registered(ctx, recipient) {
			return nil
		}
	}

	s.persist(ctx, domain.ChatRecord{
		ID:        uuid.NewString(),
		From:      from.Username(),
		To:        recipient,
		Timestamp: now,
		Text:      html.EscapeString(string(plaintext)),
	})
	return nil
}

func (s *Service) sendTo(r *session.Session, from domain.Username, plaintext []byte, at time.Time) bool {
	rk, ok := r.Key()
	if !ok {
		return false
	}
	envelope, err := crypto.Encrypt(plaintext, rk)
	memzero.Zero(rk)
	if err != nil {
		s.log.Errorf("Failed to seal message for %s on %s: %v", r.Username(), r.ConnID(), err)
		return false
	}
	if err := r.Peer().Send(protocol.Relayed(from, envelope, at)); err != nil {
		instrument.Dropped("send")
		s.log.Debugf("Send to %s on %s failed: %v", r.Username(), r.ConnID(), err)
		return false
	}
	instrument.Delivered()
	return true
}

// registered reports whether recipient may own a conversation record. A
// recipient with a live session is always registered.
func (s *Service) registered(ctx context.Context, recipient domain.Username) bool {
	if s.users == nil {
		return true
	}
	_, found, err := s.users.FindByUsername(ctx, recipient)
	if err != nil {
		s.log.Warningf("Failed to look up recipient %s: %v", recipient, err)
		return false
	}
	return found
}

func (s *Service) persist(ctx context.Context, rec domain.ChatRecord) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Append(ctx, rec); err != nil {
		s.log.Warningf("Failed to queue record %s: %v", rec.ID, err)
	}
}

// History returns up to limit of the most recent messages between the
// connection's identity and peer, oldest first, each sealed with the
// connection's key. A limit of zero or above the configured cap selects the
// cap. Without a history store the result is empty.
func (s *Service) History(ctx context.Context, conn domain.ConnID, peer domain.Username, limit int) ([]domain.HistoryEntry, error) {
	sess, key, err := s.keyFor(conn)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	if s.history == nil {
		return nil, nil
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	recs, err := s.history.Recent(ctx, sess.Username(), peer, limit)
	if err != nil {
		return nil, fmt.Errorf("message: load history: %w", err)
	}

	out := make([]domain.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		envelope, err := crypto.Encrypt([]byte(html.UnescapeString(rec.Text)), key)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.HistoryEntry{
			From:             rec.From.String(),
			To:               rec.To.String(),
			Timestamp:        protocol.Timestamp(rec.Timestamp),
			EncryptedMessage: envelope,
		})
	}
	return out, nil
}

func (s *Service) keyFor(conn domain.ConnID) (*session.Session, []byte, error) {
	sess, ok := s.sessions.Get(conn)
	if !ok {
		return nil, nil, domain.ErrNotAuthenticated
	}
	key, ok := sess.Key()
	if !ok {
		return nil, nil, domain.ErrKeyNotReady
	}
	return sess, key, nil
}
