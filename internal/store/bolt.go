package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"securechat/internal/domain"
)

const (
	metadataBucket = "metadata"
	usersBucket    = "users"
	historyBucket  = "history"
	versionKey     = "version"

	boltVersion = 0
)

// BoltStore keeps users and chat history in a single bbolt database. Values
// are CBOR encoded. History is stored in one sub-bucket per conversation,
// keyed by a big-endian sequence number so cursor order is arrival order.
type BoltStore struct {
	db *bolt.DB

	enc cbor.EncMode
	dec cbor.DecMode

	closeOnce sync.Once
}

// NewBoltStore creates (or loads) the database file f.
func NewBoltStore(f string) (*BoltStore, error) {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(f, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", f, err)
	}
	s := &BoltStore{db: db, enc: enc, dec: dec}

	if err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(usersBucket)); err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(historyBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != boltVersion {
				return fmt.Errorf("store: incompatible database version: %v", b)
			}
			return nil
		}
		return bkt.Put([]byte(versionKey), []byte{boltVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// FindByUsername returns the user named username.
func (s *BoltStore) FindByUsername(_ context.Context, username domain.Username) (domain.User, bool, error) {
	var (
		u     domain.User
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(usersBucket)).Get([]byte(username))
		if raw == nil {
			return nil
		}
		found = true
		return s.dec.Unmarshal(raw, &u)
	})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("store: find user: %w", err)
	}
	return u, found, nil
}

// CreateUser adds a user; a taken username returns domain.ErrUserExists.
func (s *BoltStore) CreateUser(_ context.Context, username domain.Username, passwordHash []byte) error {
	if !validUsername(username) {
		return domain.ErrValidation
	}
	raw, err := s.enc.Marshal(domain.User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(usersBucket))
		if bkt.Get([]byte(username)) != nil {
			return domain.ErrUserExists
		}
		return bkt.Put([]byte(username), raw)
	})
}

// ListUsernames returns every username in byte order.
func (s *BoltStore) ListUsernames(_ context.Context) ([]domain.Username, error) {
	var out []domain.Username
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(usersBucket)).ForEach(func(k, _ []byte) error {
			out = append(out, domain.Username(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Append stores rec in its conversation's sub-bucket.
func (s *BoltStore) Append(_ context.Context, rec domain.ChatRecord) error {
	raw, err := s.enc.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.Bucket([]byte(historyBucket)).CreateBucketIfNotExists([]byte(conversationKey(rec.From, rec.To)))
		if err != nil {
			return err
		}
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], seq)
		return bkt.Put(k[:], raw)
	})
}

// Recent returns up to limit of the latest records between a and b, oldest
// first.
func (s *BoltStore) Recent(_ context.Context, a, b domain.Username, limit int) ([]domain.ChatRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []domain.ChatRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(historyBucket)).Bucket([]byte(conversationKey(a, b)))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec domain.ChatRecord
			if err := s.dec.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: load history: %w", err)
	}
	reverse(out)
	return out, nil
}

// Close syncs and closes the database.
func (s *BoltStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.db.Sync()
		err = s.db.Close()
	})
	return err
}

// Compile-time assertions that BoltStore implements the store interfaces.
var (
	_ domain.CredentialStore = (*BoltStore)(nil)
	_ domain.MessageSink     = (*BoltStore)(nil)
	_ domain.HistoryStore    = (*BoltStore)(nil)
)
