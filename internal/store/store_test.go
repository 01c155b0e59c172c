package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"securechat/internal/domain"
	"securechat/internal/store"
)

type userStore interface {
	domain.CredentialStore
}

type historyStore interface {
	domain.MessageSink
	domain.HistoryStore
}

func testCredentialStore(t *testing.T, s userStore) {
	require := require.New(t)
	ctx := context.Background()

	_, ok, err := s.FindByUsername(ctx, "alice")
	require.NoError(err)
	require.False(ok, "FindByUsername(): unknown user found")

	require.NoError(s.CreateUser(ctx, "alice", []byte("hash-a")))
	require.NoError(s.CreateUser(ctx, "bob", []byte("hash-b")))
	require.ErrorIs(s.CreateUser(ctx, "alice", []byte("other")), domain.ErrUserExists)
	require.ErrorIs(s.CreateUser(ctx, "bad|name", []byte("x")), domain.ErrValidation)

	u, ok, err := s.FindByUsername(ctx, "alice")
	require.NoError(err)
	require.True(ok)
	require.Equal(domain.Username("alice"), u.Username)
	require.Equal([]byte("hash-a"), u.PasswordHash, "CreateUser(): hash not preserved")
	require.False(u.CreatedAt.IsZero())

	names, err := s.ListUsernames(ctx)
	require.NoError(err)
	require.Equal([]domain.Username{"alice", "bob"}, names)
}

func testHistoryStore(t *testing.T, s historyStore) {
	require := require.New(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		from, to := domain.Username("alice"), domain.Username("bob")
		if i%2 == 1 {
			from, to = to, from
		}
		require.NoError(s.Append(ctx, domain.ChatRecord{
			ID:        fmt.Sprintf("m%d", i),
			From:      from,
			To:        to,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Text:      fmt.Sprintf("hello %d", i),
		}))
	}
	require.NoError(s.Append(ctx, domain.ChatRecord{ID: "other", From: "alice", To: "carol", Timestamp: base, Text: "hi carol"}))

	recs, err := s.Recent(ctx, "bob", "alice", 3)
	require.NoError(err)
	require.Len(recs, 3)
	require.Equal([]string{"m2", "m3", "m4"}, []string{recs[0].ID, recs[1].ID, recs[2].ID}, "Recent(): want latest three, oldest first")
	require.Equal(domain.Username("bob"), recs[1].From)
	require.Equal("hello 3", recs[1].Text)
	require.True(base.Add(3*time.Second).Equal(recs[1].Timestamp))

	recs, err = s.Recent(ctx, "alice", "carol", 10)
	require.NoError(err)
	require.Len(recs, 1)

	recs, err = s.Recent(ctx, "bob", "carol", 10)
	require.NoError(err)
	require.Empty(recs)

	recs, err = s.Recent(ctx, "alice", "bob", 0)
	require.NoError(err)
	require.Empty(recs)
}

func testConcurrentSignup(t *testing.T, s userStore) {
	ctx := context.Background()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.CreateUser(ctx, "racer", []byte("h")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins, "exactly one concurrent CreateUser should win")
}

func TestMemoryStore(t *testing.T) {
	t.Run("credentials", func(t *testing.T) { testCredentialStore(t, store.NewMemoryStore(0)) })
	t.Run("history", func(t *testing.T) { testHistoryStore(t, store.NewMemoryStore(0)) })
	t.Run("concurrent signup", func(t *testing.T) { testConcurrentSignup(t, store.NewMemoryStore(0)) })
}

func TestMemoryStore_HistoryIsBounded(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := store.NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		require.NoError(s.Append(ctx, domain.ChatRecord{ID: fmt.Sprint(i), From: "a", To: "b"}))
	}
	recs, err := s.Recent(ctx, "a", "b", 10)
	require.NoError(err)
	require.Len(recs, 3)
	require.Equal("2", recs[0].ID)
}

func TestUserFileStore(t *testing.T) {
	dir := t.TempDir()
	testCredentialStore(t, store.NewUserFileStore(dir))

	// A second instance over the same directory sees the same users.
	names, err := store.NewUserFileStore(dir).ListUsernames(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 2)
}

func TestBoltStore(t *testing.T) {
	require := require.New(t)
	f := filepath.Join(t.TempDir(), "relay.db")

	s, err := store.NewBoltStore(f)
	require.NoError(err, "NewBoltStore()")
	testCredentialStore(t, s)
	testHistoryStore(t, s)
	require.NoError(s.Close())
	require.NoError(s.Close())

	// Reload and make sure the data survived.
	s, err = store.NewBoltStore(f)
	require.NoError(err, "NewBoltStore() reload")
	defer s.Close()
	_, ok, err := s.FindByUsername(context.Background(), "bob")
	require.NoError(err)
	require.True(ok, "reloaded database lost a user")
	recs, err := s.Recent(context.Background(), "alice", "bob", 100)
	require.NoError(err)
	require.Len(recs, 5)

	testConcurrentSignup(t, s)
}

func TestSQLStore(t *testing.T) {
	require := require.New(t)
	f := filepath.Join(t.TempDir(), "relay.sqlite")

	s, err := store.NewSQLStore(f)
	require.NoError(err, "NewSQLStore()")
	testCredentialStore(t, s)
	testHistoryStore(t, s)
	require.NoError(s.Close())

	s, err = store.NewSQLStore(f)
	require.NoError(err, "NewSQLStore() reload")
	defer s.Close()
	names, err := s.ListUsernames(context.Background())
	require.NoError(err)
	require.Equal([]domain.Username{"alice", "bob"}, names)
}
