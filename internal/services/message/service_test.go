package message_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/log"
	"securechat/internal/protocol"
	"securechat/internal/services/message"
	"securechat/internal/services/session"
	"securechat/internal/store"
)

type fakePeer struct {
	id domain.ConnID

	mu     sync.Mutex
	frames []domain.Frame
	err    error
}

func (p *fakePeer) ID() domain.ConnID { return p.id }

func (p *fakePeer) Send(f domain.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, f)
	return nil
}

func (p *fakePeer) Frames() []domain.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Frame(nil), p.frames...)
}

type failingSink struct{ calls int }

func (s *failingSink) Append(context.Context, domain.ChatRecord) error {
	s.calls++
	return errors.New("disk full")
}

type fixture struct {
	reg   *session.Registry
	mem   *store.MemoryStore
	relay *message.Service
	keys  map[domain.ConnID][]byte
	at    time.Time
}

func newFixture(t *testing.T, sink domain.MessageSink) *fixture {
	t.Helper()
	f := &fixture{
		reg:  session.NewRegistry(),
		mem:  store.NewMemoryStore(0),
		keys: make(map[domain.ConnID][]byte),
		at:   time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}
	if sink == nil {
		sink = f.mem
	}
	f.relay = message.New(f.reg, sink, log.NewDiscard().GetLogger("relay"),
		message.WithHistory(f.mem, 3),
		message.WithClock(func() time.Time { return f.at }),
	)
	return f
}

func (f *fixture) connect(t *testing.T, id domain.ConnID, user domain.Username, keyed bool) *fakePeer {
	t.Helper()
	p := &fakePeer{id: id}
	_, err := f.reg.Bind(p, user)
	require.NoError(t, err)
	if keyed {
		k, err := crypto.NewSymmetricKey()
		require.NoError(t, err)
		require.NoError(t, f.reg.SetSymmetricKey(id, k))
		f.keys[id] = k
	}
	return p
}

func (f *fixture) seal(t *testing.T, id domain.ConnID, msg string) string {
	t.Helper()
	env, err := crypto.Encrypt([]byte(msg), f.keys[id])
	require.NoError(t, err)
	return env
}

func (f *fixture) open(t *testing.T, id domain.ConnID, env string) string {
	t.Helper()
	pt, err := crypto.Decrypt(env, f.keys[id])
	require.NoError(t, err)
	return string(pt)
}

func TestDeliver_RelayIsolation(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "s", "alice", true)
	r1 := f.connect(t, "r1", "bob", true)
	r2 := f.connect(t, "r2", "carol", false)
	r3 := f.connect(t, "r3", "bob", false)

	env := f.seal(t, "s", "hello bob")
	require.NoError(t, f.relay.Deliver(context.Background(), "s", "bob", env))

	got := r1.Frames()
	require.Len(t, got, 1)
	assert.Equal(t, domain.FrameChat, got[0].Type)
	assert.Equal(t, "alice", got[0].From)
	assert.Equal(t, protocol.Timestamp(f.at), got[0].Timestamp)
	assert.NotEqual(t, env, got[0].EncryptedMessage, "must be re-encrypted, not forwarded")
	assert.Equal(t, "hello bob", f.open(t, "r1", got[0].EncryptedMessage))

	assert.Empty(t, r2.Frames(), "other identities receive nothing")
	assert.Empty(t, r3.Frames(), "connections without a key receive nothing")
}

func TestDeliver_FanOutUsesEachRecipientKey(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "s", "alice", true)
	phone := f.connect(t, "phone", "bob", true)
	laptop := f.connect(t, "laptop", "bob", true)

	require.NoError(t, f.relay.Deliver(context.Background(), "s", "bob", f.seal(t, "s", "hi")))

	p, l := phone.Frames(), laptop.Frames()
	require.Len(t, p, 1)
	require.Len(t, l, 1)
	assert.NotEqual(t, p[0].EncryptedMessage, l[0].EncryptedMessage)
	assert.Equal(t, "hi", f.open(t, "phone", p[0].EncryptedMessage))
	assert.Equal(t, "hi", f.open(t, "laptop", l[0].EncryptedMessage))
	_, err := crypto.Decrypt(p[0].EncryptedMessage, f.keys["laptop"])
	assert.ErrorIs(t, err, crypto.ErrCrypto)
}

func TestDeliver_SenderErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "nokey", "alice", false)
	f.connect(t, "s", "carol", true)
	bob := f.connect(t, "r", "bob", true)
	ctx := context.Background()

	require.ErrorIs(t, f.relay.Deliver(ctx, "ghost", "bob", "00:00"), domain.ErrNotAuthenticated)
	require.ErrorIs(t, f.relay.Deliver(ctx, "nokey", "bob", "00:00"), domain.ErrKeyNotReady)

	err := f.relay.Deliver(ctx, "s", "bob", "zz:zz")
	require.ErrorIs(t, err, domain.ErrDecryption)
	require.ErrorIs(t, err, crypto.ErrCrypto)

	foreign, err := crypto.Encrypt([]byte("x"), f.keys["r"])
	require.NoError(t, err)
	require.ErrorIs(t, f.relay.Deliver(ctx, "s", "bob", foreign), domain.ErrDecryption)

	assert.Empty(t, bob.Frames(), "failed messages are not forwarded")
	recs, err := f.mem.Recent(ctx, "carol", "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, recs, "failed messages are not persisted")
}

func TestDeliver_OfflineRecipientIsSilent(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "s", "alice", true)
	require.NoError(t, f.relay.Deliver(context.Background(), "s", "nobody", f.seal(t, "s", "hello?")))

	recs, err := f.mem.Recent(context.Background(), "alice", "nobody", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1, "the record is persisted regardless of delivery")
}

func TestDeliver_UnregisteredRecipientIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.relay = message.New(f.reg, f.mem, log.NewDiscard().GetLogger("relay"),
		message.WithHistory(f.mem, 3),
		message.WithRecipients(f.mem),
	)
	require.NoError(t, f.mem.CreateUser(ctx, "bob", []byte("hash")))
	f.connect(t, "s", "alice", true)

	require.NoError(t, f.relay.Deliver(ctx, "s", "nobody", f.seal(t, "s", "hello?")))
	require.NoError(t, f.relay.Deliver(ctx, "s", "bob", f.seal(t, "s", "later")))

	recs, err := f.mem.Recent(ctx, "alice", "nobody", 10)
	require.NoError(t, err)
	if len(recs) != 0 {
		t.Fatalf("persisted %d record(s) for an unregistered recipient", len(recs))
	}
	recs, err = f.mem.Recent(ctx, "alice", "bob", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1, "registered offline recipients keep their history")
}

func TestDeliver_SendFailureDoesNotReachSender(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "s", "alice", true)
	broken := f.connect(t, "r1", "bob", true)
	broken.err = domain.ErrPeerClosed
	ok := f.connect(t, "r2", "bob", true)

	require.NoError(t, f.relay.Deliver(context.Background(), "s", "bob", f.seal(t, "s", "hi")))
	assert.Len(t, ok.Frames(), 1)
}

func TestDeliver_SinkFailureDoesNotBlockDelivery(t *testing.T) {
	sink := &failingSink{}
	f := newFixture(t, sink)
	f.connect(t, "s", "alice", true)
	bob := f.connect(t, "r", "bob", true)

	require.NoError(t, f.relay.Deliver(context.Background(), "s", "bob", f.seal(t, "s", "hi")))
	assert.Len(t, bob.Frames(), 1)
	assert.Equal(t, 1, sink.calls)
}

func TestDeliver_PersistsSanitizedText(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "s", "alice", true)
	require.NoError(t, f.relay.Deliver(context.Background(), "s", "bob", f.seal(t, "s", `<script>alert("x")</script>`)))

	recs, err := f.mem.Recent(context.Background(), "alice", "bob", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;", recs[0].Text)
	assert.NotEmpty(t, recs[0].ID)
	assert.Equal(t, f.at, recs[0].Timestamp)
}

func TestDeliver_PreservesOrderPerRecipient(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "s", "alice", true)
	bob := f.connect(t, "r", "bob", true)

	for i := 0; i < 20; i++ {
		require.NoError(t, f.relay.Deliver(context.Background(), "s", "bob", f.seal(t, "s", fmt.Sprint(i))))
	}
	frames := bob.Frames()
	require.Len(t, frames, 20)
	for i, fr := range frames {
		assert.Equal(t, fmt.Sprint(i), f.open(t, "r", fr.EncryptedMessage))
	}
}

func TestDeliver_UnbindDuringDeliveryIsSafe(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "s", "alice", true)
	f.connect(t, "r", "bob", true)
	env := f.seal(t, "s", "race")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = f.relay.Deliver(context.Background(), "s", "bob", env)
		}
	}()
	go func() {
		defer wg.Done()
		f.reg.Unbind("r")
	}()
	wg.Wait()
}

func TestHistory_ReplaysLatestWithCallerKey(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "a", "alice", true)
	f.connect(t, "b", "bob", true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.at = f.at.Add(time.Second)
		require.NoError(t, f.relay.Deliver(ctx, "a", "bob", f.seal(t, "a", fmt.Sprintf("m%d <i>", i))))
	}

	entries, err := f.relay.History(ctx, "b", "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3, "limit is capped")
	for i, e := range entries {
		assert.Equal(t, "alice", e.From)
		assert.Equal(t, "bob", e.To)
		assert.Equal(t, fmt.Sprintf("m%d <i>", i+2), f.open(t, "b", e.EncryptedMessage))
	}

	entries, err = f.relay.History(ctx, "b", "alice", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m4 <i>", f.open(t, "b", entries[0].EncryptedMessage))
}

func TestHistory_RequiresKey(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "a", "alice", false)
	_, err := f.relay.History(context.Background(), "a", "bob", 0)
	require.ErrorIs(t, err, domain.ErrKeyNotReady)
	_, err = f.relay.History(context.Background(), "ghost", "bob", 0)
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestHistory_DisabledWithoutStore(t *testing.T) {
	reg := session.NewRegistry()
	relay := message.New(reg, nil, log.NewDiscard().GetLogger("relay"))
	p := &fakePeer{id: "a"}
	_, err := reg.Bind(p, "alice")
	require.NoError(t, err)
	k, err := crypto.NewSymmetricKey()
	require.NoError(t, err)
	require.NoError(t, reg.SetSymmetricKey("a", k))

	entries, err := relay.History(context.Background(), "a", "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
