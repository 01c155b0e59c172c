package relay

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol"
	"securechat/internal/util/memzero"
)

var (
	// ErrClosed is returned once the connection to the relay is gone.
	ErrClosed = errors.New("relay: connection closed")

	// ErrNoServerKey is returned by ExchangeKey before authentication.
	ErrNoServerKey = errors.New("relay: no server public key; log in first")

	// ErrNoSessionKey is returned when sending or receiving before
	// ExchangeKey.
	ErrNoSessionKey = errors.New("relay: key exchange not completed")
)

// ServerError is an error frame sent by the relay.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "relay: " + e.Message }

// Message is a decrypted chat message.
type Message struct {
	From domain.Username
	To   domain.Username
	Text string
	At   time.Time
}

// Options configures Dial.
type Options struct {
	// InsecureSkipVerify disables TLS certificate verification, for relays
	// using a self-signed certificate.
	InsecureSkipVerify bool

	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration
}

// Client is a connection to the relay. Calls are not safe for concurrent
// use, except Close.
type Client struct {
	ws *websocket.Conn

	in      chan domain.Frame
	readErr error
	done    chan struct{}
	quit    chan struct{}
	pending []domain.Frame

	writeMu   sync.Mutex
	closeOnce sync.Once

	username    domain.Username
	serverKey   *rsa.PublicKey
	fingerprint domain.Fingerprint
	key         []byte
}

// Dial connects to the relay WebSocket endpoint at url, for example
// "wss://localhost:8080/ws".
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if d.HandshakeTimeout == 0 {
		d.HandshakeTimeout = 15 * time.Second
	}
	if opts.InsecureSkipVerify {
		d.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	ws, resp, err := d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("relay dial %s: %w", url, err)
	}
	c := &Client{
		ws:   ws,
		in:   make(chan domain.Frame, 64),
		done: make(chan struct{}),
		quit: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		f, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		select {
		case c.in <- f:
		case <-c.quit:
			return
		}
	}
}

// Close closes the connection. The relay drops the session and its key.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
		close(c.quit)
	})
	return err
}

// Username returns the authenticated identity.
func (c *Client) Username() domain.Username { return c.username }

// Fingerprint returns the fingerprint of the relay's connection key.
func (c *Client) Fingerprint() domain.Fingerprint { return c.fingerprint }

// SendFrame writes a raw frame.
func (c *Client) SendFrame(f domain.Frame) error {
	b, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Next returns the next frame from the relay, in arrival order.
func (c *Client) Next(ctx context.Context) (domain.Frame, error) {
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f, nil
	}
	select {
	case f := <-c.in:
		return f, nil
	case <-c.done:
		// Frames read before the connection dropped are still delivered.
		select {
		case f := <-c.in:
			return f, nil
		default:
		}
		if c.readErr != nil {
			return domain.Frame{}, fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
		return domain.Frame{}, ErrClosed
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	}
}

// await returns the first frame whose type is in types, or the first error
// frame. Chat frames that arrive meanwhile are kept for Receive.
func (c *Client) await(ctx context.Context, types ...string) (domain.Frame, error) {
	var held []domain.Frame
	defer func() { c.pending = append(held, c.pending...) }()
	for {
		f, err := c.Next(ctx)
		if err != nil {
			return domain.Frame{}, err
		}
		if f.Type == domain.FrameError {
			return domain.Frame{}, &ServerError{Message: f.Message}
		}
		for _, t := range types {
			if f.Type == t {
				return f, nil
			}
		}
		held = append(held, f)
	}
}

func (c *Client) roundTrip(ctx context.Context, req domain.Frame, types ...string) (domain.Frame, error) {
	if err := c.SendFrame(req); err != nil {
		return domain.Frame{}, err
	}
	return c.await(ctx, types...)
}

// Signup registers username and authenticates the connection.
func (c *Client) Signup(ctx context.Context, username domain.Username, password string) error {
	f, err := c.roundTrip(ctx, protocol.Signup(username, password), domain.FrameSuccess)
	if err != nil {
		return err
	}
	return c.authenticated(username, f)
}

// Login authenticates the connection and returns the other registered
// users.
func (c *Client) Login(ctx context.Context, username domain.Username, password string) ([]domain.Username, error) {
	f, err := c.roundTrip(ctx, protocol.Login(username, password), domain.FrameLoginSuccess)
	if err != nil {
		return nil, err
	}
	if err := c.authenticated(username, f); err != nil {
		return nil, err
	}
	users := make([]domain.Username, 0, len(f.Users))
	for _, u := range f.Users {
		users = append(users, domain.Username(u))
	}
	return users, nil
}

func (c *Client) authenticated(username domain.Username, f domain.Frame) error {
	pub, err := crypto.ParsePublicKeyPEM(f.PublicKey)
	if err != nil {
		return fmt.Errorf("relay: server public key: %w", err)
	}
	if fp := crypto.PublicKeyFingerprint(pub); f.Fingerprint != "" && f.Fingerprint != fp {
		return fmt.Errorf("relay: server key fingerprint mismatch: got %s, computed %s", f.Fingerprint, fp)
	}
	c.username = username
	c.serverKey = pub
	c.fingerprint = domain.Fingerprint(crypto.PublicKeyFingerprint(pub))
	return nil
}

// ExchangeKey generates a session key, wraps it with the relay's connection
// key and waits for the relay to confirm it.
func (c *Client) ExchangeKey(ctx context.Context) error {
	if c.serverKey == nil {
		return ErrNoServerKey
	}
	key, err := crypto.NewSymmetricKey()
	if err != nil {
		return err
	}
	wrapped, err := crypto.WrapSymmetricKey(key, c.serverKey)
	if err != nil {
		memzero.Zero(key)
		return err
	}
	if _, err := c.roundTrip(ctx, protocol.KeyExchange(wrapped), domain.FrameSuccess); err != nil {
		memzero.Zero(key)
		return err
	}
	c.key = key
	return nil
}

// Send seals text and sends it to recipient. The relay does not acknowledge
// chat frames; a rejected message arrives later as an error from Receive.
func (c *Client) Send(recipient domain.Username, text string) error {
	if c.key == nil {
		return ErrNoSessionKey
	}
	envelope, err := crypto.Encrypt([]byte(text), c.key)
	if err != nil {
		return err
	}
	return c.SendFrame(protocol.Chat(recipient, envelope))
}

// Receive returns the next relayed message.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	if c.key == nil {
		return Message{}, ErrNoSessionKey
	}
	f, err := c.await(ctx, domain.FrameChat)
	if err != nil {
		return Message{}, err
	}
	text, err := crypto.Decrypt(f.EncryptedMessage, c.key)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From: domain.Username(f.From),
		To:   c.username,
		Text: string(text),
		At:   protocol.Time(f.Timestamp),
	}, nil
}

// History returns up to limit recent messages exchanged with peer, oldest
// first. A limit of zero lets the relay choose.
func (c *Client) History(ctx context.Context, peer domain.Username, limit int) ([]Message, error) {
	if c.key == nil {
		return nil, ErrNoSessionKey
	}
	f, err := c.roundTrip(ctx, protocol.HistoryRequest(peer, limit), domain.FrameHistory)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(f.Messages))
	for _, e := range f.Messages {
		text, err := crypto.Decrypt(e.EncryptedMessage, c.key)
		if err != nil {
			return nil, err
		}
		out = append(out, Message{
			From: domain.Username(e.From),
			To:   domain.Username(e.To),
			Text: string(text),
			At:   protocol.Time(e.Timestamp),
		})
	}
	return out, nil
}
