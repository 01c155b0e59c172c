package server

import (
	"fmt"

	"securechat/internal/domain"
	"securechat/internal/instrument"
	"securechat/internal/protocol"
)

// handle dispatches a decoded frame of a known type. The returned error is
// reported to the client through clientMessage.
func (c *conn) handle(f domain.Frame) error {
	if err := protocol.Validate(f); err != nil {
		return err
	}
	switch f.Type {
	case domain.FrameSignup:
		return c.onSignup(f)
	case domain.FrameLogin:
		return c.onLogin(f)
	case domain.FrameKeyExchange:
		return c.onKeyExchange(f)
	case domain.FrameChat:
		return c.onChat(f)
	case domain.FrameHistory:
		return c.onHistory(f)
	default:
		return errUnknownType
	}
}

func (c *conn) onSignup(f domain.Frame) error {
	username := domain.Username(f.Username)
	auth := c.s.deps.Auth

	if err := auth.Available(c.ctx, username); err != nil {
		return err
	}
	if c.state != stateAwaitingAuth {
		return domain.ErrAlreadyBound
	}
	if err := auth.Signup(c.ctx, username, f.Password); err != nil {
		return err
	}
	if err := c.authenticate(username); err != nil {
		return err
	}
	c.reply(protocol.SignupSuccess(msgSignupOK, c.keypair.PublicKeyPEM(), c.keypair.Fingerprint()))
	return nil
}

func (c *conn) onLogin(f domain.Frame) error {
	username := domain.Username(f.Username)
	auth := c.s.deps.Auth

	if err := auth.Login(c.ctx, username, f.Password); err != nil {
		return err
	}
	if c.state != stateAwaitingAuth {
		return domain.ErrAlreadyBound
	}
	peers, err := auth.Peers(c.ctx, username)
	if err != nil {
		return err
	}
	if err := c.authenticate(username); err != nil {
		return err
	}
	c.reply(protocol.LoginSuccess(msgLoginOK, peers, c.keypair.PublicKeyPEM(), c.keypair.Fingerprint()))
	return nil
}

// authenticate binds username to the connection and generates the
// connection's keypair.
func (c *conn) authenticate(username domain.Username) error {
	kp, err := c.s.deps.Handshake.NewKeypair()
	if err != nil {
		return err
	}
	if _, err := c.s.deps.Sessions.Bind(c, username); err != nil {
		kp.Destroy()
		return err
	}
	// close cancels the context before it unbinds, so a close that raced
	// with Bind is always seen here.
	if c.ctx.Err() != nil {
		c.s.deps.Sessions.Unbind(c.id)
		kp.Destroy()
		return domain.ErrPeerClosed
	}
	c.keypair = kp
	c.username = username
	c.state = stateAuthenticated
	c.log.Noticef("Authenticated as %s", username)
	return nil
}

func (c *conn) onKeyExchange(f domain.Frame) error {
	switch c.state {
	case stateAwaitingAuth:
		return domain.ErrNotAuthenticated
	case stateKeyExchanged:
		return domain.ErrAlreadyKeyed
	}
	if err := c.s.deps.Handshake.Establish(c.id, c.keypair, f.EncryptedKey); err != nil {
		instrument.KeyExchange(false)
		return err
	}
	instrument.KeyExchange(true)
	c.state = stateKeyExchanged
	c.log.Debugf("Key exchange complete.")
	c.reply(protocol.Success(msgKeyExchangeOK))
	return nil
}

func (c *conn) onChat(f domain.Frame) error {
	if err := c.requireKey(); err != nil {
		return err
	}
	return c.s.deps.Relay.Deliver(c.ctx, c.id, domain.Username(f.Recipient), f.EncryptedMessage)
}

func (c *conn) onHistory(f domain.Frame) error {
	if err := c.requireKey(); err != nil {
		return err
	}
	peer := domain.Username(f.Peer)
	entries, err := c.s.deps.Relay.History(c.ctx, c.id, peer, f.Limit)
	if err != nil {
		return fmt.Errorf("history with %s: %w", peer, err)
	}
	c.reply(protocol.HistoryReply(peer, entries))
	return nil
}

func (c *conn) requireKey() error {
	switch c.state {
	case stateAwaitingAuth:
		return domain.ErrNotAuthenticated
	case stateAuthenticated:
		return domain.ErrKeyNotReady
	}
	return nil
}
