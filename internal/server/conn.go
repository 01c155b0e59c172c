package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/op/go-logging.v1"

	"securechat/internal/domain"
	"securechat/internal/instrument"
	"securechat/internal/protocol"
	"securechat/internal/services/handshake"
)

// ErrQueueFull is returned by Send when the outbound queue is full.
var ErrQueueFull = errors.New("server: outbound queue full")

type connState int

const (
	stateAwaitingAuth connState = iota
	stateAuthenticated
	stateKeyExchanged
)

func (s connState) String() string {
	switch s {
	case stateAwaitingAuth:
		return "AwaitingAuth"
	case stateAuthenticated:
		return "Authenticated"
	case stateKeyExchanged:
		return "KeyExchanged"
	default:
		return fmt.Sprintf("connState(%d)", int(s))
	}
}

// conn is one client connection. It implements domain.Peer.
type conn struct {
	s   *Server
	log *logging.Logger

	id domain.ConnID
	ws *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	out       chan domain.Frame
	closeOnce sync.Once

	// Owned by the reader goroutine.
	state    connState
	username domain.Username
	keypair  *handshake.Keypair
}

func newConn(s *Server, id domain.ConnID, ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		s:      s,
		log:    s.logBackend.GetLogger(fmt.Sprintf("conn:%s", id)),
		id:     id,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan domain.Frame, s.cfg.SendQueueLength),
	}
}

// ID implements domain.Peer.
func (c *conn) ID() domain.ConnID { return c.id }

// Send implements domain.Peer. It never blocks: a closed connection returns
// domain.ErrPeerClosed and a full queue drops the frame.
func (c *conn) Send(f domain.Frame) error {
	select {
	case <-c.ctx.Done():
		return domain.ErrPeerClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	default:
		instrument.Dropped("queue_full")
		return ErrQueueFull
	}
}

// close tears the connection down. It is safe to call from any goroutine,
// any number of times.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close()
		c.s.deps.Sessions.Unbind(c.id)
		c.s.onClosedConn(c)
		c.log.Debugf("Closed.")
	})
}

func (c *conn) writer() {
	ticker := time.NewTicker(c.s.cfg.PingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.out:
			b, err := protocol.Encode(f)
			if err != nil {
				c.log.Errorf("Failed to encode %s frame: %v", f.Type, err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debugf("Write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debugf("Ping failed: %v", err)
				return
			}
		}
	}
}

func (c *conn) reader() {
	defer func() {
		c.close()
		// Unbind again in case authentication finished after close ran.
		c.s.deps.Sessions.Unbind(c.id)
		c.keypair.Destroy()
	}()

	handshakeTimer := time.AfterFunc(c.s.cfg.HandshakeTimeout, func() {
		if !c.s.deps.Sessions.IsKeyReady(c.id) {
			c.log.Noticef("Handshake timeout, closing.")
			c.close()
		}
	})
	defer handshakeTimer.Stop()

	idle := 2 * c.s.cfg.PingInterval
	c.ws.SetReadLimit(c.s.cfg.MaxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(idle))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		mt, b, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugf("Read failed: %v", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		c.onMessage(b)
		if c.state == stateKeyExchanged {
			handshakeTimer.Stop()
		}
	}
}

// onMessage handles one inbound frame. A panic is contained to the frame.
func (c *conn) onMessage(b []byte) {
	frameType := "invalid"
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("Panic handling %s frame: %v", frameType, r)
			c.reply(protocol.Error(msgInternal))
		}
	}()

	f, err := protocol.Decode(b)
	if err != nil {
		instrument.Incoming(frameType)
		c.replyError(frameType, err)
		return
	}
	frameType = f.Type
	if !protocol.Known(f.Type) {
		instrument.Incoming("unknown")
		c.replyError(f.Type, errUnknownType)
		return
	}
	instrument.Incoming(f.Type)

	if err := c.handle(f); err != nil {
		c.replyError(f.Type, err)
	}
}

func (c *conn) reply(f domain.Frame) {
	if err := c.Send(f); err != nil {
		c.log.Debugf("Reply %s dropped: %v", f.Type, err)
	}
}

func (c *conn) replyError(frameType string, err error) {
	msg := clientMessage(frameType, err)
	if msg == msgInternal {
		c.log.Errorf("Failed to handle %s frame: %v", frameType, err)
	} else {
		c.log.Debugf("Rejected %s frame: %v", frameType, err)
	}
	c.reply(protocol.Error(msg))
}

var _ domain.Peer = (*conn)(nil)
