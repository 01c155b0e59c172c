package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/katzenpost/katzenpost/core/worker"
	"gopkg.in/op/go-logging.v1"

	"securechat/internal/domain"
	"securechat/internal/instrument"
	"securechat/internal/log"
	"securechat/internal/services/handshake"
	"securechat/internal/services/message"
	"securechat/internal/services/session"
	)

// Deps are the services a Server drives.
type Deps struct {
	Auth      domain.Authenticator
	Sessions  *session.Registry
	Handshake *handshake.Service
	Relay     *message.Service
}

// Server is the WebSocket relay listener.
type Server struct {
	sync.Mutex
	worker.Worker

	cfg  Config
	deps Deps

	logBackend *log.Backend
	log        *logging.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	conns    map[domain.ConnID]*conn
	halted   bool
}

// New returns a Server. It does not listen until Serve is called; Handler
// can be mounted on any http.Server.
func New(cfg Config, deps Deps, logBackend *log.Backend) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:        cfg,
		deps:       deps,
		logBackend: logBackend,
		log:        logBackend.GetLogger("server"),
		conns:      make(map[domain.ConnID]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
		},
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler: the WebSocket endpoint at /ws and, when
// configured, static files at /.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	if s.cfg.PublicDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.PublicDir)))
	}
	return mux
}

// Serve accepts connections on l until Halt is called. When tlsConfig is
// non-nil the listener is wrapped in TLS.
func (s *Server) Serve(l net.Listener, tlsConfig *tls.Config) error {
	if tlsConfig != nil {
		l = tls.NewListener(l, tlsConfig)
	}
	s.log.Noticef("Listening on: %v", l.Addr())
	err := s.httpSrv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Halt stops accepting connections, closes every open connection and waits
// for their goroutines to return. It is safe to call more than once.
func (s *Server) Halt() {
	s.Lock()
	if s.halted {
		s.Unlock()
		return
	}
	s.halted = true
	s.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Warningf("HTTP shutdown: %v", err)
	}

	s.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.Unlock()
	for _, c := range conns {
		c.close()
	}

	s.Worker.Halt()
	s.log.Noticef("Stopped.")
}

// NumConns returns the number of open connections.
func (s *Server) NumConns() int {
	s.Lock()
	defer s.Unlock()
	return len(s.conns)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("Upgrade from %v failed: %v", r.RemoteAddr, err)
		return
	}

	id := domain.ConnID(uuid.NewString())
	c := newConn(s, id, ws)

	s.Lock()
	if s.halted {
		s.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[id] = c
	instrument.ConnOpened()
	c.log.Debugf("Accepted connection from %v", r.RemoteAddr)
	s.Go(c.writer)
	s.Go(c.reader)
	s.Unlock()
}

func (s *Server) onClosedConn(c *conn) {
	s.Lock()
	delete(s.conns, c.id)
	s.Unlock()
	instrument.ConnClosed()
}
