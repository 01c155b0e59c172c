package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"securechat/internal/domain"
	"securechat/internal/log"
	"securechat/internal/server"
	"securechat/internal/services/handshake"
	"securechat/internal/services/identity"
	"securechat/internal/services/lockout"
	"securechat/internal/services/message"
	"securechat/internal/services/session"
	"securechat/internal/store"
)

// Wire bundles the stores, services and listener of one relay.
type Wire struct {
	LogBackend *log.Backend

	Users   domain.CredentialStore
	History domain.HistoryStore
	Sink    *store.AsyncSink

	Lockout   *lockout.Guard
	Identity  *identity.Service
	Sessions  *session.Registry
	Handshake *handshake.Service
	Relay     *message.Service
	Server    *server.Server

	closers []io.Closer
}

// NewWire constructs the dependency graph from cfg. A nil logBackend
// creates one from cfg.Logging.
func NewWire(cfg *Config, logBackend *log.Backend) (*Wire, error) {
	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("app: create data dir: %w", err)
	}

	w := new(Wire)
	if logBackend == nil {
		b, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
		if err != nil {
			return nil, err
		}
		logBackend = b
		w.closers = append(w.closers, b)
	}
	w.LogBackend = logBackend

	sink, err := w.openStorage(cfg)
	if err != nil {
		w.Close()
		return nil, err
	}
	if cfg.Storage.ChatLogDir != "" {
		chatLog, err := store.NewChatLogSink(cfg.Storage.ChatLogDir)
		if err != nil {
			w.Close()
			return nil, err
		}
		sink = store.MultiSink{sink, chatLog}
	}
	w.Sink = store.NewAsyncSink(sink, cfg.Storage.SinkQueueLength, logBackend.GetLogger("store"))

	w.Lockout = lockout.New(
		lockout.WithMaxFailures(cfg.Auth.MaxFailures),
		lockout.WithWindow(cfg.Auth.lockoutWindow()),
	)
	w.Identity = identity.New(w.Users, w.Lockout, cfg.Auth.BcryptCost, logBackend.GetLogger("identity"))
	w.Sessions = session.NewRegistry()
	w.Handshake = handshake.New(w.Sessions, cfg.Server.RSABits)
	w.Relay = message.New(w.Sessions, w.Sink, logBackend.GetLogger("relay"),
		message.WithHistory(w.History, cfg.Storage.HistoryLimit),
		message.WithRecipients(w.Users),
	)
	w.Server = server.New(cfg.Server.serverConfig(), server.Deps{
		Auth:      w.Identity,
		Sessions:  w.Sessions,
		Handshake: w.Handshake,
		Relay:     w.Relay,
	}, logBackend)
	return w, nil
}

// openStorage sets Users and History and returns the sink that persists
// relayed records.
func (w *Wire) openStorage(cfg *Config) (domain.MessageSink, error) {
	switch cfg.Storage.Backend {
	case BackendBolt:
		s, err := store.NewBoltStore(cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, s)
		w.Users, w.History = s, s
		return s, nil
	case BackendSQLite:
		s, err := store.NewSQLStore(cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, s)
		w.Users, w.History = s, s
		return s, nil
	case BackendFile:
		mem := store.NewMemoryStore(store.DefaultMemoryHistory)
		w.Users, w.History = store.NewUserFileStore(cfg.Server.DataDir), mem
		return mem, nil
	case BackendMemory:
		mem := store.NewMemoryStore(store.DefaultMemoryHistory)
		w.Users, w.History = mem, mem
		return mem, nil
	default:
		return nil, fmt.Errorf("app: unknown storage backend '%v'", cfg.Storage.Backend)
	}
}

// Close flushes the persistence queue and releases the stores. The Server
// must already be halted.
func (w *Wire) Close() {
	if w.Sink != nil {
		w.Sink.Close()
	}
	// Reverse order, so the log backend closes last.
	for i := len(w.closers) - 1; i >= 0; i-- {
		_ = w.closers[i].Close()
	}
	w.closers = nil
}

func (sCfg *Server) serverConfig() server.Config {
	return server.Config{
		HandshakeTimeout: time.Duration(sCfg.HandshakeTimeout) * time.Millisecond,
		PingInterval:     time.Duration(sCfg.PingInterval) * time.Millisecond,
		MaxFrameSize:     int64(sCfg.MaxFrameSize),
		SendQueueLength:  sCfg.SendQueueLength,
		PublicDir:        sCfg.PublicDir,
	}
}

func (aCfg *Auth) lockoutWindow() time.Duration {
	return time.Duration(aCfg.LockoutWindow) * time.Millisecond
}
