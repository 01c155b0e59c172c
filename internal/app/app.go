package app

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"securechat/internal/discovery"
	"securechat/internal/instrument"
)

// App is a running relay: the wired services, the WebSocket listener and
// the optional metrics endpoint and mDNS advertisement.
type App struct {
	cfg  *Config
	wire *Wire
	log  *logging.Logger

	listener   net.Listener
	metricsSrv *http.Server
	advertiser *discovery.Advertiser

	fatalErrCh chan error
	haltedCh   chan struct{}
	haltOnce   sync.Once
}

// New wires a relay from cfg and starts serving.
func New(cfg *Config) (*App, error) {
	w, err := NewWire(cfg, nil)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:        cfg,
		wire:       w,
		log:        w.LogBackend.GetLogger("app"),
		fatalErrCh: make(chan error, 1),
		haltedCh:   make(chan struct{}),
	}
	if err := a.start(); err != nil {
		a.Halt()
		return nil, err
	}
	return a, nil
}

func (a *App) start() error {
	var tlsConfig *tls.Config
	if a.cfg.Server.TLSCert != "" {
		cert, err := tls.LoadX509KeyPair(a.cfg.Server.TLSCert, a.cfg.Server.TLSKey)
		if err != nil {
			return fmt.Errorf("app: load TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	l, err := net.Listen("tcp", a.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("app: listen on %v: %w", a.cfg.Server.Address, err)
	}
	a.listener = l
	go func() {
		if err := a.wire.Server.Serve(l, tlsConfig); err != nil {
			a.fatal(err)
		}
	}()

	if a.cfg.Server.MetricsAddress != "" {
		a.startMetrics()
	}

	if a.cfg.Discovery.MDNS {
		port := l.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Publish(a.cfg.Discovery.Instance, port, tlsConfig != nil)
		if err != nil {
			// The relay stays reachable by address.
			a.log.Warningf("mDNS advertisement failed: %v", err)
		} else {
			a.advertiser = adv
			a.log.Noticef("Advertising '%v' on port %d", a.cfg.Discovery.Instance, port)
		}
	}
	return nil
}

func (a *App) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", instrument.Handler())
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Server.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.log.Noticef("Metrics on: %v", a.cfg.Server.MetricsAddress)
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("Metrics server: %v", err)
		}
	}()
}

func (a *App) fatal(err error) {
	select {
	case a.fatalErrCh <- err:
	default:
	}
}

// Addr returns the address of the WebSocket listener.
func (a *App) Addr() net.Addr {
	return a.listener.Addr()
}

// Wire returns the relay's dependency graph.
func (a *App) Wire() *Wire {
	return a.wire
}

// Wait blocks until the relay is halted or its listener fails.
func (a *App) Wait() error {
	select {
	case <-a.haltedCh:
		return nil
	case err := <-a.fatalErrCh:
		a.log.Errorf("Listener failed: %v", err)
		a.Halt()
		return err
	}
}

// RotateLog reopens the log file.
func (a *App) RotateLog() {
	if err := a.wire.LogBackend.Rotate(); err != nil {
		a.log.Errorf("Failed to rotate log file: %v", err)
		return
	}
	a.log.Noticef("Rotated log file.")
}

// Halt gracefully stops the relay. It is safe to call more than once.
func (a *App) Halt() {
	a.haltOnce.Do(a.halt)
}

func (a *App) halt() {
	a.log.Noticef("Starting graceful shutdown.")
	if a.advertiser != nil {
		a.advertiser.Shutdown()
	}
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Close()
	}
	a.wire.Server.Halt()
	a.log.Noticef("Shutdown complete.")
	a.wire.Close()
	close(a.haltedCh)
}
