// Package discovery advertises and locates relays on the local network over
// multicast DNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceName is the mDNS service type relays register under.
	ServiceName = "_securechat._tcp"
	// Domain is the network domain, "local" is standard for mDNS.
	Domain = "local."

	// DefaultBrowseTimeout bounds Find when the context has no deadline.
	DefaultBrowseTimeout = 5 * time.Second

	txtVersion = "txtv=0"
	txtTLS     = "tls="
	txtPath    = "path="
	wsPath     = "/ws"
)

// ErrNotFound is returned by Find when no matching relay answers in time.
var ErrNotFound = errors.New("discovery: relay not found")

// Advertiser keeps a relay registered until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
}

// Publish advertises a relay instance listening on port.
func Publish(instance string, port int, tls bool) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, ServiceName, Domain, port, txtRecords(tls), nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: could not register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
}

func txtRecords(tls bool) []string {
	t := "0"
	if tls {
		t = "1"
	}
	return []string{txtVersion, txtTLS + t, txtPath + wsPath}
}

// Relay is one discovered relay.
type Relay struct {
	Instance string
	Host     string
	Port     int
	TLS      bool
	Path     string
}

// URL returns the WebSocket URL of the relay.
func (r Relay) URL() string {
	scheme := "ws"
	if r.TLS {
		scheme = "wss"
	}
	path := r.Path
	if path == "" {
		path = wsPath
	}
	return scheme + "://" + net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) + path
}

// Browse collects the relays that answer before ctx is done.
func Browse(ctx context.Context) ([]Relay, error) {
	var relays []Relay
	err := browse(ctx, func(r Relay) bool {
		relays = append(relays, r)
		return false
	})
	return relays, err
}

// Find returns the relay advertised as instance. An empty instance matches
// the first relay to answer.
func Find(ctx context.Context, instance string) (Relay, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}

	var found *Relay
	err := browse(ctx, func(r Relay) bool {
		if instance != "" && r.Instance != instance {
			return false
		}
		found = &r
		return true
	})
	if err != nil {
		return Relay{}, err
	}
	if found == nil {
		return Relay{}, fmt.Errorf("%w: '%s'", ErrNotFound, instance)
	}
	return *found, nil
}

// browse feeds relays to fn until fn returns true or ctx is done.
func browse(ctx context.Context, fn func(Relay) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: failed to initialize mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceName, Domain, entries); err != nil {
		return fmt.Errorf("discovery: failed to browse for services: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			r, ok := relayFromEntry(entry)
			if !ok {
				continue
			}
			if fn(r) {
				return nil
			}
		}
	}
}

func relayFromEntry(entry *zeroconf.ServiceEntry) (Relay, bool) {
	if entry == nil {
		return Relay{}, false
	}

	// Prefer a non-loopback, global unicast address.
	var ip net.IP
	for _, addr := range entry.AddrIPv4 {
		if addr.IsGlobalUnicast() && !addr.IsLoopback() {
			ip = addr
			break
		}
	}
	if ip == nil && len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0]
	}
	if ip == nil && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0]
	}
	if ip == nil {
		return Relay{}, false
	}

	r := Relay{
		Instance: entry.Instance,
		Host:     ip.String(),
		Port:     entry.Port,
		Path:     wsPath,
	}
	for _, txt := range entry.Text {
		switch {
		case strings.HasPrefix(txt, txtTLS):
			r.TLS = strings.TrimPrefix(txt, txtTLS) == "1"
		case strings.HasPrefix(txt, txtPath):
			r.Path = strings.TrimPrefix(txt, txtPath)
		}
	}
	return r, true
}
