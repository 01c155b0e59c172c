package server

import "time"

const (
	// DefaultHandshakeTimeout bounds the time from accept to a completed key
	// exchange.
	DefaultHandshakeTimeout = 120 * time.Second
	// DefaultPingInterval is the keepalive ping period.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxFrameSize limits inbound frames, in bytes.
	DefaultMaxFrameSize = 64 * 1024
	// DefaultSendQueueLength is the outbound queue length per connection.
	DefaultSendQueueLength = 64

	writeTimeout = 10 * time.Second
)

// Config holds the connection handling parameters.
type Config struct {
	// HandshakeTimeout closes connections that are not key-ready in time.
	HandshakeTimeout time.Duration

	// PingInterval is the keepalive ping period. A connection is closed
	// when no pong or frame arrives for two intervals.
	PingInterval time.Duration

	// MaxFrameSize is the largest inbound frame accepted, in bytes.
	MaxFrameSize int64

	// SendQueueLength is the outbound queue length per connection. Frames
	// sent to a full queue are dropped.
	SendQueueLength int

	// PublicDir, if set, is served as static files at "/".
	PublicDir string
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.SendQueueLength <= 0 {
		c.SendQueueLength = DefaultSendQueueLength
	}
}
