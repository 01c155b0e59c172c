package interfaces

import (
	"context"

	domaintypes "securechat/internal/domain/types"
)

// Peer is the outbound side of one live connection.
type Peer interface {
	ID() domaintypes.ConnID
	// Send queues a frame for ordered delivery on the connection. It must not
	// block on the network.
	Send(frame domaintypes.Frame) error
}

// LockoutGuard tracks authentication failures per identity.
type LockoutGuard interface {
	RecordFailure(username domaintypes.Username)
	IsLocked(username domaintypes.Username) bool
	ClearFailures(username domaintypes.Username)
}

// Authenticator verifies and registers credentials.
type Authenticator interface {
	// Available returns ErrUserExists when username is taken.
	Available(ctx context.Context, username domaintypes.Username) error
	Signup(ctx context.Context, username domaintypes.Username, password string) error
	Login(ctx context.Context, username domaintypes.Username, password string) error
	Peers(ctx context.Context, except domaintypes.Username) ([]domaintypes.Username, error)
}
