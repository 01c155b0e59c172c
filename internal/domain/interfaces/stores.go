package interfaces

import (
	"context"

	domaintypes "securechat/internal/domain/types"
)

// CredentialStore persists registered users.
type CredentialStore interface {
	// FindByUsername returns the user and whether it exists.
	FindByUsername(ctx context.Context, username domaintypes.Username) (domaintypes.User, bool, error)
	// CreateUser stores a new user. An existing username yields
	// domain.ErrUserExists.
	CreateUser(ctx context.Context, username domaintypes.Username, passwordHash []byte) error
	// ListUsernames returns every registered username.
	ListUsernames(ctx context.Context) ([]domaintypes.Username, error)
}

// MessageSink is an append-only destination for relayed message records.
type MessageSink interface {
	Append(ctx context.Context, record domaintypes.ChatRecord) error
}

// HistoryStore serves the bounded recent-history replay.
type HistoryStore interface {
	// Recent returns up to limit of the newest records exchanged between a
	// and b, oldest first.
	Recent(ctx context.Context, a, b domaintypes.Username, limit int) ([]domaintypes.ChatRecord, error)
}
