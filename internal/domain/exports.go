package domain

import (
	interfaces "securechat/internal/domain/interfaces"
	types "securechat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username     = types.Username
	Fingerprint  = types.Fingerprint
	ConnID       = types.ConnID
	User         = types.User
	Frame        = types.Frame
	HistoryEntry = types.HistoryEntry
	ChatRecord   = types.ChatRecord
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	CredentialStore = interfaces.CredentialStore
	MessageSink     = interfaces.MessageSink
	HistoryStore    = interfaces.HistoryStore
	Peer            = interfaces.Peer
	LockoutGuard    = interfaces.LockoutGuard
	Authenticator   = interfaces.Authenticator
)

// Frame type names, re-exported for compact imports.
const (
	FrameSignup       = types.FrameSignup
	FrameLogin        = types.FrameLogin
	FrameKeyExchange  = types.FrameKeyExchange
	FrameChat         = types.FrameChat
	FrameHistory      = types.FrameHistory
	FrameError        = types.FrameError
	FrameSuccess      = types.FrameSuccess
	FrameLoginSuccess = types.FrameLoginSuccess
)
