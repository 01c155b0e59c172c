package types

import "time"

// Frame types understood by the relay.
const (
	FrameSignup       = "signup"
	FrameLogin        = "login"
	FrameKeyExchange  = "aes-key"
	FrameChat         = "chat"
	FrameHistory      = "history"
	FrameError        = "error"
	FrameSuccess      = "success"
	FrameLoginSuccess = "login-success"
)

// Frame is the wire-format JSON object exchanged over a connection. Only the
// fields relevant to Type are populated.
type Frame struct {
	Type string `json:"type"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	EncryptedKey string `json:"encryptedKey,omitempty"`

	Recipient        string `json:"recipient,omitempty"`
	From             string `json:"from,omitempty"`
	EncryptedMessage string `json:"encryptedMessage,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`

	Peer     string         `json:"peer,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Messages []HistoryEntry `json:"messages,omitempty"`

	Message     string   `json:"message,omitempty"`
	Users       []string `json:"users,omitempty"`
	PublicKey   string   `json:"publicKey,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// HistoryEntry is one replayed message, re-encrypted for the requester.
type HistoryEntry struct {
	From             string `json:"from"`
	To               string `json:"to"`
	Timestamp        int64  `json:"timestamp"`
	EncryptedMessage string `json:"encryptedMessage"`
}

// ChatRecord is the canonical persisted form of a relayed message. Text is
// already sanitized when a record is built.
type ChatRecord struct {
	ID        string    `json:"id" cbor:"id"`
	From      Username  `json:"from" cbor:"from"`
	To        Username  `json:"to" cbor:"to"`
	Timestamp time.Time `json:"timestamp" cbor:"timestamp"`
	Text      string    `json:"text" cbor:"text"`
}
