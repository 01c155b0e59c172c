package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"securechat/internal/domain"
)

// ErrMalformedFrame is returned for payloads that are not a JSON frame.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

// Decode parses one frame.
func Decode(b []byte) (domain.Frame, error) {
	var f domain.Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return domain.Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return domain.Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}

// Encode renders f as JSON.
func Encode(f domain.Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Validate checks the fields required by f.Type. Unknown types pass; the
// caller decides how to reject them.
func Validate(f domain.Frame) error {
	var ok bool
	switch f.Type {
	case domain.FrameSignup, domain.FrameLogin:
		ok = f.Username != "" && f.Password != ""
	case domain.FrameKeyExchange:
		ok = f.EncryptedKey != ""
	case domain.FrameChat:
		ok = f.Recipient != "" && f.EncryptedMessage != ""
	case domain.FrameHistory:
		ok = f.Peer != "" && f.Limit >= 0
	default:
		ok = true
	}
	if !ok {
		return fmt.Errorf("%w: %s frame", domain.ErrValidation, f.Type)
	}
	return nil
}

// Known reports whether t is a frame type clients may send.
func Known(t string) bool {
	switch t {
	case domain.FrameSignup, domain.FrameLogin, domain.FrameKeyExchange, domain.FrameChat, domain.FrameHistory:
		return true
	}
	return false
}

// Timestamp converts t to the wire representation, Unix milliseconds.
func Timestamp(t time.Time) int64 { return t.UnixMilli() }

// Time converts a wire timestamp back to a time.Time.
func Time(ms int64) time.Time { return time.UnixMilli(ms) }

// Error builds an error frame.
func Error(message string) domain.Frame {
	return domain.Frame{Type: domain.FrameError, Message: message}
}

// Success builds a success frame.
func Success(message string) domain.Frame {
	return domain.Frame{Type: domain.FrameSuccess, Message: message}
}

// SignupSuccess builds the reply to a signup, carrying the connection's
// public key.
func SignupSuccess(message, publicKeyPEM string, fingerprint domain.Fingerprint) domain.Frame {
	return domain.Frame{
		Type:        domain.FrameSuccess,
		Message:     message,
		PublicKey:   publicKeyPEM,
		Fingerprint: fingerprint.String(),
	}
}

// LoginSuccess builds the reply to a login.
func LoginSuccess(message string, users []domain.Username, publicKeyPEM string, fingerprint domain.Fingerprint) domain.Frame {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.String())
	}
	return domain.Frame{
		Type:        domain.FrameLoginSuccess,
		Message:     message,
		Users:       names,
		PublicKey:   publicKeyPEM,
		Fingerprint: fingerprint.String(),
	}
}

// Relayed builds the chat frame delivered to a recipient.
func Relayed(from domain.Username, envelope string, at time.Time) domain.Frame {
	return domain.Frame{
		Type:             domain.FrameChat,
		From:             from.String(),
		EncryptedMessage: envelope,
		Timestamp:        Timestamp(at),
	}
}

// HistoryReply builds the reply to a history request.
func HistoryReply(peer domain.Username, entries []domain.HistoryEntry) domain.Frame {
	return domain.Frame{Type: domain.FrameHistory, Peer: peer.String(), Messages: entries}
}

// Signup builds a client signup request.
func Signup(username domain.Username, password string) domain.Frame {
	return domain.Frame{Type: domain.FrameSignup, Username: username.String(), Password: password}
}

// Login builds a client login request.
func Login(username domain.Username, password string) domain.Frame {
	return domain.Frame{Type: domain.FrameLogin, Username: username.String(), Password: password}
}

// KeyExchange builds a client key exchange request.
func KeyExchange(wrappedKey string) domain.Frame {
	return domain.Frame{Type: domain.FrameKeyExchange, EncryptedKey: wrappedKey}
}

// Chat builds a client chat request.
func Chat(recipient domain.Username, envelope string) domain.Frame {
	return domain.Frame{Type: domain.FrameChat, Recipient: recipient.String(), EncryptedMessage: envelope}
}

// HistoryRequest builds a client history request. A limit of zero lets the
// relay choose.
func HistoryRequest(peer domain.Username, limit int) domain.Frame {
	return domain.Frame{Type: domain.FrameHistory, Peer: peer.String(), Limit: limit}
}
