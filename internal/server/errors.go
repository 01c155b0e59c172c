package server

import (
	"errors"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol"
	"securechat/internal/services/identity"
)

// Client-facing messages.
const (
	msgSignupOK         = "Signup successful."
	msgLoginOK          = "Login successful."
	msgKeyExchangeOK    = "Key exchange complete."
	msgCredsRequired    = "Username and password are required."
	msgFieldsRequired   = "Missing required fields."
	msgInvalidUsername  = "Invalid username."
	msgPasswordTooLong  = "Password too long."
	msgUserExists       = "User already exists."
	msgAlreadyAuthed    = "Already authenticated."
	msgLocked           = "Account temporarily locked. Try again later."
	msgInvalidCreds     = "Invalid username or password."
	msgNotAuthenticated = "Not authenticated."
	msgKeyNotReady      = "Key exchange not completed."
	msgKeyExchangeFail  = "Key exchange failed."
	msgAlreadyKeyed     = "Key already established."
	msgDecryptFail      = "Message decryption failed."
	msgUnknownType      = "Unknown message type."
	msgInvalidFormat    = "Invalid message format."
	msgInternal         = "Internal server error."
)

// clientMessage maps an error from handling a frame of type frameType to
// the fixed text reported to the client. Anything unrecognized is an
// internal error, so store or library errors never reach the client.
func clientMessage(frameType string, err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformedFrame):
		return msgInvalidFormat
	case errors.Is(err, identity.ErrInvalidUsername):
		return msgInvalidUsername
	case errors.Is(err, identity.ErrPasswordTooLong):
		return msgPasswordTooLong
	case errors.Is(err, domain.ErrValidation):
		if frameType == domain.FrameSignup || frameType == domain.FrameLogin {
			return msgCredsRequired
		}
		return msgFieldsRequired
	case errors.Is(err, domain.ErrUserExists):
		return msgUserExists
	case errors.Is(err, domain.ErrAlreadyBound):
		return msgAlreadyAuthed
	case errors.Is(err, domain.ErrLockedOut):
		return msgLocked
	case errors.Is(err, domain.ErrInvalidCredentials):
		return msgInvalidCreds
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrUnknownConnection):
		return msgNotAuthenticated
	case errors.Is(err, domain.ErrKeyNotReady):
		return msgKeyNotReady
	case errors.Is(err, domain.ErrAlreadyKeyed):
		return msgAlreadyKeyed
	case errors.Is(err, domain.ErrDecryption):
		return msgDecryptFail
	case errors.Is(err, crypto.ErrCrypto):
		if frameType == domain.FrameKeyExchange {
			return msgKeyExchangeFail
		}
		return msgDecryptFail
	case errors.Is(err, errUnknownType):
		return msgUnknownType
	default:
		return msgInternal
	}
}

var errUnknownType = errors.New("server: unknown frame type")
