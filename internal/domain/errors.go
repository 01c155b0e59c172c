package domain

import "errors"

var (
	// ErrValidation is returned when a frame lacks required fields.
	ErrValidation = errors.New("missing required fields")

	// ErrInvalidCredentials is returned for an unknown user or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrLockedOut is returned when an identity has too many recent failures.
	ErrLockedOut = errors.New("identity temporarily locked out")

	// ErrUserExists is returned by signup for a taken username.
	ErrUserExists = errors.New("user already exists")

	// ErrAlreadyBound is returned when a connection already has an identity.
	ErrAlreadyBound = errors.New("connection already authenticated")

	// ErrUnknownConnection is returned for a connection with no session.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrAlreadyKeyed is returned when a session key is already set.
	ErrAlreadyKeyed = errors.New("symmetric key already established")

	// ErrNotAuthenticated is returned when a frame needs an authenticated
	// connection.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrKeyNotReady is returned when a frame needs a negotiated key.
	ErrKeyNotReady = errors.New("key exchange not completed")

	// ErrDecryption is returned when a sender's envelope cannot be opened.
	ErrDecryption = errors.New("message decryption failed")

	// ErrPeerClosed is returned when sending to a connection that has gone away.
	ErrPeerClosed = errors.New("peer connection closed")
)
