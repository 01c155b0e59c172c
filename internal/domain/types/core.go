package types

// Username represents a registered identity. It is the unit of
// authentication and addressing.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// ConnID uniquely identifies one live client connection.
type ConnID string

// String returns the string form of the connection identifier.
func (id ConnID) String() string { return string(id) }
