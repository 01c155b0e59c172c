// Package session tracks which identity is bound to each live connection and
// the symmetric key negotiated on it.
//
// A Session exists from a successful signup or login until the connection
// closes. The key is set at most once and wiped when the session is unbound.
package session
