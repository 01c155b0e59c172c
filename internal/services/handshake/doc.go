// Package handshake runs the hybrid key exchange for one connection.
//
// After authentication the server generates a fresh RSA keypair for the
// connection and sends the client its public key. The client wraps a random
// AES-256 key with it, and the server unwraps that key and stores it on the
// connection's session.
package handshake
