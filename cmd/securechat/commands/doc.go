// Package commands defines the securechat CLI.
//
// Commands
//
//   - signup   Register an account on the relay
//   - users    List the other registered users
//   - send     Encrypt and send a message to a peer
//   - listen   Print incoming messages until interrupted
//   - history  Print recent messages exchanged with a peer
//
// # Implementation
//
// Every command opens its own connection: it dials the relay, logs in (or
// signs up), wraps a fresh session key with the relay's per-connection
// public key and only then runs. The relay is found with --relay or, with
// --mdns, by browsing the local network.
package commands
