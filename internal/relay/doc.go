// Package relay is a WebSocket client for the SecureChat relay.
//
// A Client signs up or logs in, performs the hybrid key exchange with the
// public key the relay sends after authentication, and then sends and
// receives chat messages sealed with the negotiated AES-256 key.
//
// Supported operations include:
//   - Registering an account and logging in.
//   - Establishing the session key.
//   - Sending messages to a user.
//   - Receiving relayed messages.
//   - Replaying recent history with a peer.
//
// Every blocking call accepts a context for cancellation and deadlines.
// Error frames from the relay are returned as *ServerError.
package relay
