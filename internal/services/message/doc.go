// Package message relays chat messages between authenticated sessions.
//
// The relay opens each message with the sender's session key and seals it
// again for every key-ready connection of the recipient, each with that
// connection's own key. A record of every accepted message is handed to
// the persistence sink, which never holds up delivery.
package message
