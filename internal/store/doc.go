// Package store provides persistence adapters for the relay.
//
// It contains concrete implementations of the domain storage interfaces:
//   - BoltStore: users and chat history in a bbolt file, CBOR encoded.
//   - SQLStore: users and chat history in SQLite.
//   - UserFileStore: users in a JSON file, for small deployments.
//   - MemoryStore: everything in memory, for tests and ephemeral relays.
//   - ChatLogSink: per-conversation daily text logs.
//   - MultiSink and AsyncSink: fan-out and fire-and-forget wrappers around
//     any domain.MessageSink.
//
// All stores are safe for concurrent use.
package store
