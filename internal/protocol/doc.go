// Package protocol encodes and decodes the JSON frames exchanged with
// clients over a WebSocket connection.
//
// Every frame is a single JSON object with a "type" field naming the
// operation. Decode only checks that the payload is a well-formed frame;
// Validate checks that the fields required by its type are present.
// The constructors build the frames the relay and its clients send.
package protocol
