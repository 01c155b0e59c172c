// Package app loads the relay configuration and wires the stores, services
// and listener into a running relay.
package app
