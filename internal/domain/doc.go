// Package domain defines core data models and interfaces shared across the relay.
// It contains plain types (wire/state), contracts (interfaces) and the sentinel
// errors every layer classifies failures with.
package domain
