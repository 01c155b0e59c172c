// Package lockout guards login against password guessing.
//
// Each identity moves through Clear → Accumulating → Locked → Clear. A
// record is created on the first failure, locked once it reaches the
// threshold, and purged lazily when the lockout window has passed without a
// new failure. Every failure refreshes the window, so a guesser cannot wait
// out a lock while still guessing. State is in memory only.
package lockout
