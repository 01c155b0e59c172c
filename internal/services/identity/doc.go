// Package identity registers and authenticates relay users.
//
// Passwords are hashed with bcrypt. Login consults the lockout guard before
// the credential store, and an unknown user is indistinguishable from a
// wrong password.
package identity
