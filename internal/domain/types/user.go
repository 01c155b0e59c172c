package types

import "time"

// User is a credential store entry.
type User struct {
	Username     Username  `json:"username" cbor:"username"`
	PasswordHash []byte    `json:"password_hash" cbor:"password_hash"`
	CreatedAt    time.Time `json:"created_at" cbor:"created_at"`
}
