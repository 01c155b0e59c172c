package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrCrypto is returned when key material or ciphertext cannot be used.
	ErrCrypto = errors.New("crypto: operation failed")

	// ErrMalformedEnvelope is returned when an envelope cannot be parsed. It
	// wraps ErrCrypto.
	ErrMalformedEnvelope = fmt.Errorf("%w: malformed envelope", ErrCrypto)
)
