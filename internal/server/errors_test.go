package server

import (
	"errors"
	"fmt"
	"testing"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol"
	"securechat/internal/services/identity"
)

func TestClientMessage(t *testing.T) {
	cases := []struct {
		frame string
		err   error
		want  string
	}{
		{domain.FrameSignup, fmt.Errorf("%w: signup frame", domain.ErrValidation), msgCredsRequired},
		{domain.FrameChat, domain.ErrValidation, msgFieldsRequired},
		{domain.FrameSignup, identity.ErrInvalidUsername, msgInvalidUsername},
		{domain.FrameSignup, domain.ErrUserExists, msgUserExists},
		{domain.FrameLogin, domain.ErrAlreadyBound, msgAlreadyAuthed},
		{domain.FrameLogin, domain.ErrLockedOut, msgLocked},
		{domain.FrameLogin, domain.ErrInvalidCredentials, msgInvalidCreds},
		{domain.FrameKeyExchange, crypto.ErrCrypto, msgKeyExchangeFail},
		{domain.FrameKeyExchange, domain.ErrAlreadyKeyed, msgAlreadyKeyed},
		{domain.FrameChat, fmt.Errorf("%w: %w", domain.ErrDecryption, crypto.ErrMalformedEnvelope), msgDecryptFail},
		{domain.FrameChat, domain.ErrKeyNotReady, msgKeyNotReady},
		{domain.FrameChat, domain.ErrNotAuthenticated, msgNotAuthenticated},
		{"invalid", protocol.ErrMalformedFrame, msgInvalidFormat},
		{"teleport", errUnknownType, msgUnknownType},
		{domain.FrameLogin, errors.New("sqlite: disk I/O error"), msgInternal},
	}
	for _, tc := range cases {
		if got := clientMessage(tc.frame, tc.err); got != tc.want {
			t.Fatalf("clientMessage(%s, %v) = %q, want %q", tc.frame, tc.err, got, tc.want)
		}
	}
}

func TestConnStateString(t *testing.T) {
	if stateKeyExchanged.String() != "KeyExchanged" || connState(9).String() != "connState(9)" {
		t.Fatal("unexpected connState names")
	}
}
