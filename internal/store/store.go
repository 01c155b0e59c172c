package store

import (
	"errors"
	"strings"

	"securechat/internal/domain"
)

// ErrClosed is returned by a store or sink used after Close.
var ErrClosed = errors.New("store: closed")

// conversationKey names the conversation between a and b independent of
// direction.
func conversationKey(a, b domain.Username) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + "|" + y
}

// reverse reverses records in place.
func reverse(records []domain.ChatRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

func validUsername(u domain.Username) bool {
	return u != "" && !strings.ContainsAny(u.String(), "|/\\\x00")
}
