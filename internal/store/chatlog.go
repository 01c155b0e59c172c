package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"securechat/internal/domain"
)

// ChatLogSink appends each record to a plain-text log named after the two
// participants and the UTC day, e.g. alice_bob_2026-01-31.txt.
type ChatLogSink struct {
	dir string
	mu  sync.Mutex
}

// NewChatLogSink returns a sink writing under dir, creating it if needed.
func NewChatLogSink(dir string) (*ChatLogSink, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create chat log dir: %w", err)
	}
	return &ChatLogSink{dir: dir}, nil
}

// Append writes one line for rec.
func (s *ChatLogSink) Append(_ context.Context, rec domain.ChatRecord) error {
	path, err := s.pathFor(rec)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("[%s] %s: %s\n", rec.Timestamp.UTC().Format("15:04:05"), rec.From, rec.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendFile(path, []byte(line), 0o600)
}

func (s *ChatLogSink) pathFor(rec domain.ChatRecord) (string, error) {
	if !validUsername(rec.From) || !validUsername(rec.To) {
		return "", fmt.Errorf("store: invalid chat log participants %q, %q", rec.From, rec.To)
	}
	a, b := rec.From.String(), rec.To.String()
	if b < a {
		a, b = b, a
	}
	name := fmt.Sprintf("%s_%s_%s.txt", a, b, rec.Timestamp.UTC().Format("2006-01-02"))
	if filepath.Base(name) != name {
		return "", fmt.Errorf("store: invalid chat log name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Compile-time assertion that ChatLogSink implements domain.MessageSink.
var _ domain.MessageSink = (*ChatLogSink)(nil)
