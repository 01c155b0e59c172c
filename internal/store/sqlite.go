package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"securechat/internal/domain"
)

// SQLStore keeps users and chat history in a SQLite database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (or creates) the SQLite database at path.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &SQLStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		timestamp_unix_nano INTEGER NOT NULL,
		text TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation, timestamp_unix_nano);
	`
	_, err := s.db.Exec(query)
	return err
}

// FindByUsername returns the user named username.
func (s *SQLStore) FindByUsername(ctx context.Context, username domain.Username) (domain.User, bool, error) {
	var (
		hash      []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash, created_at FROM users WHERE username = ?`,
		username.String(),
	).Scan(&hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("store: find user: %w", err)
	}
	return domain.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Unix(0, createdAt).UTC(),
	}, true, nil
}

// CreateUser adds a user; a taken username returns domain.ErrUserExists.
func (s *SQLStore) CreateUser(ctx context.Context, username domain.Username, passwordHash []byte) error {
	if !validUsername(username) {
		return domain.ErrValidation
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username.String(), passwordHash, time.Now().UnixNano(),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return domain.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// ListUsernames returns every username in sorted order.
func (s *SQLStore) ListUsernames(ctx context.Context) ([]domain.Username, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var out []domain.Username
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, domain.Username(name))
	}
	return out, rows.Err()
}

// Append stores rec.
func (s *SQLStore) Append(ctx context.Context, rec domain.ChatRecord) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO messages (id, conversation, sender, recipient, timestamp_unix_nano, text)
	VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		conversationKey(rec.From, rec.To),
		rec.From.String(),
		rec.To.String(),
		rec.Timestamp.UnixNano(),
		rec.Text,
	)
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the latest records between a and b, oldest
// first.
func (s *SQLStore) Recent(ctx context.Context, a, b domain.Username, limit int) ([]domain.ChatRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, sender, recipient, timestamp_unix_nano, text
	FROM messages
	WHERE conversation = ?
	ORDER BY timestamp_unix_nano DESC, rowid DESC
	LIMIT ?`,
		conversationKey(a, b), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load history: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatRecord
	for rows.Next() {
		var (
			rec      domain.ChatRecord
			from, to string
			ts       int64
		)
		if err := rows.Scan(&rec.ID, &from, &to, &ts, &rec.Text); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		rec.From, rec.To = domain.Username(from), domain.Username(to)
		rec.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Compile-time assertions that SQLStore implements the store interfaces.
var (
	_ domain.CredentialStore = (*SQLStore)(nil)
	_ domain.MessageSink     = (*SQLStore)(nil)
	_ domain.HistoryStore    = (*SQLStore)(nil)
)
