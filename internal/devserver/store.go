// ABOUTME: SQLite persistence for dev server accounts, conversations, and messages
// ABOUTME: Uses modernc.org/sqlite with automatic schema creation

package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/finbot-client/internal/api"
)

// Store errors
var (
	ErrNotFound      = errors.New("not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
)

// User is a stored account.
type User struct {
	ID           int64
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is a stored conversation owned by one user.
type Conversation struct {
	ID            int64
	UserID        int64
	Title         string
	Archived      bool
	MessageCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessageAt *time.Time
}

// Message is a stored chat message.
type Message struct {
	ID             int64
	ConversationID int64
	Type           api.Role
	Content        string
	Metadata       *api.Metadata
	CreatedAt      time.Time
}

// Store persists dev server state in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens (creating if needed) the database at path.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "devserver.store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title           TEXT NOT NULL,
			is_archived     INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			last_message_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			message_type    TEXT NOT NULL,
			content         TEXT NOT NULL,
			metadata_json   TEXT,
			created_at      TEXT NOT NULL,

			CHECK (message_type IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS revoked_tokens (
			jti        TEXT PRIMARY KEY,
			expires_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

// CreateUser inserts u and sets its ID.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "UNIQUE") && strings.Contains(msg, "users.email"):
			return ErrEmailTaken
		case strings.Contains(msg, "UNIQUE") && strings.Contains(msg, "users.username"):
			return ErrUsernameTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	u.ID = id
	return nil
}

const userColumns = `id, username, email, first_name, last_name, password_hash, created_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing user created_at: %w", err)
	}
	return &u, nil
}

// UserByEmail looks up a user by email, case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`, email)
	return scanUser(row)
}

// UserByID looks up a user by ID.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

const conversationColumns = `
	c.id, c.user_id, c.title, c.is_archived, c.created_at, c.updated_at, c.last_message_at,
	(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var created, updated string
	var last sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Archived, &created, &updated, &last, &c.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing conversation created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parsing conversation updated_at: %w", err)
	}
	if last.Valid {
		t, err := parseTime(last.String)
		if err != nil {
			return nil, fmt.Errorf("parsing conversation last_message_at: %w", err)
		}
		c.LastMessageAt = &t
	}
	return &c, nil
}

// CreateConversation inserts c and sets its ID.
func (s *Store) CreateConversation(ctx context.Context, c *Conversation) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, title, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.UserID, c.Title, c.Archived, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading conversation id: %w", err)
	}
	c.ID = id
	return nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.user_id = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// Conversation returns a conversation owned by userID.
func (s *Store) Conversation(ctx context.Context, userID, id int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.id = ? AND c.user_id = ?
	`, id, userID)
	return scanConversation(row)
}

// ConversationPatch holds optional conversation changes.
type ConversationPatch struct {
	Title    *string
	Archived *bool
}

// UpdateConversation applies patch and returns the updated conversation.
func (s *Store) UpdateConversation(ctx context.Context, userID, id int64, patch ConversationPatch, now time.Time) (*Conversation, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET title = COALESCE(?, title),
		    is_archived = COALESCE(?, is_archived),
		    updated_at = ?
		WHERE id = ? AND user_id = ?
	`, patch.Title, patch.Archived, formatTime(now), id, userID)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Conversation(ctx, userID, id)
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage inserts m, sets its ID and bumps the conversation's activity time.
func (s *Store) AddMessage(ctx context.Context, m *Message) error {
	var meta sql.NullString
	if m.Metadata != nil {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := formatTime(m.CreatedAt)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, message_type, content, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ConversationID, string(m.Type), m.Content, meta, created)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ?, updated_at = ? WHERE id = ?`,
		created, created, m.ConversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}
	m.ID = id
	return nil
}

// Messages returns a conversation's messages, oldest first.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, message_type, content, metadata_json, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var typ, created string
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &typ, &m.Content, &meta, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Type = api.Role(typ)
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		if meta.Valid {
			m.Metadata = &api.Metadata{}
			if err := json.Unmarshal([]byte(meta.String), m.Metadata); err != nil {
				s.logger.Warn("dropping undecodable metadata", "message_id", m.ID, "error", err)
				m.Metadata = nil
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RevokeToken blacklists a token ID until it would have expired anyway.
func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, formatTime(expiresAt))
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// TokenRevoked reports whether jti has been revoked.
func (s *Store) TokenRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE jti = ?`, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking revoked token: %w", err)
	}
	return true, nil
}

// PurgeRevoked deletes revocations that expired before now.
func (s *Store) PurgeRevoked(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	return res.RowsAffected()
}
