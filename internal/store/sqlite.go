package store

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

	"github.com/prologuebox/prologue/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS duos (
		user_id TEXT PRIMARY KEY,
		duo_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memories (
		user_id TEXT PRIMARY KEY,
		memories_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a device identity by its user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a device identity record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a device.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetDuo loads the canonical duo for a device.
// A slot holding JSON that no longer parses is treated as absent rather
// than failing the first page load.
func (s *SQLiteStore) GetDuo(ctx context.Context, userID string) (*domain.Duo, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT duo_json FROM duos WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan duo row: %w", err)
	}

	var duo domain.Duo
	if err := json.Unmarshal([]byte(raw), &duo); err != nil {
		slog.Warn("Stored duo is corrupt, treating as absent", "user_id", userID, "error", err)
		return nil, nil
	}
	return &duo, nil
}

// SaveDuo overwrites the canonical duo for a device.
func (s *SQLiteStore) SaveDuo(ctx context.Context, userID string, duo *domain.Duo) error {
	raw, err := json.Marshal(duo)
	if err != nil {
		return fmt.Errorf("marshal duo: %w", err)
	}

	query := `
	INSERT INTO duos (user_id, duo_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		duo_json = excluded.duo_json,
		updated_at = excluded.updated_at`

	if err := s.execWithRetry(ctx, query, userID, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("save duo: %w", err)
	}
	return nil
}

// GetMemories loads the memory sequence for a device, most recent first.
func (s *SQLiteStore) GetMemories(ctx context.Context, userID string) ([]domain.Memory, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT memories_json FROM memories WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Memory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan memories row: %w", err)
	}

	var memories []domain.Memory
	if err := json.Unmarshal([]byte(raw), &memories); err != nil {
		slog.Warn("Stored memories are corrupt, treating as absent", "user_id", userID, "error", err)
		return []domain.Memory{}, nil
	}
	return memories, nil
}

// SaveMemories overwrites the memory sequence for a device.
func (s *SQLiteStore) SaveMemories(ctx context.Context, userID string, memories []domain.Memory) error {
	raw, err := json.Marshal(memories)
	if err != nil {
		return fmt.Errorf("marshal memories: %w", err)
	}

	query := `
	INSERT INTO memories (user_id, memories_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		memories_json = excluded.memories_json,
		updated_at = excluded.updated_at`

	if err := s.execWithRetry(ctx, query, userID, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("save memories: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// execWithRetry runs a write statement, retrying with exponential backoff
// when SQLite reports the database as busy or locked.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}

		if isSQLiteConflict(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("Write failed with SQLITE_BUSY, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return err
}

// isSQLiteConflict checks for the two forms of SQLite concurrency error
// that warrant a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
