package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS slots (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore 将 slot 保存在 SQLite 的 slots 表中。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）SQLite 文件并建表。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("keystore: sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("keystore: open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keystore: ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keystore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close 关闭数据库句柄。
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, slot string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE name = ?`, slot).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keystore: get slot: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, slot, value string) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		slot, value, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("keystore: set slot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, slot string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, slot); err != nil {
		return fmt.Errorf("keystore: delete slot: %w", err)
	}
	return nil
}
