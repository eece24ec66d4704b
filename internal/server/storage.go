package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"whiteboard/internal/board"
)

// SQLStore persists room moves in a SQLite database, one JSON blob per
// room. It implements MoveStore.
type SQLStore struct {
	db *sql.DB
}

// OpenStore prepares a SQLite database at the given path and ensures the
// schema exists.
func OpenStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS boards (
			room_id TEXT PRIMARY KEY,
			moves TEXT NOT NULL,
			saved_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_boards_saved ON boards(saved_at DESC);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	return nil
}

// LoadMoves returns the persisted moves for a room, or nil when the room
// has never been saved.
func (s *SQLStore) LoadMoves(roomID string) ([]board.Move, error) {
	var raw string
	err := s.db.QueryRow(`SELECT moves FROM boards WHERE room_id = ?`, roomID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load moves: %w", err)
	}

	var moves []board.Move
	if err := json.Unmarshal([]byte(raw), &moves); err != nil {
		return nil, fmt.Errorf("decode moves: %w", err)
	}
	return moves, nil
}

// SaveMoves replaces the persisted moves for a room.
func (s *SQLStore) SaveMoves(roomID string, moves []board.Move) error {
	raw, err := json.Marshal(moves)
	if err != nil {
		return fmt.Errorf("encode moves: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO boards (room_id, moves, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET moves = excluded.moves, saved_at = excluded.saved_at`,
		roomID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save moves: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
