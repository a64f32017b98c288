// Package sqlite implements the room store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manpreetbhatti/codetogether/internal/db"
)

// Database is a SQLite-backed db.Database.
type Database struct {
	db *sql.DB
}

// New opens or creates the database file at path.
func New(path string) (*Database, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas in the DSN run on every pooled connection.
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := createTables(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Database{db: conn}, nil
}

func createTables(conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'javascript',
		password_hash TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_created_at ON rooms(created_at DESC);
	`

	_, err := conn.Exec(schema)
	return err
}

// Close closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateRoom stores a new room.
func (d *Database) CreateRoom(ctx context.Context, room *db.Room) error {
	now := time.Now().UTC()
	if room.Language == "" {
		room.Language = db.DefaultLanguage
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, language, password_hash, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, room.ID, room.Name, room.Language, room.PasswordHash, room.Content, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%s: %w", room.ID, db.ErrRoomAlreadyExists)
		}
		return fmt.Errorf("insert room %s: %w", room.ID, err)
	}

	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

// FindRoom returns the room with the given id.
func (d *Database) FindRoom(ctx context.Context, id string) (*db.Room, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, name, language, password_hash, content, created_at, updated_at
		FROM rooms WHERE id = ?
	`, id)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find room %s: %w", id, err)
	}
	return room, nil
}

// ListRooms returns rooms newest first.
func (d *Database) ListRooms(ctx context.Context, limit, offset int) ([]*db.Room, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, language, password_hash, content, created_at, updated_at
		FROM rooms ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*db.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// CountRooms returns the number of rooms.
func (d *Database) CountRooms(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&count); err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return count, nil
}

// SaveContent overwrites the document text of a room.
func (d *Database) SaveContent(ctx context.Context, id, content string) error {
	res, err := d.db.ExecContext(ctx,
		"UPDATE rooms SET content = ?, updated_at = ? WHERE id = ?",
		content, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("save content of %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save content of %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(s scanner) (*db.Room, error) {
	var room db.Room
	err := s.Scan(
		&room.ID, &room.Name, &room.Language, &room.PasswordHash, &room.Content,
		&room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}
