// Package postgres implements the room store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/manpreetbhatti/codetogether/internal/db"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT 'javascript',
	password_hash TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rooms_created_at ON rooms(created_at DESC);
`

const roomColumns = "id, name, language, password_hash, content, created_at, updated_at"

// DB is a PostgreSQL-backed db.Database.
type DB struct {
	pool *pgxpool.Pool
}

// Dial connects to the database at url and bootstraps the schema.
func Dial(ctx context.Context, url string) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// CreateRoom stores a new room.
func (d *DB) CreateRoom(ctx context.Context, room *db.Room) error {
	now := time.Now().UTC()
	if room.Language == "" {
		room.Language = db.DefaultLanguage
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, room.ID, room.Name, room.Language, room.PasswordHash, room.Content, now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", room.ID, db.ErrRoomAlreadyExists)
		}
		return fmt.Errorf("insert room %s: %w", room.ID, err)
	}

	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

// FindRoom returns the room with the given id.
func (d *DB) FindRoom(ctx context.Context, id string) (*db.Room, error) {
	row := d.pool.QueryRow(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = $1", id)

	room, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find room %s: %w", id, err)
	}
	return room, nil
}

// ListRooms returns rooms newest first.
func (d *DB) ListRooms(ctx context.Context, limit, offset int) ([]*db.Room, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT "+roomColumns+" FROM rooms ORDER BY created_at DESC, seq DESC LIMIT $1 OFFSET $2",
		limit, offset,
	)
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
func (d *DB) CountRooms(ctx context.Context) (int, error) {
	var count int
	if err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM rooms").Scan(&count); err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return count, nil
}

// SaveContent overwrites the document text of a room.
func (d *DB) SaveContent(ctx context.Context, id, content string) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE rooms SET content = $1, updated_at = $2 WHERE id = $3",
		content, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("save content of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}
	return nil
}

func scanRoom(row pgx.Row) (*db.Room, error) {
	var room db.Room
	err := row.Scan(
		&room.ID, &room.Name, &room.Language, &room.PasswordHash, &room.Content,
		&room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}
