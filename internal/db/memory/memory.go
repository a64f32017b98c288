// Package memory implements the room store in process memory. Rooms do not
// survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/samber/lo"

	"github.com/manpreetbhatti/codetogether/internal/db"
)

type roomRecord struct {
	*db.Room
	Seq uint64
}

// DB is an in-memory db.Database.
type DB struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

// New returns a new in-memory database.
func New() (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &DB{db: memDB}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return nil
}

// CreateRoom stores a new room.
func (d *DB) CreateRoom(_ context.Context, room *db.Room) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tblRooms, "id", room.ID)
	if err != nil {
		return fmt.Errorf("find room by id: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%s: %w", room.ID, db.ErrRoomAlreadyExists)
	}

	now := time.Now().UTC()
	if room.Language == "" {
		room.Language = db.DefaultLanguage
	}
	room.CreatedAt = now
	room.UpdatedAt = now

	record := &roomRecord{Room: room.DeepCopy(), Seq: d.seq.Add(1)}
	if err := txn.Insert(tblRooms, record); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	txn.Commit()

	return nil
}

// FindRoom returns the room with the given id.
func (d *DB) FindRoom(_ context.Context, id string) (*db.Room, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblRooms, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find room by id: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}

	return raw.(*roomRecord).DeepCopy(), nil
}

// ListRooms returns rooms newest first.
func (d *DB) ListRooms(_ context.Context, limit, offset int) ([]*db.Room, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblRooms, "seq")
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}

	var rooms []*db.Room
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		rooms = append([]*db.Room{raw.(*roomRecord).DeepCopy()}, rooms...)
	}

	if offset >= len(rooms) {
		return nil, nil
	}
	return lo.Subset(rooms, offset, uint(limit)), nil
}

// CountRooms returns the number of rooms.
func (d *DB) CountRooms(_ context.Context) (int, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblRooms, "id")
	if err != nil {
		return 0, fmt.Errorf("fetch rooms: %w", err)
	}

	count := 0
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		count++
	}
	return count, nil
}

// SaveContent overwrites the document text of a room.
func (d *DB) SaveContent(_ context.Context, id, content string) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblRooms, "id", id)
	if err != nil {
		return fmt.Errorf("find room by id: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}

	existing := raw.(*roomRecord)
	updated := &roomRecord{Room: existing.DeepCopy(), Seq: existing.Seq}
	updated.Content = content
	updated.UpdatedAt = time.Now().UTC()

	if err := txn.Insert(tblRooms, updated); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	txn.Commit()

	return nil
}
