// Package redis implements the room store on Redis. Each room is a hash and
// a sorted set indexes rooms by creation time.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manpreetbhatti/codetogether/internal/db"
)

const (
	roomKeyPrefix = "codetogether:room:"
	roomIndexKey  = "codetogether:rooms"
)

// DB is a Redis-backed db.Database.
type DB struct {
	rdb *redis.Client
}

// Dial connects to the Redis server at addr.
func Dial(ctx context.Context, addr string) (*DB, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return &DB{rdb: rdb}, nil
}

func roomKey(id string) string {
	return roomKeyPrefix + id
}

// Close closes the client.
func (d *DB) Close() error {
	return d.rdb.Close()
}

// CreateRoom stores a new room.
func (d *DB) CreateRoom(ctx context.Context, room *db.Room) error {
	now := time.Now().UTC()
	if room.Language == "" {
		room.Language = db.DefaultLanguage
	}

	key := roomKey(room.ID)
	created, err := d.rdb.HSetNX(ctx, key, "id", room.ID).Result()
	if err != nil {
		return fmt.Errorf("insert room %s: %w", room.ID, err)
	}
	if !created {
		return fmt.Errorf("%s: %w", room.ID, db.ErrRoomAlreadyExists)
	}

	_, err = d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"name", room.Name,
			"language", room.Language,
			"passwordHash", room.PasswordHash,
			"content", room.Content,
			"createdAt", now.Format(time.RFC3339Nano),
			"updatedAt", now.Format(time.RFC3339Nano),
		)
		pipe.ZAdd(ctx, roomIndexKey, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: room.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert room %s: %w", room.ID, err)
	}

	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

// FindRoom returns the room with the given id.
func (d *DB) FindRoom(ctx context.Context, id string) (*db.Room, error) {
	fields, err := d.rdb.HGetAll(ctx, roomKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("find room %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}

	return decodeRoom(fields)
}

// ListRooms returns rooms newest first.
func (d *DB) ListRooms(ctx context.Context, limit, offset int) ([]*db.Room, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := d.rdb.ZRevRange(ctx, roomIndexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]*db.Room, 0, len(ids))
	for _, id := range ids {
		room, err := d.FindRoom(ctx, id)
		if errors.Is(err, db.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// CountRooms returns the number of rooms.
func (d *DB) CountRooms(ctx context.Context) (int, error) {
	n, err := d.rdb.ZCard(ctx, roomIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return int(n), nil
}

// SaveContent overwrites the document text of a room.
func (d *DB) SaveContent(ctx context.Context, id, content string) error {
	key := roomKey(id)
	n, err := d.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("save content of %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}

	err = d.rdb.HSet(ctx, key,
		"content", content,
		"updatedAt", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("save content of %s: %w", id, err)
	}
	return nil
}

func decodeRoom(fields map[string]string) (*db.Room, error) {
	room := &db.Room{
		ID:           fields["id"],
		Name:         fields["name"],
		Language:     fields["language"],
		PasswordHash: fields["passwordHash"],
		Content:      fields["content"],
	}

	var err error
	if room.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["createdAt"]); err != nil {
		return nil, fmt.Errorf("parse createdAt of %s: %w", room.ID, err)
	}
	if room.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updatedAt"]); err != nil {
		return nil, fmt.Errorf("parse updatedAt of %s: %w", room.ID, err)
	}
	return room, nil
}
