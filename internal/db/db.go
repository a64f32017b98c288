// Package db defines the durable room store: room metadata plus the last saved
// document text. Drivers live in subpackages.
package db

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRoomNotFound is returned when a room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomAlreadyExists is returned when creating a room whose id is taken.
	ErrRoomAlreadyExists = errors.New("room already exists")
)

// DefaultLanguage is the language tag of rooms created without one.
const DefaultLanguage = "javascript"

// Room is the stored form of a room.
type Room struct {
	ID           string
	Name         string
	Language     string
	PasswordHash string
	Content      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeepCopy returns a copy of the room.
func (r *Room) DeepCopy() *Room {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Database is implemented by every driver. Writes are last-write-wins.
type Database interface {
	// CreateRoom stores a new room. CreatedAt and UpdatedAt are set by the driver.
	CreateRoom(ctx context.Context, room *Room) error

	// FindRoom returns the room with the given id or ErrRoomNotFound.
	FindRoom(ctx context.Context, id string) (*Room, error)

	// ListRooms returns rooms newest first.
	ListRooms(ctx context.Context, limit, offset int) ([]*Room, error)

	// CountRooms returns the number of stored rooms.
	CountRooms(ctx context.Context) (int, error)

	// SaveContent overwrites the document text of an existing room.
	SaveContent(ctx context.Context, id, content string) error

	// Close releases the driver's resources.
	Close() error
}
