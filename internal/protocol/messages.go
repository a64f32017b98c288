package protocol

import (
	"time"

	"github.com/manpreetbhatti/codetogether/internal/change"
	"github.com/manpreetbhatti/codetogether/internal/presence"
)

// JoinRequest asks to join a room as a participant.
type JoinRequest struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// EditRequest carries one edit batch computed against the sender's copy.
type EditRequest struct {
	RoomID string        `json:"roomId" validate:"required"`
	UserID string        `json:"userId"`
	Edits  []change.Edit `json:"edits" validate:"required,min=1"`
}

// CursorRequest reports the sender's caret offset.
type CursorRequest struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId"`
	Position *int   `json:"position" validate:"required,min=0"`
}

// SaveRequest replaces the room's text with the sender's full copy.
type SaveRequest struct {
	RoomID         string  `json:"roomId" validate:"required"`
	UserID         string  `json:"userId"`
	Content        *string `json:"content" validate:"required"`
	CursorPosition int     `json:"cursorPosition" validate:"min=0"`
}

// RoomState is sent privately to a participant that joined.
type RoomState struct {
	Content  string          `json:"content"`
	Language string          `json:"language,omitempty"`
	Users    []presence.User `json:"users"`
}

// UserJoined announces a new participant to the rest of the room.
type UserJoined struct {
	UserID string `json:"userId"`
	Color  string `json:"color"`
}

// UserLeft announces a departed participant.
type UserLeft struct {
	UserID string `json:"userId"`
}

// PresenceUpdate carries the full roster. Receivers replace their roster.
type PresenceUpdate struct {
	Users []presence.User `json:"users"`
}

// EditBroadcast relays an accepted edit batch.
type EditBroadcast struct {
	Edits    []change.Edit `json:"edits"`
	SenderID string        `json:"senderId"`
}

// CursorBroadcast relays a participant's caret.
type CursorBroadcast struct {
	UserID   string `json:"userId"`
	Position int    `json:"position"`
	Color    string `json:"color"`
}

// Saved acknowledges a durable save.
type Saved struct {
	Timestamp      time.Time `json:"timestamp"`
	UserID         string    `json:"userId"`
	CursorPosition int       `json:"cursorPosition"`
}

// Error is sent only to the connection whose request failed.
type Error struct {
	Message string `json:"message"`
}
