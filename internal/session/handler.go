package session

import (
	"context"
	"errors"

	"github.com/manpreetbhatti/codetogether/internal/db"
	"github.com/manpreetbhatti/codetogether/internal/protocol"
)

// Messages sent to clients in error frames.
const (
	MsgInvalid      = "Invalid message"
	MsgRoomNotFound = "Room not found"
	MsgNotJoined    = "Room not joined"
	MsgSaveFailed   = "Failed to save code"
	MsgJoinFailed   = "Failed to join room"
	MsgRateLimited  = "Too many messages"
)

// Rejection reasons recorded in metrics.
const (
	reasonInvalid   = "invalid"
	reasonNotFound  = "not_found"
	reasonNotJoined = "not_joined"
	reasonStore     = "store"

	// ReasonRateLimited marks frames dropped by the connection's rate limiter.
	ReasonRateLimited = "rate_limited"
)

// Handle decodes one inbound frame from conn and runs the matching room
// operation. Failures are reported to conn alone as an error frame; the
// returned error is for logging.
func (m *Manager) Handle(ctx context.Context, conn *Conn, raw []byte) error {
	req, err := protocol.Decode(raw)
	if err != nil {
		m.logger.Warnf("conn %s: %v", conn.ID, err)
		m.Reject(conn, reasonInvalid, MsgInvalid)
		return err
	}

	switch r := req.(type) {
	case *protocol.JoinRequest:
		err = m.Join(ctx, conn, r.RoomID, r.UserID)
	case *protocol.EditRequest:
		err = m.Edit(conn, r.RoomID, r.Edits)
	case *protocol.CursorRequest:
		err = m.Cursor(conn, r.RoomID, *r.Position)
	case *protocol.SaveRequest:
		err = m.Save(conn, r.RoomID, *r.Content, r.CursorPosition)
	}

	switch {
	case err == nil:
	case errors.Is(err, db.ErrRoomNotFound):
		m.logger.Warnf("conn %s: %v", conn.ID, err)
		m.Reject(conn, reasonNotFound, MsgRoomNotFound)
	case errors.Is(err, ErrNotJoined):
		m.logger.Warnf("conn %s: %v", conn.ID, err)
		m.Reject(conn, reasonNotJoined, MsgNotJoined)
	case errors.Is(err, ErrConnClosed):
		m.logger.Debugf("conn %s: %v", conn.ID, err)
	default:
		m.logger.Errorf("conn %s: %v", conn.ID, err)
		m.Reject(conn, reasonStore, MsgJoinFailed)
	}
	return err
}

// Reject sends an error frame with message to conn and counts it under reason.
func (m *Manager) Reject(conn *Conn, reason, message string) {
	m.metrics.AddMessageRejected(reason)
	m.send(conn.sink, protocol.TypeError, protocol.Error{Message: message})
}
