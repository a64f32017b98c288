package session

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/manpreetbhatti/codetogether/internal/room"
)

// Conn is one client connection as seen by the Manager. A connection may join
// several rooms, each under its own participant id.
type Conn struct {
	ID string

	sink room.Sink

	// mu is held for the whole of a room operation issued by this connection,
	// so Leave never interleaves with a join or edit in flight. It is taken
	// before any document lock.
	mu     sync.Mutex
	rooms  map[string]string
	closed bool
}

// NewConn creates a connection whose outbound frames go to sink.
func NewConn(id string, sink room.Sink) *Conn {
	return &Conn{
		ID:    id,
		sink:  sink,
		rooms: make(map[string]string),
	}
}

// Rooms returns the ids of the rooms this connection has joined.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := lo.Keys(c.rooms)
	sort.Strings(ids)
	return ids
}

// ParticipantID returns the id this connection joined roomID with.
func (c *Conn) ParticipantID(roomID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.rooms[roomID]
	return id, ok
}

// Closed reports whether Leave has run for this connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
