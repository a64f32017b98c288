// Package session drives collaborative rooms: it joins connections to cached
// documents, applies and fans out edits, relays cursors, persists explicit
// saves and evicts rooms when their last member leaves.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/manpreetbhatti/codetogether/internal/change"
	"github.com/manpreetbhatti/codetogether/internal/db"
	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/metrics"
	"github.com/manpreetbhatti/codetogether/internal/presence"
	"github.com/manpreetbhatti/codetogether/internal/protocol"
	"github.com/manpreetbhatti/codetogether/internal/room"
)

var (
	// ErrNotJoined is returned for room operations from a connection that has
	// not joined the room.
	ErrNotJoined = errors.New("room not joined")

	// ErrConnClosed is returned when a connection that already left tries to join.
	ErrConnClosed = errors.New("connection closed")
)

// DefaultStoreTimeout bounds a single durable store call.
const DefaultStoreTimeout = 5 * time.Second

// Store is the part of the durable room store the Manager uses.
type Store interface {
	FindRoom(ctx context.Context, id string) (*db.Room, error)
	SaveContent(ctx context.Context, id, content string) error
}

// Options configures a Manager.
type Options struct {
	StoreTimeout  time.Duration
	FlushOnEvict  bool
	ReclaimColors bool
	Logger        logging.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Manager owns the document cache and the colour table and implements every
// room transition.
type Manager struct {
	cache   *room.Cache
	colors  *presence.ColorTable
	store   Store
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	storeTimeout time.Duration
	flushOnEvict bool

	saves sync.WaitGroup
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts Options) *Manager {
	m := &Manager{
		cache:        room.NewCache(),
		colors:       presence.NewColorTable(opts.ReclaimColors),
		store:        store,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
		storeTimeout: opts.StoreTimeout,
		flushOnEvict: opts.FlushOnEvict,
	}
	if m.logger == nil {
		m.logger = logging.New("session")
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.storeTimeout <= 0 {
		m.storeTimeout = DefaultStoreTimeout
	}
	return m
}

// Cache returns the document cache.
func (m *Manager) Cache() *room.Cache {
	return m.cache
}

// Colors returns the colour table.
func (m *Manager) Colors() *presence.ColorTable {
	return m.colors
}

// Join adds conn to roomID as participantID. The document is loaded from the
// store when the room is not cached. Joining a room twice from the same
// connection does nothing.
func (m *Manager) Join(ctx context.Context, conn *Conn, roomID, participantID string) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return ErrConnClosed
	}
	if _, ok := conn.rooms[roomID]; ok {
		m.logger.Debugf("conn %s already joined room %s", conn.ID, roomID)
		return nil
	}

	for {
		doc, ok := m.cache.Get(roomID)
		if !ok {
			stored, err := m.load(ctx, roomID)
			if err != nil {
				return err
			}
			doc = m.cache.GetOrCreate(roomID, stored.Language, stored.Content, m.now())
			m.metrics.SetRoomsActive(m.cache.Len())
		}

		doc.Lock()
		if doc.Evicted() {
			doc.Unlock()
			continue
		}

		if doc.Len() == 0 {
			m.logger.Infof("room %s opened", roomID)
		}

		color := m.colors.Acquire(participantID)
		doc.AddMember(&room.Member{
			ConnID:        conn.ID,
			ParticipantID: participantID,
			Color:         color,
			Sink:          conn.sink,
		})
		roster := doc.Roster()

		m.send(conn.sink, protocol.TypeRoomState, protocol.RoomState{
			Content:  doc.Content(),
			Language: doc.Language,
			Users:    roster,
		})
		m.broadcast(doc.MembersExcept(conn.ID), protocol.TypeUserJoined, protocol.UserJoined{
			UserID: participantID,
			Color:  color,
		})
		m.broadcast(doc.Members(), protocol.TypePresenceUpdate, protocol.PresenceUpdate{Users: roster})
		doc.Unlock()

		conn.rooms[roomID] = participantID
		m.metrics.AddParticipants(1)
		return nil
	}
}

func (m *Manager) load(ctx context.Context, roomID string) (*db.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	stored, err := m.store.FindRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return stored, nil
}

// joined returns the participant id and document of a room conn has joined.
// The caller must hold conn.mu.
func (m *Manager) joined(conn *Conn, roomID string) (string, *room.Document, error) {
	participantID, ok := conn.rooms[roomID]
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", roomID, ErrNotJoined)
	}

	doc, ok := m.cache.Get(roomID)
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", roomID, ErrNotJoined)
	}
	return participantID, doc, nil
}

// Edit applies an edit batch to roomID and relays it to every other member.
func (m *Manager) Edit(conn *Conn, roomID string, edits []change.Edit) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	participantID, doc, err := m.joined(conn, roomID)
	if err != nil {
		return err
	}

	doc.Lock()
	defer doc.Unlock()

	doc.ApplyEdits(edits, m.now())
	m.metrics.AddEditsApplied()

	m.broadcast(doc.MembersExcept(conn.ID), protocol.TypeEdit, protocol.EditBroadcast{
		Edits:    edits,
		SenderID: participantID,
	})
	return nil
}

// Cursor relays a cursor position to every other member of roomID.
func (m *Manager) Cursor(conn *Conn, roomID string, position int) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	participantID, doc, err := m.joined(conn, roomID)
	if err != nil {
		return err
	}

	doc.Lock()
	defer doc.Unlock()

	color := m.colors.ColorFor(participantID)
	if member, ok := doc.Member(conn.ID); ok {
		color = member.Color
	}

	m.broadcast(doc.MembersExcept(conn.ID), protocol.TypeCursor, protocol.CursorBroadcast{
		UserID:   participantID,
		Position: position,
		Color:    color,
	})
	return nil
}

// Save replaces the content of roomID and writes it to the store in the
// background. Every member is told once the write lands; on failure only the
// requester hears about it and the cached content stays replaced.
func (m *Manager) Save(conn *Conn, roomID, content string, cursorPosition int) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	participantID, doc, err := m.joined(conn, roomID)
	if err != nil {
		return err
	}

	doc.Lock()
	doc.Replace(content, m.now())
	doc.Unlock()

	m.saves.Add(1)
	go func() {
		defer m.saves.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
		defer cancel()

		if _, _, err := doc.Flush(ctx, m.store.SaveContent, nil); err != nil {
			m.logger.Warnf("save room %s by %s: %v", roomID, participantID, err)
			m.metrics.AddSave(metrics.ResultFailure)
			m.send(conn.sink, protocol.TypeError, protocol.Error{Message: MsgSaveFailed})
			return
		}
		m.metrics.AddSave(metrics.ResultSuccess)

		doc.Lock()
		defer doc.Unlock()
		m.broadcast(doc.Members(), protocol.TypeSaved, protocol.Saved{
			Timestamp:      m.now(),
			UserID:         participantID,
			CursorPosition: cursorPosition,
		})
	}()

	return nil
}

// Leave removes conn from every room it joined. Only the first call for a
// connection has an effect.
func (m *Manager) Leave(conn *Conn) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return
	}
	conn.closed = true

	for roomID, participantID := range conn.rooms {
		m.leaveRoom(conn, roomID, participantID)
	}
	conn.rooms = nil
}

func (m *Manager) leaveRoom(conn *Conn, roomID, participantID string) {
	doc, ok := m.cache.Get(roomID)
	if !ok {
		return
	}

	doc.Lock()
	if _, ok := doc.RemoveMember(conn.ID); !ok {
		doc.Unlock()
		return
	}
	m.metrics.AddParticipants(-1)
	m.colors.Release(participantID)

	if doc.Len() > 0 {
		remaining := doc.Members()
		m.broadcast(remaining, protocol.TypeUserLeft, protocol.UserLeft{UserID: participantID})
		m.broadcast(remaining, protocol.TypePresenceUpdate, protocol.PresenceUpdate{Users: doc.Roster()})
		doc.Unlock()
		return
	}

	if m.flushOnEvict && doc.Snapshot().Dirty {
		doc.Unlock()
		m.flush(doc)
		doc.Lock()
		if doc.Len() > 0 {
			doc.Unlock()
			return
		}
	}

	m.cache.Evict(doc)
	doc.Unlock()

	m.metrics.SetRoomsActive(m.cache.Len())
	m.logger.Infof("room %s closed", roomID)
}

func (m *Manager) flush(doc *room.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
	defer cancel()

	if _, _, err := doc.Flush(ctx, m.store.SaveContent, func(s room.Snapshot) bool {
		return !s.Dirty
	}); err != nil {
		m.logger.Errorf("flush room %s on close: %v", doc.ID, err)
	}
}

// Roster returns the presence roster of roomID, empty when the room is not
// active.
func (m *Manager) Roster(roomID string) []presence.User {
	doc, ok := m.cache.Get(roomID)
	if !ok {
		return nil
	}

	doc.Lock()
	defer doc.Unlock()
	return doc.Roster()
}

// Stats describes the active working set.
type Stats struct {
	ActiveRooms        int `json:"activeRooms"`
	ActiveParticipants int `json:"activeParticipants"`
}

// Stats counts active rooms and joined connections.
func (m *Manager) Stats() Stats {
	stats := Stats{}
	for _, doc := range m.cache.Documents() {
		doc.Lock()
		stats.ActiveRooms++
		stats.ActiveParticipants += doc.Len()
		doc.Unlock()
	}
	return stats
}

// Wait blocks until every background save has finished.
func (m *Manager) Wait() {
	m.saves.Wait()
}

func (m *Manager) send(sink room.Sink, t protocol.Type, payload interface{}) {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		m.logger.Errorf("encode %s: %v", t, err)
		return
	}
	sink.Send(frame)
}

// broadcast encodes payload once and offers it to every member. Members whose
// buffers are full miss the frame.
func (m *Manager) broadcast(members []*room.Member, t protocol.Type, payload interface{}) {
	if len(members) == 0 {
		return
	}

	frame, err := protocol.Encode(t, payload)
	if err != nil {
		m.logger.Errorf("encode %s: %v", t, err)
		return
	}

	for _, member := range members {
		if !member.Sink.Send(frame) {
			m.logger.Warnf("dropped %s frame for conn %s", t, member.ConnID)
		}
	}
}
