package room

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/manpreetbhatti/codetogether/internal/change"
	"github.com/manpreetbhatti/codetogether/internal/presence"
)

// Sink receives encoded frames for one connection. Send must not block.
type Sink interface {
	Send(frame []byte) bool
}

// Member is one connection joined to a room.
type Member struct {
	ConnID        string
	ParticipantID string
	Color         string
	Sink          Sink
}

// Snapshot is a consistent view of a Document taken under its lock.
type Snapshot struct {
	RoomID       string
	Content      string
	LastModified time.Time
	Version      uint64
	Dirty        bool
}

// A collaborative editing session's authoritative text and membership.
//
// Document is not safe for concurrent use on its own: every method except
// Lock and Unlock expects the caller to hold the lock.
type Document struct {
	ID       string
	Language string

	mu             sync.Mutex
	flushMu        sync.Mutex
	content        string
	members        []*Member
	lastModified   time.Time
	version        uint64
	flushedVersion uint64
	evicted        bool
}

// NewDocument creates a document seeded with durable content.
func NewDocument(id, language, content string, now time.Time) *Document {
	return &Document{
		ID:           id,
		Language:     language,
		content:      content,
		lastModified: now,
	}
}

// Lock serializes access to the document.
func (d *Document) Lock() {
	d.mu.Lock()
}

// Unlock releases the document.
func (d *Document) Unlock() {
	d.mu.Unlock()
}

// Content returns the current text.
func (d *Document) Content() string {
	return d.content
}

// LastModified returns the time of the last applied edit, save or load.
func (d *Document) LastModified() time.Time {
	return d.lastModified
}

// ApplyEdits applies an edit batch to the content.
func (d *Document) ApplyEdits(edits []change.Edit, now time.Time) {
	d.content = change.Apply(d.content, edits)
	d.touch(now)
}

// Replace overwrites the content.
func (d *Document) Replace(content string, now time.Time) {
	d.content = content
	d.touch(now)
}

func (d *Document) touch(now time.Time) {
	d.lastModified = now
	d.version++
}

// Version returns the mutation counter.
func (d *Document) Version() uint64 {
	return d.version
}

// MarkFlushed records that the content at version reached durable storage.
func (d *Document) MarkFlushed(version uint64) {
	if version > d.flushedVersion {
		d.flushedVersion = version
	}
}

// Snapshot captures the state the persistence sweeper needs.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		RoomID:       d.ID,
		Content:      d.content,
		LastModified: d.lastModified,
		Version:      d.version,
		Dirty:        d.version > d.flushedVersion,
	}
}

// AddMember appends m to the membership.
func (d *Document) AddMember(m *Member) {
	d.members = append(d.members, m)
}

// RemoveMember removes the member bound to connID.
func (d *Document) RemoveMember(connID string) (*Member, bool) {
	for i, m := range d.members {
		if m.ConnID == connID {
			d.members = append(d.members[:i], d.members[i+1:]...)
			return m, true
		}
	}
	return nil, false
}

// Member returns the member bound to connID.
func (d *Document) Member(connID string) (*Member, bool) {
	return lo.Find(d.members, func(m *Member) bool {
		return m.ConnID == connID
	})
}

// Members returns the members in join order.
func (d *Document) Members() []*Member {
	return append([]*Member(nil), d.members...)
}

// MembersExcept returns every member not bound to connID.
func (d *Document) MembersExcept(connID string) []*Member {
	return lo.Filter(d.members, func(m *Member, _ int) bool {
		return m.ConnID != connID
	})
}

// Len returns the number of members.
func (d *Document) Len() int {
	return len(d.members)
}

// Roster returns one entry per distinct participant id, in join order.
func (d *Document) Roster() []presence.User {
	users := lo.Map(d.members, func(m *Member, _ int) presence.User {
		return presence.User{UserID: m.ParticipantID, Color: m.Color}
	})
	return lo.UniqBy(users, func(u presence.User) string {
		return u.UserID
	})
}

// Evicted reports whether the document has left the cache. An evicted
// document must not gain members.
func (d *Document) Evicted() bool {
	return d.evicted
}
