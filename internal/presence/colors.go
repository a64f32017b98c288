// Package presence assigns display colours to participants and describes the
// roster shared with every member of a room.
package presence

import (
	"hash/fnv"

	"github.com/manpreetbhatti/codetogether/internal/cmap"
)

// Palette is the fixed set of colours handed out to participants.
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FFEAA7",
	"#DDA0DD",
	"#98D8C8",
	"#F7DC6F",
	"#BB8FCE",
	"#85C1E9",
}

// User is one roster entry.
type User struct {
	UserID string `json:"userId"`
	Color  string `json:"color"`
}

type assignment struct {
	color string
	refs  int
}

// ColorTable memoizes the colour of every participant id it has seen.
// Two ids may share a colour.
type ColorTable struct {
	entries *cmap.Map[assignment]
	reclaim bool
}

// NewColorTable creates a ColorTable. With reclaim set, an id's entry is dropped
// once it is released as many times as it was acquired.
func NewColorTable(reclaim bool) *ColorTable {
	return &ColorTable{
		entries: cmap.New[assignment](),
		reclaim: reclaim,
	}
}

// ColorFor returns the colour of participantID, hashing it into the palette on
// first use.
func (t *ColorTable) ColorFor(participantID string) string {
	a := t.entries.Upsert(participantID, func(cur assignment, exists bool) assignment {
		if exists {
			return cur
		}
		return assignment{color: hashColor(participantID)}
	})
	return a.color
}

// Acquire returns the colour of participantID and records one more active
// membership for it.
func (t *ColorTable) Acquire(participantID string) string {
	a := t.entries.Upsert(participantID, func(cur assignment, exists bool) assignment {
		if !exists {
			cur.color = hashColor(participantID)
		}
		cur.refs++
		return cur
	})
	return a.color
}

// Release drops one active membership of participantID.
func (t *ColorTable) Release(participantID string) {
	t.entries.Upsert(participantID, func(cur assignment, exists bool) assignment {
		if exists && cur.refs > 0 {
			cur.refs--
		}
		return cur
	})

	if !t.reclaim {
		return
	}
	t.entries.Delete(participantID, func(cur assignment, _ bool) bool {
		return cur.refs == 0
	})
}

// Len returns the number of memoized ids.
func (t *ColorTable) Len() int {
	return t.entries.Len()
}

func hashColor(participantID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(participantID))
	return Palette[h.Sum32()%uint32(len(Palette))]
}
