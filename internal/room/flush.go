package room

import "context"

// SaveFunc writes a room's content to durable storage.
type SaveFunc func(ctx context.Context, roomID, content string) error

// Flush writes the current content through save and records the written
// version as flushed. Flushes of one document run one at a time, each from a
// snapshot taken after the previous write finished, so durable storage never
// moves backwards. If skip reports true for the snapshot nothing is written.
//
// The caller must not hold the document lock.
func (d *Document) Flush(ctx context.Context, save SaveFunc, skip func(Snapshot) bool) (Snapshot, bool, error) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	snap := d.Snapshot()
	d.mu.Unlock()

	if skip != nil && skip(snap) {
		return snap, false, nil
	}

	if err := save(ctx, snap.RoomID, snap.Content); err != nil {
		return snap, false, err
	}

	d.mu.Lock()
	d.MarkFlushed(snap.Version)
	d.mu.Unlock()

	return snap, true, nil
}
