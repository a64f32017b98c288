package sweeper_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/codetogether/internal/change"
	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/room"
	"github.com/manpreetbhatti/codetogether/internal/sweeper"
)

type fakeStore struct {
	mu     sync.Mutex
	writes map[string]string
	calls  int
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{writes: make(map[string]string)}
}

func (s *fakeStore) SaveContent(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return s.err
	}
	s.writes[id] = content
	return nil
}

func (s *fakeStore) content(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.writes[id]
	return c, ok
}

func (s *fakeStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func edit(doc *room.Document, now time.Time, insert string) {
	doc.Lock()
	defer doc.Unlock()
	doc.ApplyEdits([]change.Edit{{From: 0, To: 0, Insert: insert}}, now)
}

func newService(cache *room.Cache, store sweeper.Store, clk *clock) *sweeper.Service {
	return sweeper.New(cache, store, sweeper.Config{
		Interval:      time.Hour,
		IdleThreshold: 2 * time.Second,
		StoreTimeout:  time.Second,
	}, sweeper.WithLogger(logging.Nop()), sweeper.WithClock(clk.Now))
}

func TestSweepFlushesIdleDirtyRooms(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cache := room.NewCache()
	store := newFakeStore()
	s := newService(cache, store, clk)

	cache.GetOrCreate("clean", "", "untouched", clk.Now())
	idle := cache.GetOrCreate("idle", "", "abc", clk.Now())
	busy := cache.GetOrCreate("busy", "", "abc", clk.Now())

	edit(idle, clk.Now(), ">")
	clk.Advance(3 * time.Second)
	edit(busy, clk.Now(), ">")

	assert.Equal(t, 1, s.Sweep(context.Background()))

	content, ok := store.content("idle")
	require.True(t, ok)
	assert.Equal(t, ">abc", content)

	_, ok = store.content("busy")
	assert.False(t, ok, "recently edited room should wait for the next cycle")
	_, ok = store.content("clean")
	assert.False(t, ok, "unmodified room should not be written")

	clk.Advance(3 * time.Second)
	assert.Equal(t, 1, s.Sweep(context.Background()))
	content, _ = store.content("busy")
	assert.Equal(t, ">abc", content)

	assert.Equal(t, 0, s.Sweep(context.Background()), "flushed rooms are clean")
}

func TestSweepRetriesFailedWrites(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cache := room.NewCache()
	store := newFakeStore()
	s := newService(cache, store, clk)

	doc := cache.GetOrCreate("r1", "", "abc", clk.Now())
	edit(doc, clk.Now(), "x")
	clk.Advance(5 * time.Second)

	store.setErr(errors.New("store unavailable"))
	assert.Equal(t, 0, s.Sweep(context.Background()))

	doc.Lock()
	assert.True(t, doc.Snapshot().Dirty)
	assert.Equal(t, "xabc", doc.Content())
	doc.Unlock()

	store.setErr(nil)
	assert.Equal(t, 1, s.Sweep(context.Background()))
	content, _ := store.content("r1")
	assert.Equal(t, "xabc", content)
}

func TestStopRunsFinalSweep(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cache := room.NewCache()
	store := newFakeStore()
	s := newService(cache, store, clk)

	doc := cache.GetOrCreate("r1", "", "", clk.Now())
	edit(doc, clk.Now(), "hello")
	clk.Advance(time.Minute)

	s.Start()
	s.Stop()
	s.Stop()

	content, ok := store.content("r1")
	require.True(t, ok)
	assert.Equal(t, "hello", content)
}

func TestTickerSweeps(t *testing.T) {
	cache := room.NewCache()
	store := newFakeStore()
	past := time.Now().Add(-time.Minute)

	doc := cache.GetOrCreate("r1", "", "", past)
	edit(doc, past, "tick")

	s := sweeper.New(cache, store, sweeper.Config{
		Interval:      10 * time.Millisecond,
		IdleThreshold: time.Second,
	}, sweeper.WithLogger(logging.Nop()))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		content, ok := store.content("r1")
		return ok && content == "tick"
	}, 2*time.Second, 10*time.Millisecond)
}
