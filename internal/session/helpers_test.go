package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/codetogether/internal/db"
	"github.com/manpreetbhatti/codetogether/internal/db/memory"
	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/protocol"
	"github.com/manpreetbhatti/codetogether/internal/session"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// recordingSink keeps every frame it is sent.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSink) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return true
}

func (s *recordingSink) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	envs := make([]protocol.Envelope, 0, len(s.frames))
	for _, frame := range s.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		envs = append(envs, env)
	}
	return envs
}

func (s *recordingSink) types(t *testing.T) []protocol.Type {
	t.Helper()
	var types []protocol.Type
	for _, env := range s.envelopes(t) {
		types = append(types, env.Type)
	}
	return types
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

func decodeData(t *testing.T, env protocol.Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// mockStore passes calls through to a real database unless an expectation
// returns an error.
type mockStore struct {
	mock.Mock
	realDB db.Database
}

func newMockStore(realDB db.Database) *mockStore {
	return &mockStore{realDB: realDB}
}

func (m *mockStore) FindRoom(ctx context.Context, id string) (*db.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return nil, fmt.Errorf("%w", args.Error(0))
	}
	return m.realDB.FindRoom(ctx, id)
}

func (m *mockStore) SaveContent(ctx context.Context, id, content string) error {
	args := m.Called(ctx, id, content)
	if args.Get(0) != nil {
		return fmt.Errorf("%w", args.Error(0))
	}
	return m.realDB.SaveContent(ctx, id, content)
}

type client struct {
	conn *session.Conn
	sink *recordingSink
}

func newClient(id string) *client {
	sink := &recordingSink{}
	return &client{conn: session.NewConn(id, sink), sink: sink}
}

// setup creates a manager over a store holding room r1 with content "abc".
func setup(t *testing.T, opts session.Options) (*session.Manager, *mockStore, db.Database) {
	t.Helper()

	memdb, err := memory.New()
	require.NoError(t, err)
	require.NoError(t, memdb.CreateRoom(context.Background(), &db.Room{
		ID:       "r1",
		Name:     "Room 1",
		Language: "go",
		Content:  "abc",
	}))

	store := newMockStore(memdb)
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return session.NewManager(store, opts), store, memdb
}
