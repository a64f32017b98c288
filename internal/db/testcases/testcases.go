// Package testcases holds the conformance suite every database driver runs
// against itself.
package testcases

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/codetogether/internal/db"
)

// RunAll runs every test case against database.
func RunAll(t *testing.T, database db.Database) {
	t.Run("create and find room", func(t *testing.T) {
		RunCreateAndFindTest(t, database)
	})
	t.Run("save content", func(t *testing.T) {
		RunSaveContentTest(t, database)
	})
	t.Run("list rooms", func(t *testing.T) {
		RunListRoomsTest(t, database)
	})
}

// RunCreateAndFindTest checks creation, lookup and duplicate detection.
func RunCreateAndFindTest(t *testing.T, database db.Database) {
	ctx := context.Background()
	id := uuid.NewString()

	_, err := database.FindRoom(ctx, id)
	assert.ErrorIs(t, err, db.ErrRoomNotFound)

	require.NoError(t, database.CreateRoom(ctx, &db.Room{
		ID:           id,
		Name:         "Test Room",
		Language:     "go",
		PasswordHash: "hash",
	}))

	room, err := database.FindRoom(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, room.ID)
	assert.Equal(t, "Test Room", room.Name)
	assert.Equal(t, "go", room.Language)
	assert.Equal(t, "hash", room.PasswordHash)
	assert.Equal(t, "", room.Content)
	assert.False(t, room.CreatedAt.IsZero())

	err = database.CreateRoom(ctx, &db.Room{ID: id, Name: "Duplicate"})
	assert.ErrorIs(t, err, db.ErrRoomAlreadyExists)
}

// RunSaveContentTest checks last-write-wins content updates.
func RunSaveContentTest(t *testing.T, database db.Database) {
	ctx := context.Background()
	id := uuid.NewString()

	assert.ErrorIs(t, database.SaveContent(ctx, id, "orphan"), db.ErrRoomNotFound)

	require.NoError(t, database.CreateRoom(ctx, &db.Room{ID: id, Name: "Save Test"}))
	require.NoError(t, database.SaveContent(ctx, id, "first"))
	require.NoError(t, database.SaveContent(ctx, id, "second ✓"))

	room, err := database.FindRoom(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second ✓", room.Content)
	assert.Equal(t, "Save Test", room.Name)
}

// RunListRoomsTest checks ordering, paging and counting.
func RunListRoomsTest(t *testing.T, database db.Database) {
	ctx := context.Background()

	before, err := database.CountRooms(ctx)
	require.NoError(t, err)

	prefix := uuid.NewString()
	for i := 0; i < 5; i++ {
		require.NoError(t, database.CreateRoom(ctx, &db.Room{
			ID:   fmt.Sprintf("%s-%d", prefix, i),
			Name: fmt.Sprintf("Room %d", i),
		}))
		time.Sleep(2 * time.Millisecond)
	}

	count, err := database.CountRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+5, count)

	rooms, err := database.ListRooms(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, prefix+"-4", rooms[0].ID)
	assert.Equal(t, prefix+"-3", rooms[1].ID)

	rooms, err = database.ListRooms(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, prefix+"-1", rooms[0].ID)
	assert.Equal(t, prefix+"-0", rooms[1].ID)
}
