package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/codetogether/internal/config"
	"github.com/manpreetbhatti/codetogether/internal/db"
)

func TestOpenDatabase(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		database, err := openDatabase(ctx, &config.Config{DBDriver: config.DriverMemory})
		require.NoError(t, err)
		defer database.Close()

		require.NoError(t, database.CreateRoom(ctx, &db.Room{ID: "r1"}))
		count, err := database.CountRooms(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("sqlite", func(t *testing.T) {
		database, err := openDatabase(ctx, &config.Config{
			DBDriver: config.DriverSQLite,
			DBPath:   filepath.Join(t.TempDir(), "rooms.db"),
		})
		require.NoError(t, err)
		defer database.Close()

		_, err = database.FindRoom(ctx, "missing")
		assert.ErrorIs(t, err, db.ErrRoomNotFound)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := openDatabase(ctx, &config.Config{DBDriver: "etcd"})
		assert.Error(t, err)
	})
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "9090", "--db-driver", "memory"}))

	conf := &config.Config{Port: 8080, LogLevel: "warn", DBDriver: config.DriverSQLite, DBPath: "./data/x.db"}
	applyFlags(cmd, conf)

	assert.Equal(t, 9090, conf.Port)
	assert.Equal(t, config.DriverMemory, conf.DBDriver)
	assert.Equal(t, "warn", conf.LogLevel)
	assert.Equal(t, "./data/x.db", conf.DBPath)
}
