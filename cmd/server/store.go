package main

import (
	"context"
	"fmt"
	"time"

	"github.com/manpreetbhatti/codetogether/internal/config"
	"github.com/manpreetbhatti/codetogether/internal/db"
	"github.com/manpreetbhatti/codetogether/internal/db/memory"
	"github.com/manpreetbhatti/codetogether/internal/db/mongo"
	"github.com/manpreetbhatti/codetogether/internal/db/postgres"
	"github.com/manpreetbhatti/codetogether/internal/db/redis"
	"github.com/manpreetbhatti/codetogether/internal/db/sqlite"
)

const dialTimeout = 10 * time.Second

// openDatabase opens the room store selected by conf.DBDriver.
func openDatabase(ctx context.Context, conf *config.Config) (db.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	switch conf.DBDriver {
	case config.DriverSQLite:
		return sqlite.New(conf.DBPath)
	case config.DriverPostgres:
		return postgres.Dial(ctx, conf.DatabaseURL)
	case config.DriverRedis:
		return redis.Dial(ctx, conf.RedisAddr)
	case config.DriverMongo:
		return mongo.Dial(ctx, conf.MongoURI, conf.MongoDatabase)
	case config.DriverMemory:
		return memory.New()
	default:
		return nil, fmt.Errorf("unknown driver %q", conf.DBDriver)
	}
}
