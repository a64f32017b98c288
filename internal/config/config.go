// Package config loads the server settings from the environment, an optional
// .env file and command line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds every server setting.
type Config struct {
	Host      string `env:"HOST"`
	Port      int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error panic fatal"`
	LogFormat string `env:"LOG_FORMAT,default=console" validate:"oneof=console json"`

	DBDriver      string `env:"DB_DRIVER,default=sqlite" validate:"oneof=sqlite postgres redis mongo memory"`
	DBPath        string `env:"DB_PATH,default=./data/codetogether.db"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE,default=codetogether"`

	SweepInterval      time.Duration `env:"SWEEP_INTERVAL,default=5s" validate:"gt=0"`
	SweepIdleThreshold time.Duration `env:"SWEEP_IDLE_THRESHOLD,default=2s" validate:"gte=0"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT,default=5s" validate:"gt=0"`
	FlushOnEvict       bool          `env:"FLUSH_ON_EVICT,default=false"`
	ReclaimColors      bool          `env:"RECLAIM_COLORS,default=false"`

	MessagesPerSecond    float64 `env:"MESSAGES_PER_SECOND,default=100" validate:"gt=0"`
	MessageBurst         int     `env:"MESSAGE_BURST,default=200" validate:"min=1"`
	MaxRateViolations    int64   `env:"MAX_RATE_VIOLATIONS,default=1000" validate:"min=1"`
	APIRequestsPerSecond float64 `env:"API_REQUESTS_PER_SECOND,default=5" validate:"gt=0"`
	APIBurst             int     `env:"API_BURST,default=10" validate:"min=1"`

	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
}

// Load reads an optional .env file in the working directory and then the
// process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	return FromEnviron()
}

// FromEnviron decodes the process environment.
func FromEnviron() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins returns the allowed websocket origins.
func (c *Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	})
	return lo.Compact(origins)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("env"), ",", 2)[0]
	})
	return v
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fe := verrs[0]
			return fmt.Errorf("%s: invalid value %v (%s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
		}
		return err
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH: required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL: required for the postgres driver")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR: required for the redis driver")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI: required for the mongo driver")
		}
	}

	return nil
}
