package config

import (
	"errors"
	"time"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetChallengeBackend() string
	GetDatabaseURL() string
	GetQueryTimeout() time.Duration
	GetMaxConns() int32
	GetAutoMigrate() bool
	GetRedis() RedisConfig
	GetSeedIdentities() []SeedIdentity
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SeedIdentity is an identity created at startup when it does not exist yet.
// An empty password is replaced by a generated one that is logged once.
type SeedIdentity struct {
	Email    string `mapstructure:"email"`
	Name     string `mapstructure:"name"`
	Surname  string `mapstructure:"surname"`
	Role     string `mapstructure:"role"`
	Password string `mapstructure:"password"`
}

type Store struct {
	Backend          string         `mapstructure:"backend"`
	ChallengeBackend string         `mapstructure:"challenge_backend"`
	DatabaseURL      string         `mapstructure:"database_url"`
	QueryTimeout     time.Duration  `mapstructure:"query_timeout"`
	MaxConns         int32          `mapstructure:"max_conns"`
	AutoMigrate      bool           `mapstructure:"auto_migrate"`
	Redis            RedisConfig    `mapstructure:"redis"`
	Seed             []SeedIdentity `mapstructure:"seed"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() string           { return s.Backend }
func (s Store) GetChallengeBackend() string       { return s.ChallengeBackend }
func (s Store) GetDatabaseURL() string            { return s.DatabaseURL }
func (s Store) GetQueryTimeout() time.Duration    { return s.QueryTimeout }
func (s Store) GetMaxConns() int32                { return s.MaxConns }
func (s Store) GetAutoMigrate() bool              { return s.AutoMigrate }
func (s Store) GetRedis() RedisConfig             { return s.Redis }
func (s Store) GetSeedIdentities() []SeedIdentity { return s.Seed }

func (s Store) validate() error {
	var errs []error
	switch s.Backend {
	case BackendMemory:
	case BackendPostgres:
		if s.DatabaseURL == "" {
			errs = append(errs, newConfigError("store.database_url", "is required for the postgres backend"))
		}
	default:
		errs = append(errs, newConfigError("store.backend", "unknown backend %q", s.Backend))
	}

	switch s.ChallengeBackend {
	case BackendMemory:
	case BackendPostgres:
		if s.Backend != BackendPostgres {
			errs = append(errs, newConfigError("store.challenge_backend", "postgres requires store.backend=postgres"))
		}
	case BackendRedis:
		if s.Redis.Addr == "" {
			errs = append(errs, newConfigError("store.redis.addr", "is required for the redis challenge backend"))
		}
	default:
		errs = append(errs, newConfigError("store.challenge_backend", "unknown backend %q", s.ChallengeBackend))
	}
	return errors.Join(errs...)
}
