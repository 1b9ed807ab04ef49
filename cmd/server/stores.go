package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-auth/challenge"
	fakechallengerepo "github.com/jrsteele09/go-session-auth/challenge/repofakes"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/store/postgres"
	"github.com/jrsteele09/go-session-auth/internal/store/redisstore"
	"github.com/jrsteele09/go-session-auth/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-auth/sessions/repofakes"
	"github.com/jrsteele09/go-session-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-session-auth/users/repofake"
	"github.com/rs/zerolog"
)

type stores struct {
	identities users.Repo
	sessions   sessions.Repo
	challenges challenge.Repo
	pings      []func(context.Context) error
	closers    []func()
}

func (s *stores) ping(ctx context.Context) error {
	var errs []error
	for _, p := range s.pings {
		errs = append(errs, p(ctx))
	}
	return errors.Join(errs...)
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores picks the identity and session backend, then the challenge
// backend, from configuration.
func openStores(ctx context.Context, c config.Config, challengeTTL time.Duration, logger zerolog.Logger) (*stores, error) {
	st := &stores{}

	switch c.GetStoreBackend() {
	case config.BackendPostgres:
		if c.GetAutoMigrate() {
			if err := postgres.Migrate(c.GetDatabaseURL()); err != nil {
				return nil, err
			}
			logger.Info().Msg("migrations: up OK")
		}
		db, err := postgres.New(ctx, postgres.Config{
			URL:          c.GetDatabaseURL(),
			MaxConns:     c.GetMaxConns(),
			QueryTimeout: c.GetQueryTimeout(),
		})
		if err != nil {
			return nil, err
		}
		st.identities = postgres.NewIdentityRepo(db)
		st.sessions = postgres.NewSessionRepo(db)
		st.pings = append(st.pings, db.Ping)
		st.closers = append(st.closers, db.Close)
		if c.GetChallengeBackend() == config.BackendPostgres {
			st.challenges = postgres.NewChallengeRepo(db)
		}

	default:
		identities := fakeuserrepo.NewFakeUserRepo()
		st.identities = identities
		st.sessions = fakesessionrepo.NewFakeSessionRepo()
		st.pings = append(st.pings, identities.Ping)
		logger.Warn().Msg("using in-memory stores, state is lost on restart")
	}

	switch c.GetChallengeBackend() {
	case config.BackendRedis:
		rc := c.GetRedis()
		repo, err := redisstore.NewChallengeRepo(ctx, redisstore.Config{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		}, challengeTTL, logger)
		if err != nil {
			st.close()
			return nil, err
		}
		st.challenges = repo
		st.pings = append(st.pings, repo.Ping)
		st.closers = append(st.closers, func() { _ = repo.Close() })
	case config.BackendPostgres:
		if st.challenges == nil {
			st.close()
			return nil, fmt.Errorf("[openStores] challenge backend postgres needs store.backend postgres")
		}
	default:
		st.challenges = fakechallengerepo.NewFakeChallengeRepo()
	}

	logger.Info().
		Str("backend", c.GetStoreBackend()).
		Str("challenge_backend", c.GetChallengeBackend()).
		Msg("stores ready")
	return st, nil
}
