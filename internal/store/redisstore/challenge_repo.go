package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-auth/challenge"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("session-auth/store/redis")

var _ challenge.Repo = (*ChallengeRepo)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// ChallengeRepo keeps one challenge per identity under a key that expires
// with the challenge, so abandoned challenges clean themselves up.
type ChallengeRepo struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewChallengeRepo(ctx context.Context, cfg Config, ttl time.Duration, logger zerolog.Logger) (*ChallengeRepo, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("[redisstore NewChallengeRepo] ping failed: %w", err)
	}
	return &ChallengeRepo{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func challengeKey(identityID string) string {
	return "challenge:" + identityID
}

func (r *ChallengeRepo) Upsert(ctx context.Context, c *challenge.Challenge) error {
	ctx, span := tracer.Start(ctx, "Redis.ChallengeUpsert")
	defer span.End()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("[ChallengeRepo Upsert] marshal: %w", err)
	}
	key := challengeKey(c.IdentityID)
	if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("redis set failed")
		return fmt.Errorf("[ChallengeRepo Upsert] %w", err)
	}
	return nil
}

func (r *ChallengeRepo) Get(ctx context.Context, identityID string) (*challenge.Challenge, error) {
	ctx, span := tracer.Start(ctx, "Redis.ChallengeGet")
	defer span.End()

	key := challengeKey(identityID)
	val, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "challenge for %s", identityID)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("redis get failed")
		return nil, fmt.Errorf("[ChallengeRepo Get] %w", err)
	}

	var c challenge.Challenge
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("[ChallengeRepo Get] unmarshal: %w", err)
	}
	return &c, nil
}

func (r *ChallengeRepo) Delete(ctx context.Context, identityID string) error {
	ctx, span := tracer.Start(ctx, "Redis.ChallengeDelete")
	defer span.End()

	key := challengeKey(identityID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("redis delete failed")
		return fmt.Errorf("[ChallengeRepo Delete] %w", err)
	}
	return nil
}

func (r *ChallengeRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *ChallengeRepo) Close() error {
	return r.rdb.Close()
}
