package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-session-auth/internal/config"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/rs/zerolog"
)

// SeedIdentities creates the configured identities that do not exist yet.
// Existing identities are left alone. A seed without a password gets a
// generated one, logged once so the operator can sign in.
func SeedIdentities(ctx context.Context, repo users.Repo, hasher users.Hasher, seeds []config.SeedIdentity, logger zerolog.Logger) error {
	for _, seed := range seeds {
		role, err := users.ParseRole(seed.Role)
		if err != nil {
			return fmt.Errorf("[server SeedIdentities] %s: %w", seed.Email, err)
		}

		_, err = repo.GetByEmail(ctx, seed.Email)
		if err == nil {
			logger.Debug().Str("email", seed.Email).Msg("seed identity already exists")
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("[server SeedIdentities] lookup %s: %w", seed.Email, err)
		}

		password := seed.Password
		generated := password == ""
		if generated {
			if password, err = generatePassword(); err != nil {
				return fmt.Errorf("[server SeedIdentities] failed to generate password: %w", err)
			}
		}

		hash, err := hasher.HashPassword(password)
		if err != nil {
			return fmt.Errorf("[server SeedIdentities] failed to hash password: %w", err)
		}

		identity := &users.Identity{
			Email:        seed.Email,
			Name:         seed.Name,
			Surname:      seed.Surname,
			Role:         role,
			PasswordHash: hash,
		}
		if err := repo.Upsert(ctx, identity); err != nil {
			return fmt.Errorf("[server SeedIdentities] failed to create %s: %w", seed.Email, err)
		}

		event := logger.Info().Str("email", seed.Email).Str("role", role.String()).Str("id", identity.ID)
		if generated {
			event = event.Str("password", password)
		}
		event.Msg("seed identity created")
	}
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// Prefix keeps generated passwords inside every complexity profile.
	return "Aa1!" + base64.RawURLEncoding.EncodeToString(b)[:8], nil
}
