package main

import (
	"os"

	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/jrsteele09/go-session-auth/internal/store/postgres"
)

func main() {
	logger := obs.NewLogger(obs.LogConfig{Level: "info", App: "migrator", Env: os.Getenv("ENV")})

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal().Msg("DATABASE_URL is empty")
	}
	if err := postgres.Migrate(dsn); err != nil {
		logger.Fatal().Err(err).Msg("migrate up failed")
	}
	logger.Info().Msg("migrations: up OK")
}
