package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Out    io.Writer
}

// NewLogger builds the process logger and installs it as the zerolog global.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("app", cfg.App).
		Str("env", cfg.Env).
		Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}
