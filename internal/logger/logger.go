// Package logger builds the zerolog.Logger every component shares,
// grounded on the teacher's logger.New.
package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/config"
)

// New returns a configured zerolog.Logger with pretty console output.
// The level is cfg.LogLevel when it parses; otherwise debug in
// development and info elsewhere.
func New(cfg *config.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}
