package logger

import (
	"io"
	"os"
	"time"

	"github.com/example/issue-unfurl/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func New(cfg config.Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter builds the process logger on w and installs it as the global zerolog logger.
func NewWithWriter(cfg config.Config, w io.Writer) zerolog.Logger {
	if cfg.AppEnv == "dev" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		logger := zerolog.New(output).With().Timestamp().Logger()
		log.Logger = logger
		return logger
	}
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
