package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level  string `yaml:"level" env:"LOGGER_LEVEL" env-default:"info" env-description:"Log level [debug, info, warn, error]"`
	Pretty bool   `yaml:"pretty" env:"LOGGER_PRETTY" env-default:"false" env-description:"Human readable console output"`
}

// New creates the root logger. Components derive channel loggers from it.
func New(cfg Config, service, version string) zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg, service, version)
}

func NewWithWriter(w io.Writer, cfg Config, service, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}
