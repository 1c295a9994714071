package cmd

import (
	"fmt"
	"os"

	"github.com/msgdeck/msgdeck/internal/config"
	"github.com/msgdeck/msgdeck/internal/log"
	"github.com/rs/zerolog"
)

func newLogger(cfg *config.Config) *zerolog.Logger {
	logger := log.New(cfg.Logger, "msgdeck", cfg.GitVersion)
	return &logger
}

func exitWithError(message string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", message, err)
	os.Exit(1)
}
