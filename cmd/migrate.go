package cmd

import (
	"context"

	"github.com/msgdeck/msgdeck/internal/store/postgres"
	"github.com/spf13/cobra"
)

var migrateLimit int

var migrateCommand = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
	Run: func(_ *cobra.Command, args []string) {
		performMigration(context.Background(), postgres.Direction(args[0]), migrateLimit)
	},
}

func init() {
	migrateCommand.Flags().IntVar(&migrateLimit, "limit", 0, "max migrations to apply, 0 means all")
}

func performMigration(ctx context.Context, direction postgres.Direction, limit int) {
	cfg := resolveConfig()
	logger := newLogger(cfg)

	db, err := postgres.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		exitWithError("unable to connect to postgres", err)
	}
	defer db.Close()

	applied, err := db.Migrate(ctx, direction, limit)
	if err != nil {
		exitWithError("unable to migrate", err)
	}

	logger.Info().Str("direction", string(direction)).Int("applied", applied).Msg("migration complete")
}
