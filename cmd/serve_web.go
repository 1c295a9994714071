package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/msgdeck/msgdeck/internal/app"
	"github.com/msgdeck/msgdeck/internal/config"
	"github.com/msgdeck/msgdeck/internal/store/postgres"
	"github.com/spf13/cobra"
)

var serveWebCommand = &cobra.Command{
	Use:   "serve-web",
	Short: "Start msgdeck API server",
	Run:   serveWeb,
}

func serveWeb(_ *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := resolveConfig()

	service, err := app.New(ctx, cfg)
	if err != nil {
		exitWithError("unable to create app", err)
	}
	defer service.Close()

	setupOnBeforeRun(service, cfg)

	if err := service.RunServer(ctx); err != nil {
		service.Logger().Error().Err(err).Msg("unable to shutdown service gracefully")
		return
	}

	service.Logger().Info().Msg("shutdown complete")
}

func setupOnBeforeRun(service *app.App, cfg *config.Config) {
	service.OnBeforeRun(func(ctx context.Context, a *app.App) error {
		db, ok := a.Postgres()
		if !ok || !cfg.Postgres.MigrateOnStart {
			return nil
		}

		a.Logger().Info().Msg("Enabled migration on start")

		_, err := db.Migrate(ctx, postgres.Up, 0)

		return err
	})
}
