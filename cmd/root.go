package cmd

import (
	"fmt"
	"os"

	"github.com/msgdeck/msgdeck/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	gitCommit  string
	gitVersion string
)

var rootCmd = &cobra.Command{
	Use:   "msgdeck",
	Short: "Subscription and usage metering engine",
	Long:  "msgdeck manages tenant subscriptions, usage quotas, invoices and payments.",
}

var envCommand = &cobra.Command{
	Use:   "env",
	Short: "Print supported environment variables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		text, err := config.Usage()
		if err != nil {
			return err
		}

		cmd.Println(text)

		return nil
	},
}

func Execute(commit, version string) {
	gitCommit, gitVersion = commit, version

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to yaml config, env variables override it")

	rootCmd.AddCommand(
		serveWebCommand,
		migrateCommand,
		plansCommand,
		subscriptionCommand,
		envCommand,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfig() *config.Config {
	cfg, err := config.Load(configPath, gitCommit, gitVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to load config: %s\n", err)
		os.Exit(1)
	}

	return cfg
}
