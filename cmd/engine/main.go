package main

import (
	"os"

	"devfeed/internal/config"
	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "engine",
		Short:         "devfeed engagement and feed service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), tokenCmd())
	return root
}

// loadConfig reads the environment and configures logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	utils.ConfigureLogger(cfg.Debug)
	return cfg, nil
}
