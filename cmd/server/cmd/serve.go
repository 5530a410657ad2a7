package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/campuschat/internal/app"
	"github.com/vovakirdan/campuschat/internal/config"
	"github.com/vovakirdan/campuschat/internal/log"
)

var serveOverrides config.Config

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			logger.Error().Err(err).Msg("failed to load config")
			return err
		}
		cfg.UpdateFrom(serveOverrides)
		if serveOverrides.LogLevel != "" {
			logger = log.New(cfg.LogLevel, cfg.LogFormat)
		}

		application, err := app.New(&cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to init app")
			return err
		}

		if err := application.Run(cmd.Context()); err != nil {
			logger.Error().Err(err).Msg("server stopped with error")
			return err
		}
		return nil
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOverrides.Addr, "addr", "", "HTTP listen address")
	f.StringVar(&serveOverrides.DatabasePath, "db", "", "path to SQLite database")
	f.StringVar(&serveOverrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&serveOverrides.AuthzMode, "authz-mode", "", "course room authorization (open, enrollment)")
	f.StringVar(&serveOverrides.Sequencer, "sequencer", "", "sequence allocator (store, redis)")
	f.StringVar(&serveOverrides.RedisAddr, "redis-addr", "", "redis address for the redis sequencer")
	rootCmd.AddCommand(serveCmd)
}
