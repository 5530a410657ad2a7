package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/campuschat/internal/config"
	"github.com/vovakirdan/campuschat/internal/log"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "campuschat",
	Short: "Real-time course chat and presence server",
	Long: `campuschat serves course, private and ephemeral chat rooms over WebSocket,
with presence, typing indicators and history resync.

Use "campuschat [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: $CAMPUSCHAT_CONFIG_DEFAULT_PATH or ./config.yaml)")
}

// loadConfig reads configuration and builds the logger it asks for.
func loadConfig() (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info", "console")
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}
