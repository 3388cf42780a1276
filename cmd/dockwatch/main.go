package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"

	"dockwatch/internal/app"
	"dockwatch/internal/config"
	"dockwatch/internal/logging"
)

var (
	configPath string
	debug      bool
	serverURL  string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	runCmd := newRunCmd()
	rootCmd := &cobra.Command{
		Use:   "dockwatch",
		Short: "Watch local Docker containers and alert over Telegram",
		Long: `dockwatch polls the local Docker daemon, tracks the health of every container
and sends alerts to a Telegram chat when containers stop, stay down, or recover.

  dockwatch run               Run the daemon in the foreground (default)
  dockwatch status            Print the running daemon's status as JSON
  dockwatch ack <container>   Acknowledge an unhealthy container
  dockwatch version           Print build information`,
		SilenceUsage: true,
		RunE:         runCmd.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("DOCKWATCH_CONFIG"), "optional YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "base URL of a running daemon")

	rootCmd.AddCommand(runCmd, newStatusCmd(), newAckCmd(), newVersionCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			if debug {
				cfg.Log.Level = "debug"
			}
			logger, closer, err := logging.New(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			defer closer.Close()

			logger.Info("starting dockwatch",
				"version", version.Info(),
				"build", version.BuildContext(),
				"addr", cfg.Server.ListenAddr(),
				"db", cfg.Storage.DBPath,
			)
			a, err := app.New(cfg, configPath, logger)
			if err != nil {
				logger.Error("init failed", "err", err)
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := a.Run(ctx); err != nil {
				logger.Error("shutdown with error", "err", err)
				return err
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Print("dockwatch"))
		},
	}
}
