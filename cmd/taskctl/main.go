package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskflow/internal/config"
	"taskflow/pkg/logger"
)

var (
	envName   string
	configDir string
)

// rootCmd taskflow 运维命令
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskctl",
		Short: "TaskFlow operator CLI",
		Long: `Operational commands for a TaskFlow deployment.

Available subcommands:
  migrate      - Apply or roll back database migrations
  create-admin - Create a super admin account`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envName, "env", "", "config environment (defaults to APP_ENV)")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", os.Getenv("CONFIG_DIR"), "directory containing base.yaml")

	cmd.AddCommand(newMigrateCmd(), newCreateAdminCmd())
	return cmd
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envName, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.NewLogger(cfg.Log.Level), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
