package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/authtree/internal/config"
	"github.com/aretw0/authtree/internal/logging"
	"github.com/spf13/cobra"
)

// globals are resolved once by the root command before any subcommand runs.
var globals struct {
	cfg    *config.Config
	logger *slog.Logger
}

var rootCmd = &cobra.Command{
	Use:           "authtree",
	Short:         "authtree runs multi-step authentication flows",
	Long:          `authtree evaluates authentication trees: graphs of collector, decision and inner tree nodes that end in SUCCESS or FAILURE.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		}

		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		format, err := logging.ParseFormat(cfg.Log.Format)
		if err != nil {
			return err
		}
		globals.cfg = cfg
		globals.logger = logging.New(level, format, cmd.ErrOrStderr())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("AUTHTREE_CONFIG"), "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}
