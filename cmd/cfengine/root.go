package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meenmo/cfengine/config"
	"github.com/meenmo/cfengine/logging"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	settings config.Settings
	logger   *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, settings: config.Default(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "cfengine",
		Short:         "Structured-finance cashflow, waterfall and pricing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			settings, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				settings.LogLevel = lvl
			}
			logger, err := logging.NewTo(a.stderr, settings.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			a.settings = settings
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().String("config", "", "settings file (YAML); CFENGINE_* variables override it")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newVersionCmd(a),
		newScenariosCmd(a),
		newRunCmd(a),
		newPriceCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "cfengine %s (commit %s)\n", version, commit)
		},
	}
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
