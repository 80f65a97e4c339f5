package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dashsync/internal/output"
)

// Default configuration file path, used when neither --config nor
// DASHSYNC_CONFIG is set and the file exists.
const defaultConfigPath = "configs/config.yaml"

// logModeKey is the command annotation that picks where logs go.
const logModeKey = "logging"

// Log modes. One-shot commands default to stderr at warn level so their
// output stays parseable.
const (
	logDaemon  = "daemon"
	logDiscard = "discard"
)

// app is the state shared by the subcommands. The root command's
// PersistentPreRunE fills it in.
type app struct {
	cfgFile      string
	outputFormat string
	logLevel     string

	cfg        *config.Config
	configPath string
	log        *logging.Logger
	formatter  output.Formatter
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "dashsync",
		Short: "Keep a home-automation dashboard in step with its device backend",
		Long: `dashsync mirrors the device list of a home-automation backend, applies
toggles optimistically and reconciles them against the backend's answer.

Run "dashsync serve" for the daemon (HTTP API, MQTT relay, InfluxDB sink),
"dashsync dashboard" for the terminal dashboard, or one of the one-shot
commands below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default $DASHSYNC_CONFIG or "+defaultConfigPath+")")
	flags.StringVarP(&a.outputFormat, "output", "o", output.FormatTable, "output format: table, json, yaml")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(a),
		newDashboardCmd(a),
		newDevicesCmd(a),
		newToggleCmd(a),
		newBatchCmd(a),
		newSceneCmd(a),
		newRoutineCmd(a),
		newSyncCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the logger and formatter.
func (a *app) setup(cmd *cobra.Command) error {
	if !output.Valid(a.outputFormat) {
		return fmt.Errorf("invalid output format %q (want table, json or yaml)", a.outputFormat)
	}

	cfg, path, err := loadConfig(a.cfgFile)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.configPath = path
	a.formatter = output.NewFormatter(a.outputFormat)
	a.log = a.newLogger(cmd.Annotations[logModeKey], cmd.ErrOrStderr())
	return nil
}

func (a *app) newLogger(mode string, stderr io.Writer) *logging.Logger {
	cfg := a.cfg.Logging
	if a.logLevel != "" {
		cfg.Level = a.logLevel
	}

	switch mode {
	case logDaemon:
		return logging.New(cfg, version)
	case logDiscard:
		return logging.Discard()
	default:
		if a.logLevel == "" {
			cfg.Level = "warn"
		}
		return logging.NewWithWriter(cfg, version, stderr)
	}
}

// loadConfig resolves the config path: --config, then DASHSYNC_CONFIG,
// then the default path. Without any file the configuration comes from
// the environment alone.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("DASHSYNC_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("checking config file: %w", err)
		}
	}

	if path == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, "", fmt.Errorf("loading config from environment: %w", err)
		}
		return cfg, "", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// print writes v with the selected formatter. Table output uses rows, the
// structured formats use the full value.
func (a *app) print(cmd *cobra.Command, rows, full any) {
	if a.outputFormat == output.FormatTable && rows != nil {
		fmt.Fprint(cmd.OutOrStdout(), a.formatter.Format(rows))
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), a.formatter.Format(full))
}
