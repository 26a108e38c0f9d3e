package cli

import (
	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maestro",
		Short: "Maestro, a multi-agent guitar tutor",
		Long:  "Maestro routes guitar questions to specialist responders and coordinates their answers over a CLI, a WebSocket gateway and MCP.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.maestro/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newRespondersCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMCPCmd())

	return cmd
}

// loadConfig reads the config file and rebuilds the logger from it. The
// --log-level flag wins over logging.level.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log = logging.NewWithStyle(nil, level, cfg.Logging.ConsoleStyle)
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
