package main

import (
	"github.com/spf13/cobra"

	"github.com/chanduplex/muxstream/internal/config"
	"github.com/chanduplex/muxstream/pkg/logging"
)

var rootCommand = &cobra.Command{
	Use:   "muxctl",
	Short: "muxctl drives a multiplexed channel session over a TCP connection",
	Run: func(command *cobra.Command, arguments []string) {
		command.Help()
	},
}

var rootConfiguration struct {
	// configPath is the path to a YAML configuration file.
	configPath string
	// envPath is the path to a .env file of environment overrides.
	envPath string
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&rootConfiguration.configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&rootConfiguration.envPath, "env", "", "Path to a .env file of environment overrides")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		serveCommand,
		dialCommand,
	)
}

// loadConfiguration loads the root command's configuration file and
// environment overrides, returning a zero-value Config if none was given.
func loadConfiguration() (*config.Config, error) {
	if err := config.LoadEnvironment(rootConfiguration.envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(rootConfiguration.configPath)
	if err != nil {
		return nil, err
	}
	if level, ok := logging.NameToLevel(cfg.LogLevel); ok && level >= logging.LevelDebug {
		logging.DebugEnabled = true
	}
	return cfg, nil
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fatal(err)
	}
}
