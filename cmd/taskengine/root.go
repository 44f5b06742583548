package main

import (
	"github.com/spf13/cobra"

	"github.com/hasangilak/taskengine/internal/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "taskengine",
		Short:         "Run prioritized background tasks on a worker pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "project config file (default .taskengine/config.json)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "console", "log format: console or json")

	cmd.AddCommand(newRunCmd(opts), newHistoryCmd(opts), newConfigCmd(opts))
	return cmd
}

// loadConfig layers the config files, the environment and any flags the user
// set. flags maps config keys to flag names on cmd.
func (o *rootOptions) loadConfig(cmd *cobra.Command, flags map[string]string) (*config.Config, error) {
	globalPath, projectPath, err := config.DefaultPaths()
	if err != nil {
		return nil, err
	}
	if o.configPath != "" {
		projectPath = o.configPath
	}

	loader := config.NewLoader()
	bindings := map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
	}
	for key, name := range flags {
		bindings[key] = name
	}
	for key, name := range bindings {
		if err := loader.BindFlag(key, cmd.Flag(name)); err != nil {
			return nil, err
		}
	}

	return loader.Load(globalPath, projectPath)
}
