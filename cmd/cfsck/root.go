package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cfsck/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	out := &outputFlags{}
	var logLevel string

	cmd := &cobra.Command{
		Use:           "cfsck",
		Short:         "cfsck checks filestores against context metadata and repairs what diverged",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if out.json && out.yaml {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			return configureLoggerForCLI(logLevel, cfg.LogLevel)
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&out.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&out.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newListMissingCmd(cfg, out),
		newListUnassignedCmd(cfg, out),
		newRepairCmd(cfg, out),
		newContextCmd(cfg, out),
		newFilestoreCmd(cfg, out),
		newDatabaseCmd(cfg, out),
		newConfigCmd(cfg),
	)

	return cmd
}
