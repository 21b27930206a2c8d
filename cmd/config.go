/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tristendillon/pytrace/core/logger"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [project-root]",
		Short: "Print the effective configuration",
		Long: `Prints the configuration that a trace of project-root would use, after
merging defaults, pytrace.yaml, PYTRACE_* environment variables and flags.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Debug("config called")
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			if cfg.File != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", cfg.File)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
