/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tristendillon/pytrace/core/version"
)

// newVersionCmd builds the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Display the version of pytrace",
		Long:              `Displays the version of pytrace.`,
		Args:              maxArgs(0),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pytrace %s\n", version.Version)
		},
	}
}
