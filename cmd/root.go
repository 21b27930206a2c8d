/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tristendillon/pytrace/core/config"
	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/manifest"
	"github.com/tristendillon/pytrace/core/models"
	"github.com/tristendillon/pytrace/core/tracer"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 3
)

// newRootCmd builds the command tree. Each run gets its own so flag state
// never carries over between runs in one process.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pytrace [flags] <project-root> <entry-file>",
		Short: "Trace the files and packages a Python entry point depends on.",
		Long: `pytrace follows the imports of a Python entry file and reports the project
files it reaches and the installed packages it needs, including their
transitive requirements, as a single JSON manifest.

The manifest is written to the IPC channel named by NODE_CHANNEL_FD when a
parent process provides one, and to standard output otherwise.`,
		Args:              exactArgs(2),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Debug("trace called")
			m, err := tracer.New(cfg).Trace(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return manifest.NewChannelEmitter(cfg.IPCEnv).Emit(m)
		},
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return models.NewUsageError("%v", err)
	})

	rootCmd.PersistentFlags().StringVar(&logfile, "logfile", "", "File to write logs to")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: pytrace.yaml in the project root)")
	rootCmd.PersistentFlags().String("python", "", "Python interpreter used to locate the stdlib and site-packages")
	rootCmd.PersistentFlags().String("stdlib-dir", "", "Standard library directory (skips the interpreter probe)")
	rootCmd.PersistentFlags().StringSlice("site-packages", nil, "Site-packages directories (skips the interpreter probe)")
	rootCmd.PersistentFlags().Int("workers", 4, "Files or packages expanded concurrently")
	rootCmd.PersistentFlags().StringSlice("exclude", nil, "Glob patterns of project files to leave out")
	rootCmd.PersistentFlags().String("color", "auto", "Colour log output: auto, always or never")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

var (
	cfgFile string
	logfile string
	verbose bool
	cfg     *config.Config
)

func Execute() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "pytrace: unexpected failure: %v\n%s", r, debug.Stack())
			code = exitFailure
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	cmd, err := rootCmd.ExecuteContextC(ctx)
	return exitCode(os.Stderr, cmd, err)
}

// exitCode reports err on w. Failures print the stack captured where the
// trace failed; an interrupted run prints only the message.
func exitCode(w io.Writer, cmd *cobra.Command, err error) int {
	if err == nil {
		return exitOK
	}

	var usage *models.UsageError
	if errors.As(err, &usage) {
		fmt.Fprintf(w, "Error: %v\n", err)
		if cmd != nil {
			fmt.Fprint(w, cmd.UsageString())
		}
		return exitUsage
	}

	fmt.Fprintf(w, "pytrace: %v\n", err)
	var traced *models.TraceError
	if errors.As(err, &traced) && !errors.Is(err, context.Canceled) {
		_, _ = w.Write(traced.Stack)
	}
	return exitFailure
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return models.NewUsageError("accepts %d arg(s), received %d", n, len(args))
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return models.NewUsageError("accepts at most %d arg(s), received %d", n, len(args))
		}
		return nil
	}
}

// setup loads the layered config, reading pytrace.yaml from the project
// root argument when there is one, and configures the logger from it.
func setup(cmd *cobra.Command, args []string) error {
	root := ""
	if len(args) > 0 {
		root = args[0]
	}

	loaded, err := config.Load(root, cfgFile, cmd.Flags())
	if err != nil {
		return models.NewUsageError("invalid configuration: %v", err)
	}
	cfg = loaded

	logger.SetVerbose(cfg.Verbose)
	logger.SetColorMode(logger.ColorMode(cfg.Color))
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger.AddWriterForAll(f)
	}
	return nil
}
