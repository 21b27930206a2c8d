/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/manifest"
	"github.com/tristendillon/pytrace/core/tracer"
	"github.com/tristendillon/pytrace/core/watcher"
)

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch <project-root> <entry-file>",
		Short: "Trace again whenever the project's Python files change",
		Long: `Traces once, then watches the project tree and writes a fresh manifest line
to standard output after every burst of changes to Python files.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Debug("watch called")

			root, entry := args[0], args[1]
			entryRel, err := relativeTo(root, entry)
			if err != nil {
				return err
			}

			tr := tracer.New(cfg)
			emitter := manifest.NewEmitter(os.Stdout)
			fw, err := watcher.NewFileWatcher(watcher.Options{
				RootDir:      root,
				ExcludePaths: cfg.WatchExclude,
				Debounce:     cfg.Debounce,
			}, func(ctx context.Context) ([]string, error) {
				m, err := tr.Trace(ctx, root, entry)
				if err != nil {
					return nil, err
				}
				if err := emitter.Emit(m); err != nil {
					return nil, err
				}
				return append([]string{entryRel}, m.Files...), nil
			})
			if err != nil {
				return err
			}
			defer fw.Close()

			logger.Info("Watching %s for changes", fw.RootDir)
			return fw.Watch(cmd.Context())
		},
	}

	watchCmd.Flags().Duration("debounce", 0, "Quiet period before tracing again (default 500ms)")
	return watchCmd
}

// relativeTo returns entry relative to root with symlinks resolved in both.
func relativeTo(root, entry string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absEntry, err := filepath.Abs(entry)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(absEntry); err == nil {
		absEntry = resolved
	}
	rel, err := filepath.Rel(absRoot, absEntry)
	if err != nil {
		return "", fmt.Errorf("entry file %s: %w", entry, err)
	}
	return rel, nil
}
