package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/ingest"
	"github.com/quarrydocs/quarry/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and keep the index in sync",
		Long: `Watch a directory tree and ingest changed files automatically.

Created and modified files are re-ingested; deleted files are removed
from the index. Rapid editor events are debounced. Runs until
interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args[0], debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "Event coalescing window")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string, debounce time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	w, err := watcher.New(watcher.Config{
		Extensions: defaultExtensions,
		Debounce:   debounce,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx, dir); err != nil {
		return err
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(out, "watching %s\n", dir)

	for {
		select {
		case <-ctx.Done():
			return a.save()
		case events, ok := <-w.Events():
			if !ok {
				return a.save()
			}
			for _, ev := range events {
				if err := applyEvent(ctx, a, ev, out, errOut); err != nil {
					if ctx.Err() != nil {
						return a.save()
					}
					fmt.Fprintf(errOut, "failed %s: %v\n", ev.Path, err)
				}
			}
			if err := a.save(); err != nil {
				fmt.Fprintf(errOut, "save vector index: %v\n", err)
			}
		}
	}
}

func applyEvent(ctx context.Context, a *app, ev watcher.Event, out, errOut io.Writer) error {
	switch ev.Op {
	case watcher.OpDelete:
		removed, err := a.ingest.RemoveSource(ctx, ev.Path)
		if err != nil {
			return err
		}
		if removed > 0 {
			fmt.Fprintf(out, "removed %s (%d chunks)\n", ev.Path, removed)
		}
		return nil
	default:
		data, err := os.ReadFile(ev.Path)
		if err != nil {
			return err
		}
		doc := ingest.Document{Name: filepath.Base(ev.Path), Path: ev.Path, Content: data}

		for {
			job, err := a.ingest.IngestSync(ctx, doc)
			if err != nil && qerrors.IsCapacity(err) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(submitRetryInterval):
				}
				continue
			}
			if err != nil {
				return err
			}
			if job.State == ingest.StateFailed {
				return fmt.Errorf("%s", job.Error)
			}
			for _, warning := range job.Warnings {
				fmt.Fprintf(errOut, "warning %s: %s\n", ev.Path, warning)
			}
			fmt.Fprintf(out, "indexed %s (%d chunks)\n", ev.Path, job.ChunkCount)
			return nil
		}
	}
}
