package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>...",
		Short: "Remove ingested documents from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), cmd, args)
		},
	}
}

func runRemove(ctx context.Context, cmd *cobra.Command, paths []string) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	missing := 0
	for _, path := range paths {
		removed, err := a.ingest.RemoveSource(ctx, path)
		if err != nil {
			return err
		}
		if removed == 0 {
			missing++
			fmt.Fprintf(cmd.ErrOrStderr(), "not indexed: %s\n", path)
			continue
		}
		fmt.Fprintf(out, "removed %s (%d chunks)\n", path, removed)
	}

	if err := a.save(); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	if missing == len(paths) {
		return fmt.Errorf("nothing removed")
	}
	return nil
}
