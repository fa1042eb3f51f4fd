package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/ingest"
)

// defaultExtensions are the file types ingested when walking directories.
var defaultExtensions = []string{".md", ".markdown", ".txt", ".text", ".log"}

// submitRetryInterval is how long to wait before resubmitting after a
// queue-full rejection.
const submitRetryInterval = 200 * time.Millisecond

type ingestOptions struct {
	all   bool
	quiet bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest documents into the knowledge base",
		Long: `Ingest files or directories into the knowledge base.

Each document runs through the parse, chunk, embed, store pipeline.
Directories are walked recursively; by default only text and markdown
files are picked up.

Examples:
  quarry ingest notes/
  quarry ingest README.md docs/design.md
  quarry ingest --all ./corpus`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "Ingest every file, not just text and markdown")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only report failures")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, paths []string, opts ingestOptions) error {
	files, err := collectFiles(paths, opts.all)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no ingestable files under %s", strings.Join(paths, ", "))
	}

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	// Submit everything, waiting out queue-full backpressure.
	jobs := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(errOut, "skip %s: %v\n", file, err)
			continue
		}
		doc := ingest.Document{Name: filepath.Base(file), Path: file, Content: data}

		for {
			jobID, err := a.ingest.Submit(doc)
			if err == nil {
				jobs[jobID] = file
				break
			}
			if qerrors.IsCapacity(err) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(submitRetryInterval):
				}
				continue
			}
			fmt.Fprintf(errOut, "skip %s: %v\n", file, err)
			break
		}
	}

	// Poll until every job reaches a terminal state.
	failures := 0
	finished := make(map[string]bool, len(jobs))
	ticker := time.NewTicker(submitRetryInterval)
	defer ticker.Stop()
	for len(finished) < len(jobs) {
		select {
		case <-ctx.Done():
			for jobID := range jobs {
				a.ingest.Cancel(jobID)
			}
			return ctx.Err()
		case <-ticker.C:
		}

		for jobID, file := range jobs {
			if finished[jobID] {
				continue
			}
			job, ok := a.ingest.Status(jobID)
			if !ok || !job.Terminal() {
				continue
			}
			finished[jobID] = true

			if job.State == ingest.StateFailed {
				failures++
				fmt.Fprintf(errOut, "failed %s: %s\n", file, job.Error)
				continue
			}
			for _, warning := range job.Warnings {
				fmt.Fprintf(errOut, "warning %s: %s\n", file, warning)
			}
			if !opts.quiet {
				fmt.Fprintf(out, "indexed %s (%d chunks, %.1fs)\n",
					file, job.ChunkCount, job.CompletedAt.Sub(job.StartedAt).Seconds())
			}
		}
	}

	if err := a.save(); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d documents failed", failures, len(jobs))
	}
	if !opts.quiet {
		fmt.Fprintf(out, "done: %d documents\n", len(jobs))
	}
	return nil
}

// collectFiles expands the given paths into a sorted, de-duplicated file
// list. Hidden directories are skipped.
func collectFiles(paths []string, all bool) ([]string, error) {
	wanted := make(map[string]struct{}, len(defaultExtensions))
	for _, ext := range defaultExtensions {
		wanted[ext] = struct{}{}
	}

	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			// Explicitly named files bypass the extension filter.
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !all {
				if _, ok := wanted[strings.ToLower(filepath.Ext(p))]; !ok {
					return nil
				}
			}
			add(p)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}
