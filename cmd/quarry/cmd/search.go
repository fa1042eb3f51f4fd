package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/search"
)

type searchOptions struct {
	limit    int
	mode     string
	minScore float64
	rerank   bool
	filters  []string
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base with hybrid retrieval.

Vector similarity and keyword search run concurrently and merge with
Reciprocal Rank Fusion. Either source can be selected alone with
--mode.

Examples:
  quarry search "ingestion backpressure"
  quarry search "queue capacity" --mode keyword -n 5
  quarry search "error taxonomy" --filter content_type=markdown
  quarry search "phase weights" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Retrieval mode: hybrid, semantic, keyword")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results below this score")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Run the cross-encoder rerank pass")
	cmd.Flags().StringSliceVar(&opts.filters, "filter", nil, "Metadata filter key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	filters, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	var mode search.Mode
	switch opts.mode {
	case "hybrid":
		mode = search.ModeHybrid
	case "semantic":
		mode = search.ModeSemantic
	case "keyword":
		mode = search.ModeKeyword
	default:
		return fmt.Errorf("unknown mode %q (hybrid, semantic, keyword)", opts.mode)
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	minScore := opts.minScore
	if minScore == 0 {
		minScore = a.cfg.Search.MinScore
	}

	result, err := a.search.Search(ctx, query, search.Options{
		TopK:     opts.limit,
		MinScore: minScore,
		Filters:  filters,
		Mode:     mode,
		Rerank:   opts.rerank,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	for _, note := range result.Notes {
		fmt.Fprintf(errOut, "note: %s\n", note)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Hits) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, hit := range result.Hits {
		source := hit.Metadata["source"]
		if source == "" {
			source = hit.DocumentID
		}
		fmt.Fprintf(out, "%2d. %.4f  %s\n", i+1, hit.Score, source)
		fmt.Fprintf(out, "    %s\n", snippet(hit.Content, 160))
	}
	return nil
}

func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, want key=value", pair)
		}
		filters[key] = value
	}
	return filters, nil
}

// snippet returns the first line of content, truncated to max runes.
func snippet(content string, max int) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	runes := []rune(line)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return line
}
