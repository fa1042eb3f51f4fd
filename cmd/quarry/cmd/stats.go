package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd)
		},
	}
}

func runStats(ctx context.Context, cmd *cobra.Command) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	docs, err := a.metadata.ListDocuments(ctx)
	if err != nil {
		return err
	}
	keywordCount, err := a.keywords.Count()
	if err != nil {
		return err
	}

	totalChunks := 0
	for _, doc := range docs {
		totalChunks += doc.ChunkCount
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "data dir\t%s\n", a.cfg.DataDir)
	fmt.Fprintf(w, "documents\t%d\n", len(docs))
	fmt.Fprintf(w, "chunks\t%d\n", totalChunks)
	fmt.Fprintf(w, "vectors\t%d\n", a.vectors.Count())
	fmt.Fprintf(w, "keyword entries\t%d\n", keywordCount)
	fmt.Fprintf(w, "embedding model\t%s\n", a.embedder.ModelName())
	fmt.Fprintf(w, "embedding dims\t%d\n", a.embedder.Dimensions())
	if err := w.Flush(); err != nil {
		return err
	}

	if len(docs) == 0 {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout())
	dw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(dw, "DOCUMENT\tCHUNKS\tINGESTED")
	for _, doc := range docs {
		fmt.Fprintf(dw, "%s\t%d\t%s\n",
			doc.Name, doc.ChunkCount, doc.IngestedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return dw.Flush()
}
