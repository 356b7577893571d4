package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dossier/internal/embedding"
	"dossier/internal/ingest"
)

var (
	ingestWatch    bool
	ingestDebounce time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Build the retrieval index from a directory of documents",
	Long: `Loads every .pdf, .txt, .md, .html and .htm file under dir, splits it
into overlapping chunks, embeds them and replaces the contents of the index.
PDF pages come from the file; in text files form feeds separate pages. The
old index is kept if any embedding call fails.

With --watch the command keeps running and rebuilds the index whenever a
document changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the retrieval index contains",
	RunE:  runIndexStats,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Watch the directory and re-index on change")
	ingestCmd.Flags().DurationVar(&ingestDebounce, "debounce", 500*time.Millisecond, "Quiet period before a watched rebuild")
	ingestCmd.AddCommand(indexStatsCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir := cfg.Ingest.DataDir
	if len(args) == 1 {
		dir = args[0]
	}

	ctx, cancel := commandContext()
	defer cancel()

	idx, engine, err := openIndex(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer idx.Close()

	var opts []ingest.Option
	if hc, ok := engine.(embedding.HealthChecker); ok {
		opts = append(opts, ingest.WithHealthCheck(hc))
	}
	in, err := ingest.New(idx, cfg.Ingest, opts...)
	if err != nil {
		return err
	}

	res, err := in.Run(ctx, dir)
	if err != nil {
		return err
	}
	printIngestResult(cmd, res)

	if !ingestWatch {
		return nil
	}

	w, err := ingest.NewWatcher(in, dir, ingestDebounce, func(r ingest.Result, err error) {
		if err != nil {
			logger.Warn("re-index failed", zap.Error(err))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", errStyle.Render("re-index failed:"), err)
			return
		}
		printIngestResult(cmd, r)
	})
	if err != nil {
		return err
	}
	// Watching is not bounded by --timeout.
	wctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := w.Start(wctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (Ctrl-C to stop)\n", titleStyle.Render("watching"), dir)
	<-wctx.Done()
	return nil
}

func printIngestResult(cmd *cobra.Command, r ingest.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d documents, %d pages, %d chunks %s\n",
		okStyle.Render("indexed"), r.Documents, r.Pages, r.Chunks,
		dimStyle.Render(r.Elapsed.Round(time.Millisecond).String()))
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	idx, _, err := openIndex(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer idx.Close()

	st, err := idx.Stats(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("index"), cfg.Retrieval.DatabasePath)
	fmt.Fprintf(out, "  chunks:     %d\n", st.Chunks)
	fmt.Fprintf(out, "  documents:  %d\n", st.Documents)
	fmt.Fprintf(out, "  engine:     %s\n", st.Engine)
	fmt.Fprintf(out, "  dimensions: %d\n", st.Dims)
	fmt.Fprintf(out, "  sqlite-vec: %t\n", st.VectorExt)
	return nil
}
