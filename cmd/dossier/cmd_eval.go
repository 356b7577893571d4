package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dossier/internal/eval"
)

var (
	evalParallel int
	evalOutDir   string
)

var evalCmd = &cobra.Command{
	Use:   "eval [queries.json]",
	Short: "Run a batch of queries and summarise quality, latency and cost",
	Long: `Reads a JSON array of {"id", "query", "mode"} objects, runs each through
the pipeline and writes one CSV row per query. Runs are not recorded in the
history database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().IntVarP(&evalParallel, "parallel", "p", 0, "Concurrent runs (default from config)")
	evalCmd.Flags().StringVarP(&evalOutDir, "out", "o", ".", "Directory for the results CSV")
}

func runEval(cmd *cobra.Command, args []string) error {
	path := cfg.Eval.QueriesFile
	if len(args) == 1 {
		path = args[0]
	}
	queries, err := eval.LoadQueries(path)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	p, err := buildPipeline(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer p.Close()

	parallel := evalParallel
	if parallel <= 0 {
		parallel = cfg.Eval.Parallelism
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "%s %d queries, %d at a time, started %s\n",
		titleStyle.Render("evaluating"), len(queries), max(parallel, 1), time.Now().Format(time.RFC3339))

	ev := eval.New(p.orch, parallel, eval.WithProgress(func(done, total int, row eval.Row) {
		status := okStyle.Render(row.Status)
		if row.Status != eval.StatusSuccess {
			status = errStyle.Render(row.Status)
		}
		fmt.Fprintf(errOut, "[%d/%d] %s %s %s\n", done, total, row.QueryID, status,
			dimStyle.Render(fmt.Sprintf("%s · %.2fs · %d tokens", row.VerificationStatus, row.LatencySeconds, row.Tokens)))
	}))

	rows, err := ev.Run(ctx, queries)
	if err != nil {
		logger.Warn("evaluation interrupted", zap.Error(err))
	}

	if err := os.MkdirAll(evalOutDir, 0755); err != nil {
		return err
	}
	csvPath := filepath.Join(evalOutDir, eval.ResultsFile(cfg.Eval.ResultsPrefix, time.Now()))
	f, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	if err := eval.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), eval.Summarize(rows, cfg.Eval.CostPerToken).String())
	fmt.Fprintf(cmd.OutOrStdout(), "Results saved to: %s\n", csvPath)
	return nil
}
