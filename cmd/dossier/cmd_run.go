package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dossier/internal/orchestrator"
	"dossier/internal/report"
	"dossier/internal/state"
)

var (
	runMode      string
	runFormat    string
	runExportDir string
	runNoHistory bool
	runQuiet     bool
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Plan, research, draft and verify a response to one query",
	Long: `Runs the Planner, Researcher, Writer and Verifier stages once, in order.
A failing stage is recorded in the report and the remaining stages still run.

Output formats:
  markdown  rendered report (default)
  console   plain listing
  json      full report as JSON
  text      downloadable plain-text summary`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", string(state.ModeExecutive), "Output mode: executive or analyst")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "markdown", "Output format: markdown, console, json, text")
	runCmd.Flags().StringVarP(&runExportDir, "export", "o", "", "Also write JSON, text summary and action CSV into this directory")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record this run in the history database")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress live stage progress")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	query := strings.Join(args, " ")
	mode, err := state.ParseMode(runMode)
	if err != nil {
		return err
	}
	if err := parseFormat(runFormat); err != nil {
		return err
	}

	opts := []orchestrator.Option{orchestrator.WithObserver(spanLogger())}
	if !runQuiet {
		opts = append(opts, orchestrator.WithObserver(progressPrinter(cmd.ErrOrStderr())))
	}
	p, err := buildPipeline(ctx, cfg, !runNoHistory, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("starting run", zap.String("query", query), zap.String("mode", string(mode)))
	r, err := p.orch.Run(ctx, query, mode)
	if err != nil {
		return err
	}

	if err := printReport(cmd, r, runFormat); err != nil {
		return err
	}

	if runExportDir != "" {
		paths, err := report.Export(runExportDir, r)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		for _, path := range paths {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", dimStyle.Render("wrote"), path)
		}
	}

	stats := p.client.Stats()
	logger.Info("run complete",
		zap.String("run_id", r.RunID),
		zap.String("verification", string(r.VerificationStatus)),
		zap.Int("errors", len(r.Errors)),
		zap.Int("llm_calls", stats.Calls),
		zap.Int("llm_failures", stats.Failures),
	)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n%s %s  %s\n", titleStyle.Render("run"), r.RunID, statusBadge(r.VerificationStatus))
	return nil
}

var reportFormats = []string{"markdown", "console", "json", "text"}

// parseFormat rejects an unknown --format before any paid work starts.
func parseFormat(format string) error {
	if format == "" || slices.Contains(reportFormats, format) {
		return nil
	}
	return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(reportFormats, ", "))
}

func printReport(cmd *cobra.Command, r *orchestrator.Report, format string) error {
	if err := parseFormat(format); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return report.WriteJSON(out, r)
	case "console":
		_, err := fmt.Fprint(out, report.Console(r))
		return err
	case "text":
		_, err := fmt.Fprint(out, report.Text(r))
		return err
	case "markdown", "":
		md := report.Markdown(r)
		if f, ok := out.(*os.File); ok && isTerminal(f) {
			md = renderMarkdown(md)
		}
		_, err := fmt.Fprint(out, md)
		return err
	}
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
