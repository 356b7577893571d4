package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dossier/internal/extract"
	"dossier/internal/history"
)

var (
	historyLimit  int
	historyFormat string
	historyKeep   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print the report of a past run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest runs",
	RunE:  runHistoryPrune,
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	historyShowCmd.Flags().StringVarP(&historyFormat, "format", "f", "markdown", "Output format: markdown, console, json, text")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 100, "Runs to keep")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

func openHistory() (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("run history is disabled in %s", configPath)
	}
	return history.Open(cfg.History.DatabasePath)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	entries, err := h.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no runs recorded yet"))
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tWHEN\tMODE\tSTATUS\tERRORS\tTOKENS\tQUERY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.RunID, e.Timestamp.Local().Format("2006-01-02 15:04"), e.Mode, e.VerificationStatus,
			e.ErrorCount, e.UsageUnits, extract.Truncate(e.Query, 60))
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	if err := parseFormat(historyFormat); err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	r, err := h.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return printReport(cmd, r, historyFormat)
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	n, err := h.Prune(ctx, historyKeep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d runs\n", n)
	return nil
}
