package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/payout-recon/internal/model"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded reconciliation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals across recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

// runStats holds aggregate run statistics.
type runStats struct {
	Total    int
	Lines    int
	Payable  int
	Pending  int
	Review   int
	TotalDue decimal.Decimal
	Accounts map[string]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.RunSummary) runStats {
	s := runStats{Total: len(runs), TotalDue: decimal.Zero, Accounts: make(map[string]int)}
	for _, r := range runs {
		s.Lines += r.Lines
		s.Payable += r.Payable
		s.Pending += r.Pending
		s.Review += r.Review
		s.TotalDue = s.TotalDue.Add(r.TotalDue)
		s.Accounts[accountLabel(r.Account)]++
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tACCOUNT\tSTARTED\tLINES\tPAYABLE\tPENDING\tREVIEW\tTOTAL_DUE")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t-----\t-------\t-------\t------\t---------")

	for _, r := range runs {
		account := accountLabel(r.Account)
		if len(account) > 30 {
			account = account[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			account,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Lines,
			r.Payable,
			r.Pending,
			r.Review,
			r.TotalDue.StringFixed(2),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Lines:\t%d\n", s.Lines)
	_, _ = fmt.Fprintf(w, "  Payable:\t%d\n", s.Payable)
	_, _ = fmt.Fprintf(w, "  Pending:\t%d\n", s.Pending)
	_, _ = fmt.Fprintf(w, "Review items:\t%d\n", s.Review)
	_, _ = fmt.Fprintf(w, "Total due:\t%s\n", s.TotalDue.StringFixed(2))
	accounts := make([]string, 0, len(s.Accounts))
	for a := range s.Accounts {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	for _, a := range accounts {
		_, _ = fmt.Fprintf(w, "  %s:\t%d runs\n", a, s.Accounts[a])
	}
	_ = w.Flush()
}

func accountLabel(a string) string {
	if a == "" {
		return "-"
	}
	return a
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsCmd.PersistentFlags().IntVar(&runsLimit, "limit", 50, "maximum number of runs")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
