package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/pipeline"
	"github.com/sells-group/payout-recon/internal/report"
)

// reconcileOpts are the inputs shared by reconcile and watch.
type reconcileOpts struct {
	Records string
	Account string
	From    string
	To      string
	Role    string
	Format  string
	Out     string
}

var reconcileFlags reconcileOpts

var (
	reconcileLedgers string
	reconcileRates   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation and export the payout report",
	Long: `Loads every audit ledger, matches operational records by client and order,
applies session overrides and writes the payout lines and review list.

Records come either from a JSON file (--records) or from the ticketing API
for a configured account (--account with --from and --to).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := reconcileFlags
		if err := opts.validate(); err != nil {
			return err
		}
		if opts.Format != "" {
			cfg.Export.Format = opts.Format
		}

		env, err := initEnv(cmd.Context(), reconcileLedgers, reconcileRates)
		if err != nil {
			return err
		}
		defer env.Close()

		_, _, err = executeReconcile(cmd.Context(), env, opts, cmd.OutOrStdout())
		return err
	},
}

func (o reconcileOpts) validate() error {
	if o.Records == "" && o.Account == "" {
		return eris.New("one of --records or --account is required")
	}
	if o.Format != "" {
		if !slices.Contains(report.Formats, o.Format) {
			return eris.Errorf("unsupported --format %q", o.Format)
		}
	}
	return nil
}

// batchRecords reads records from file, or fetches them from the API when
// no file is given. --role fills in records that carry no role hint.
func batchRecords(ctx context.Context, opts reconcileOpts, w *pipeline.Window) ([]model.OperationalRecord, error) {
	if opts.Records == "" {
		return fetchRecords(ctx, opts.Account, w, opts.Role)
	}
	recs, err := readRecords(opts.Records)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].RoleHint == "" {
			recs[i].RoleHint = opts.Role
		}
		if recs[i].Account == "" {
			recs[i].Account = opts.Account
		}
	}
	return recs, nil
}

// executeReconcile runs one reconciliation, exports the report and prints
// the per-closer summary to out. It returns the result and the export path.
func executeReconcile(ctx context.Context, env *reconEnv, opts reconcileOpts, out io.Writer) (*pipeline.Result, string, error) {
	window, err := parseWindow(opts.From, opts.To)
	if err != nil {
		return nil, "", err
	}
	recs, err := batchRecords(ctx, opts, window)
	if err != nil {
		return nil, "", err
	}

	res, err := env.reconcile(ctx, opts.Account, recs, window)
	if err != nil {
		return nil, "", err
	}

	format := opts.Format
	if format == "" {
		format = cfg.Export.Format
	}
	path := opts.Out
	if path == "" {
		path = exportPath(cfg.Export.Dir, opts.Account, format, res.StartedAt)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", eris.Wrapf(err, "create export dir for %s", path)
	}
	if err := report.Export(path, format, res); err != nil {
		return nil, "", err
	}

	zap.L().Info("reconcile complete",
		zap.String("run_id", res.RunID),
		zap.String("export", path),
		zap.Int("lines", res.Stats.Lines),
		zap.Int("review", len(res.Review)),
	)

	if err := report.WriteTable(out, report.Summarize(res)); err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(out, "\nRun %s: %d lines, %d payable, %d pending, %d for review, total due %s\nReport: %s\n",
		res.RunID, res.Stats.Lines, res.Stats.Payable, res.Stats.Pending, len(res.Review),
		res.Stats.TotalDue.StringFixed(2), path)
	return res, path, nil
}

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&reconcileFlags.Records, "records", "", "JSON file of operational records")
	f.StringVar(&reconcileFlags.Account, "account", "", "ticketing account to fetch from (see hubsoft.accounts)")
	f.StringVar(&reconcileFlags.From, "from", "", "first closing date, YYYY-MM-DD")
	f.StringVar(&reconcileFlags.To, "to", "", "last closing date, YYYY-MM-DD")
	f.StringVar(&reconcileFlags.Role, "role", "", "role hint for records without one")
	f.StringVar(&reconcileFlags.Format, "format", "", "report format: csv, xlsx or json (default export.format)")
	f.StringVar(&reconcileFlags.Out, "out", "", "report path (default under export.dir)")
	f.StringVar(&reconcileLedgers, "ledgers", "", "ledger schema file (default ledgers.config)")
	f.StringVar(&reconcileRates, "rates", "", "commission rate table (default commission.rates or embedded)")
	rootCmd.AddCommand(reconcileCmd)
}
