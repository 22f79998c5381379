package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/commission"
	"github.com/sells-group/payout-recon/internal/ledger"
	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/override"
	"github.com/sells-group/payout-recon/internal/pipeline"
	"github.com/sells-group/payout-recon/internal/resilience"
	"github.com/sells-group/payout-recon/internal/store"
	"github.com/sells-group/payout-recon/pkg/hubsoft"
)

// reconEnv holds the store, session overrides, ledger loader and pipeline
// needed by the reconcile, watch and serve commands.
type reconEnv struct {
	Store     store.Store
	Overrides *override.Store
	Ledgers   *ledger.File
	Loader    *ledger.Loader
	Pipeline  *pipeline.Pipeline
}

func newReconEnv(st store.Store, file *ledger.File, calc *commission.Calculator, reader ledger.Reader, retry resilience.RetryConfig) *reconEnv {
	ovs := override.New()
	return &reconEnv{
		Store:     st,
		Overrides: ovs,
		Ledgers:   file,
		Loader:    ledger.NewLoader(reader, retry),
		Pipeline:  pipeline.New(calc, file.Policy, ovs),
	}
}

// Close releases resources held by the environment.
func (e *reconEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv loads the ledger schemas and rate table, opens the store and
// imports persisted overrides into a fresh session. Callers should defer
// env.Close().
func initEnv(ctx context.Context, ledgersPath, ratesPath string) (*reconEnv, error) {
	if err := cfg.Validate("reconcile"); err != nil {
		return nil, err
	}
	if ledgersPath == "" {
		ledgersPath = cfg.Ledgers.Config
	}
	if ratesPath == "" {
		ratesPath = cfg.Commission.Rates
	}

	file, err := ledger.LoadFile(ledgersPath)
	if err != nil {
		return nil, err
	}
	calc, err := initCalculator(ratesPath)
	if err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := newReconEnv(st, file, calc, ledger.FileReader{}, retryConfig())
	if err := env.Overrides.Import(ctx, st); err != nil {
		env.Close()
		return nil, err
	}

	zap.L().Info("environment ready",
		zap.String("ledgers", ledgersPath),
		zap.Int("ledger_count", len(file.Ledgers)),
		zap.Int("overrides", len(env.Overrides.All())),
		zap.Int("exclusions", len(env.Overrides.Excluded())),
	)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store)
}

func initCalculator(path string) (*commission.Calculator, error) {
	rc, err := commission.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return commission.New(*rc)
}

func retryConfig() resilience.RetryConfig {
	return resilience.RetryConfigFrom(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
}

// reconcile loads a fresh ledger snapshot, runs the pipeline and records the
// run summary. A failed summary write is logged, not returned.
func (e *reconEnv) reconcile(ctx context.Context, account string, records []model.OperationalRecord, window *pipeline.Window) (*pipeline.Result, error) {
	snap, err := e.Loader.Load(ctx, e.Ledgers.Ledgers)
	if err != nil {
		return nil, err
	}

	res, err := e.Pipeline.Run(pipeline.Batch{
		Account:  account,
		Records:  records,
		Snapshot: snap,
		Window:   window,
	})
	if err != nil {
		return nil, err
	}

	if e.Store != nil {
		if err := e.Store.RecordRun(ctx, res.Summary()); err != nil {
			zap.L().Warn("record run failed", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	return res, nil
}

// readRecords reads a JSON array of operational records.
func readRecords(path string) ([]model.OperationalRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read records %s", path)
	}
	var recs []model.OperationalRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, eris.Wrapf(err, "parse records %s", path)
	}
	return recs, nil
}

// parseWindow turns --from/--to dates into an inclusive window covering both
// whole days. Both empty means no window.
func parseWindow(from, to string) (*pipeline.Window, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, eris.New("both --from and --to are required for a date window")
	}
	f, err := time.ParseInLocation(time.DateOnly, from, time.Local)
	if err != nil {
		return nil, eris.Wrapf(err, "parse --from %q", from)
	}
	t, err := time.ParseInLocation(time.DateOnly, to, time.Local)
	if err != nil {
		return nil, eris.Wrapf(err, "parse --to %q", to)
	}
	if t.Before(f) {
		return nil, eris.Errorf("--to %s is before --from %s", to, from)
	}
	return &pipeline.Window{From: f, To: t.Add(24*time.Hour - time.Nanosecond)}, nil
}

// fetchRecords pulls closed orders for one configured account.
func fetchRecords(ctx context.Context, account string, w *pipeline.Window, role string) ([]model.OperationalRecord, error) {
	if w == nil {
		return nil, eris.New("--from and --to are required with --account")
	}
	if err := cfg.Validate("fetch"); err != nil {
		return nil, err
	}
	acct, err := cfg.Account(account)
	if err != nil {
		return nil, err
	}

	client := hubsoft.NewClient(hubsoft.Credentials{
		Account:      account,
		APIBase:      acct.APIBase,
		TokenURL:     acct.TokenURL,
		ClientID:     acct.ClientID,
		ClientSecret: acct.ClientSecret,
		User:         acct.User,
		Password:     acct.Password,
	},
		hubsoft.WithRateLimit(cfg.HubSoft.RatePerSec),
		hubsoft.WithPaging(cfg.HubSoft.ItemsPerPage, cfg.HubSoft.MaxPages),
		hubsoft.WithRetry(retryConfig()),
		hubsoft.WithTimeout(time.Duration(acct.TimeoutSecs)*time.Second),
	)

	return client.FetchOrders(ctx, hubsoft.OrdersQuery{
		From:      w.From,
		To:        w.To,
		DateField: hubsoft.DateFinished,
		RoleHint:  role,
	})
}

// exportPath names the report file for one run.
func exportPath(dir, account, format string, at time.Time) string {
	name := strings.ToLower(strings.TrimSpace(account))
	if name == "" {
		name = "records"
	}
	name = strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return filepath.Join(dir, fmt.Sprintf("payout_%s_%s.%s", name, at.Format("20060102_150405"), format))
}
