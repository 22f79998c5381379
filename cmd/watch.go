package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/ledger"
)

var (
	watchFlags   reconcileOpts
	watchLedgers string
	watchRates   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run reconcile whenever a ledger file changes",
	Long:  "Runs reconcile once, then again each time a ledger (or the --records file) is written. Bursts of writes are collapsed by watch.debounce_ms.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := watchFlags
		if err := opts.validate(); err != nil {
			return err
		}
		if opts.Format != "" {
			cfg.Export.Format = opts.Format
		}

		env, err := initEnv(ctx, watchLedgers, watchRates)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		rerun := func() {
			// Overrides set from another process since the last run.
			if err := env.Overrides.Import(ctx, env.Store); err != nil {
				zap.L().Warn("watch: reload overrides", zap.Error(err))
			}
			if _, _, err := executeReconcile(ctx, env, opts, out); err != nil {
				zap.L().Error("watch: reconcile failed", zap.Error(err))
			}
		}
		rerun()

		files := watchedFiles(env.Ledgers, opts.Records)
		debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
		return watchFiles(ctx, files, debounce, rerun)
	},
}

// watchedFiles lists the absolute paths whose changes trigger a run.
func watchedFiles(file *ledger.File, records string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, s := range file.Ledgers {
		add(s.Path)
	}
	add(records)
	return out
}

// watchFiles blocks until ctx is done, calling fn once per burst of writes
// to any of files. Parent directories are watched so that editors which
// replace files on save are still seen.
func watchFiles(ctx context.Context, files []string, debounce time.Duration, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "watch: create watcher")
	}
	defer w.Close() //nolint:errcheck

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		targets[filepath.Clean(f)] = true
		dirs[filepath.Dir(f)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return eris.Wrapf(err, "watch: add %s", d)
		}
	}

	d := newDebouncer(debounce, fn)
	defer d.Stop()

	zap.L().Info("watching ledgers", zap.Strings("files", files), zap.Duration("debounce", debounce))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				zap.L().Debug("ledger changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
				d.Trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("watch: watcher error", zap.Error(err))
		}
	}
}

// debouncer runs fn once after the last Trigger in a burst. Runs never
// overlap.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
	run   sync.Mutex
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.run.Lock()
		defer d.run.Unlock()
		d.fn()
	})
}

// Stop cancels a pending run.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.Records, "records", "", "JSON file of operational records")
	f.StringVar(&watchFlags.Account, "account", "", "ticketing account to fetch from")
	f.StringVar(&watchFlags.From, "from", "", "first closing date, YYYY-MM-DD")
	f.StringVar(&watchFlags.To, "to", "", "last closing date, YYYY-MM-DD")
	f.StringVar(&watchFlags.Role, "role", "", "role hint for records without one")
	f.StringVar(&watchFlags.Format, "format", "", "report format: csv, xlsx or json")
	f.StringVar(&watchFlags.Out, "out", "", "report path, rewritten on every run")
	f.StringVar(&watchLedgers, "ledgers", "", "ledger schema file (default ledgers.config)")
	f.StringVar(&watchRates, "rates", "", "commission rate table")
	rootCmd.AddCommand(watchCmd)
}
