package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/payout-recon/internal/commission"
	"github.com/sells-group/payout-recon/internal/config"
	"github.com/sells-group/payout-recon/internal/ledger"
	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/recon"
	"github.com/sells-group/payout-recon/internal/resilience"
	"github.com/sells-group/payout-recon/internal/store"
)

// useConfig installs a test configuration rooted at dir.
func useConfig(t *testing.T, dir string) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "payout.db")},
		Export: config.ExportConfig{Format: "json", Dir: filepath.Join(dir, "out")},
		Retry:  config.RetryConfig{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 1},
		Watch:  config.WatchConfig{DebounceMs: 20},
		Server: config.ServerConfig{Port: 8080},
		Log:    config.LogConfig{Level: "error", Format: "console"},
	}
	t.Cleanup(func() { cfg = prev })
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// testLedgers writes two CSV ledgers: 51 (priority 1) and 60 (priority 2).
func testLedgers(t *testing.T, dir string) *ledger.File {
	t.Helper()
	writeFile(t, filepath.Join(dir, "51.csv"), "cliente,os,status\n100,A1,APROVADO\n200,B1,REPROVADO\n")
	writeFile(t, filepath.Join(dir, "60.csv"), "cliente,os,status\n300,C1,APROVADO\n")

	cols := ledger.Columns{Client: "A", Order: "B", Status: "C"}
	return &ledger.File{
		Ledgers: []ledger.Schema{
			{Source: "51", Priority: 1, Path: filepath.Join(dir, "51.csv"), StartRow: 2, Columns: cols},
			{Source: "60", Priority: 2, Path: filepath.Join(dir, "60.csv"), StartRow: 2, Columns: cols},
		},
		Policy: recon.PriorityPolicy{},
	}
}

// testEnv builds an environment over temp ledgers and a temp SQLite store,
// with the embedded rate table.
func testEnv(t *testing.T) (*reconEnv, string) {
	t.Helper()
	dir := t.TempDir()
	useConfig(t, dir)

	file := testLedgers(t, dir)
	st, err := store.NewSQLite(cfg.Store.DatabaseURL)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(t.Context()))

	rc, err := commission.DefaultConfig()
	require.NoError(t, err)
	calc, err := commission.New(*rc)
	require.NoError(t, err)

	retry := resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}
	env := newReconEnv(st, file, calc, ledger.FileReader{}, retry)
	t.Cleanup(env.Close)
	return env, dir
}

func closedAt(day int) *time.Time {
	ts := time.Date(2026, 3, day, 10, 0, 0, 0, time.Local)
	return &ts
}

// testRecords: two approved, one rejected and one unmatched order, all
// closed by a technician with a negotiated flat rate of 90.
func testRecords() []model.OperationalRecord {
	rec := func(client, order string, day int) model.OperationalRecord {
		return model.OperationalRecord{
			Account: "AMAZONET", ClientCode: client, OrderNumber: order,
			CloserName: "Joao Lobatos", RoleHint: "installer", ClosedAt: closedAt(day),
			Region: "AM MANAUS", State: "AM",
		}
	}
	return []model.OperationalRecord{
		rec("100", "A1", 3),
		rec("200", "B1", 4),
		rec("300", "C1", 5),
		rec("400", "D1", 6),
	}
}

func writeRecords(t *testing.T, dir string, recs []model.OperationalRecord) string {
	t.Helper()
	data, err := json.Marshal(recs)
	require.NoError(t, err)
	path := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
