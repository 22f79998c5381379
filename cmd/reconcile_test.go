package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payout-recon/internal/ledger"
	"github.com/sells-group/payout-recon/internal/model"
)

func TestParseWindow(t *testing.T) {
	w, err := parseWindow("", "")
	require.NoError(t, err)
	assert.Nil(t, w)

	_, err = parseWindow("2026-03-01", "")
	assert.Error(t, err)

	_, err = parseWindow("2026-03-31", "2026-03-01")
	assert.Error(t, err)

	_, err = parseWindow("03/01/2026", "2026-03-31")
	assert.Error(t, err)

	w, err = parseWindow("2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.NotNil(t, w)
	last := time.Date(2026, 3, 31, 23, 59, 0, 0, time.Local)
	assert.True(t, w.Contains(&last))
	next := time.Date(2026, 4, 1, 0, 0, 0, 0, time.Local)
	assert.False(t, w.Contains(&next))
}

func TestReadRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeRecords(t, dir, testRecords())

	recs, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "100", recs[0].ClientCode)
	require.NotNil(t, recs[0].ClosedAt)

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"records": 1}`)
	_, err = readRecords(bad)
	assert.Error(t, err)

	_, err = readRecords(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestExportPath(t *testing.T) {
	at := time.Date(2026, 3, 31, 18, 5, 9, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "payout_amazonet_20260331_180509.xlsx"), exportPath("out", "AMAZONET", "xlsx", at))
	assert.Equal(t, filepath.Join("out", "payout_records_20260331_180509.csv"), exportPath("out", "", "csv", at))
	assert.Equal(t, filepath.Join("out", "payout_mega_net_20260331_180509.json"), exportPath("out", "Mega Net", "json", at))
}

func TestReconcileOpts_Validate(t *testing.T) {
	assert.Error(t, reconcileOpts{}.validate())
	assert.Error(t, reconcileOpts{Records: "r.json", Format: "pdf"}.validate())
	assert.NoError(t, reconcileOpts{Records: "r.json", Format: "csv"}.validate())
	assert.NoError(t, reconcileOpts{Account: "amazonet"}.validate())
}

func TestBatchRecords_FillsRoleAndAccount(t *testing.T) {
	dir := t.TempDir()
	recs := testRecords()
	recs[0].RoleHint = ""
	recs[0].Account = ""
	path := writeRecords(t, dir, recs)

	got, err := batchRecords(t.Context(), reconcileOpts{Records: path, Role: "recepcao", Account: "MEGA"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "recepcao", got[0].RoleHint)
	assert.Equal(t, "MEGA", got[0].Account)
	assert.Equal(t, "installer", got[1].RoleHint)
	assert.Equal(t, "AMAZONET", got[1].Account)
}

func TestFetchRecords_RequiresWindow(t *testing.T) {
	useConfig(t, t.TempDir())
	_, err := fetchRecords(t.Context(), "amazonet", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--from and --to")
}

func TestExecuteReconcile_JSON(t *testing.T) {
	env, dir := testEnv(t)
	path := writeRecords(t, dir, testRecords())

	var out bytes.Buffer
	res, exported, err := executeReconcile(t.Context(), env, reconcileOpts{Records: path, Account: "AMAZONET"}, &out)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Stats.Lines)
	assert.Equal(t, 2, res.Stats.Payable)
	assert.Equal(t, 1, res.Stats.Pending)
	assert.True(t, decimal.NewFromInt(180).Equal(res.Stats.TotalDue), res.Stats.TotalDue.String())

	assert.Contains(t, out.String(), "JOAO LOBATOS")
	assert.Contains(t, out.String(), "180.00")
	assert.Contains(t, out.String(), exported)

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Contains(t, payload, "lines")
	assert.Contains(t, payload, "closers")

	runs, err := env.Store.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Payable)
}

func TestExecuteReconcile_CSVWritesReview(t *testing.T) {
	env, dir := testEnv(t)
	path := writeRecords(t, dir, testRecords())
	out := filepath.Join(dir, "report", "march.csv")

	_, exported, err := executeReconcile(t.Context(), env, reconcileOpts{Records: path, Format: "csv", Out: out}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, out, exported)

	_, err = os.Stat(out)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "report", "march_review.csv"))
	require.NoError(t, err)
}

func TestExecuteReconcile_Window(t *testing.T) {
	env, dir := testEnv(t)
	path := writeRecords(t, dir, testRecords())

	res, _, err := executeReconcile(t.Context(), env,
		reconcileOpts{Records: path, From: "2026-03-04", To: "2026-03-05"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Lines)
	assert.Equal(t, 2, res.Stats.OutOfWindow)
	assert.True(t, decimal.NewFromInt(90).Equal(res.Stats.TotalDue))
}

func TestExecuteReconcile_OverrideApplies(t *testing.T) {
	env, dir := testEnv(t)
	path := writeRecords(t, dir, testRecords())
	require.NoError(t, env.Overrides.Set(model.Key{Client: "100", Order: "A1"}, model.StatusRejected, "customer cancelled"))
	require.NoError(t, env.Overrides.Set(model.Key{Client: "400", Order: "D1"}, model.StatusApproved, ""))

	res, _, err := executeReconcile(t.Context(), env, reconcileOpts{Records: path}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Overridden)
	assert.Equal(t, 0, res.Stats.Pending)
	assert.True(t, decimal.NewFromInt(180).Equal(res.Stats.TotalDue))
}

func TestExecuteReconcile_LedgerUnavailable(t *testing.T) {
	env, dir := testEnv(t)
	path := writeRecords(t, dir, testRecords())
	require.NoError(t, os.Remove(filepath.Join(dir, "60.csv")))

	_, _, err := executeReconcile(t.Context(), env, reconcileOpts{Records: path}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, ledger.IsUnavailable(err))

	runs, err := env.Store.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
