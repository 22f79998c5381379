package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payout-recon/internal/model"
)

func TestColumnIndex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		col  string
		want int
	}{
		{"A", 0},
		{"h", 7},
		{"Z", 25},
		{"AA", 26},
		{"AE", 30},
		{"AF", 31},
		{"AH", 33},
		{"", -1},
	}
	for _, tt := range tests {
		got, err := ColumnIndex(tt.col)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.col)
	}
	_, err := ColumnIndex("A1")
	assert.Error(t, err)
}

func TestSchemaValidate(t *testing.T) {
	t.Parallel()
	ok := Schema{Source: "51", Path: "x.xlsx", Columns: Columns{Client: "H", Order: "I", Status: "AH"}}
	assert.NoError(t, ok.Validate())

	presence := Schema{Source: "39", Path: "x.xlsx", Columns: Columns{Client: "D", Order: "E"}}
	assert.Error(t, presence.Validate())
	presence.PresenceStatus = "APROVADO"
	assert.NoError(t, presence.Validate())
	assert.True(t, presence.Presence())

	noOrder := ok
	noOrder.Columns.Order = ""
	assert.Error(t, noOrder.Validate())

	altOnly := presence
	altOnly.Columns.StatusAlt = "AF"
	assert.Error(t, altOnly.Validate())
}

func TestFileValidate(t *testing.T) {
	t.Parallel()
	f := File{Ledgers: []Schema{
		{Source: "51", Path: "a.xlsx", Columns: Columns{Client: "H", Order: "I", Status: "AH"}},
		{Source: "51", Path: "b.xlsx", Columns: Columns{Client: "H", Order: "I", Status: "AH"}},
	}}
	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate source")

	assert.Error(t, (&File{}).Validate())
}

const ledgersYAML = `
ledgers:
  - source: "51"
    priority: 1
    path: ledger51.xlsx
    start_row: 2
    columns: {client: H, order: I, status: AH}
  - source: "60"
    priority: 2
    path: /data/ledger60.csv
    columns: {client: D, order: E, status: AE, status_alt: AF}
  - source: "51_STM"
    priority: 3
    path: stm.xlsx
    columns: {client: C, order: D, status: AH}
policy:
  named_operators:
    - {closer: NADINEI, source: "51_STM", exclusive: true}
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ledgersYAML), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Ledgers, 3)
	assert.Equal(t, filepath.Join(dir, "ledger51.xlsx"), f.Ledgers[0].Path)
	assert.Equal(t, "/data/ledger60.csv", f.Ledgers[1].Path)
	assert.Equal(t, "AF", f.Ledgers[1].Columns.StatusAlt)
	require.Len(t, f.Policy.NamedOperators, 1)
	assert.Equal(t, model.SourceID("51_STM"), f.Policy.NamedOperators[0].Source)
	assert.True(t, f.Policy.NamedOperators[0].Exclusive)
}

func TestLoadFile_UnknownPolicySource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgers.yaml")
	body := `
ledgers:
  - {source: "51", priority: 1, path: a.csv, columns: {client: A, order: B, status: C}}
policy:
  named_operators:
    - {closer: NADINEI, source: "99"}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
