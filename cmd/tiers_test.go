package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payout-recon/internal/model"
)

func TestLoadRates_Embedded(t *testing.T) {
	useConfig(t, t.TempDir())
	tiersRates = ""

	rc, calc, err := loadRates()
	require.NoError(t, err)
	assert.Equal(t, model.ModeTiered, rc.DefaultMode)
	_, ok := calc.Tier("COMERCIAL_INTERNO_AM_MANAUS")
	assert.True(t, ok)
}

func TestLoadRates_FromFlag(t *testing.T) {
	dir := t.TempDir()
	useConfig(t, dir)
	path := filepath.Join(dir, "rates.yaml")
	writeFile(t, path, `
tiers:
  RECEPCAO_PA_BELEM:
    - {min: 10, max: 19, value: 2}
    - {min: 20, value: 3}
`)
	tiersRates = path
	t.Cleanup(func() { tiersRates = "" })

	_, calc, err := loadRates()
	require.NoError(t, err)
	assert.Len(t, calc.Tiers(), 1)
	assert.True(t, decimal.NewFromInt(3).Equal(calc.Lookup("RECEPCAO_PA_BELEM", 25)))
}

func TestLoadRates_Invalid(t *testing.T) {
	dir := t.TempDir()
	useConfig(t, dir)
	path := filepath.Join(dir, "rates.yaml")
	writeFile(t, path, "default_mode: commission-by-vibes\n")
	tiersRates = path
	t.Cleanup(func() { tiersRates = "" })

	_, _, err := loadRates()
	assert.Error(t, err)
}

func TestFormatTiers(t *testing.T) {
	useConfig(t, t.TempDir())
	_, calc, err := loadRates()
	require.NoError(t, err)

	tier, ok := calc.Tier("COMERCIAL_EXTERNO_AM_MANAUS")
	require.True(t, ok)

	var buf bytes.Buffer
	formatTiers(&buf, []model.CommissionTier{tier})
	out := buf.String()
	assert.Contains(t, out, "COMERCIAL_EXTERNO_AM_MANAUS")
	assert.Contains(t, out, "7.50")
	assert.Contains(t, out, "15.00")
	assert.Contains(t, out, "-")
}

func TestFormatModes(t *testing.T) {
	useConfig(t, t.TempDir())
	rc, _, err := loadRates()
	require.NoError(t, err)

	var buf bytes.Buffer
	formatModes(&buf, rc)
	out := buf.String()
	assert.Contains(t, out, "Default mode: tiered")
	assert.Contains(t, out, "installer")
	assert.Contains(t, out, "flat_by_closer")
	assert.Contains(t, out, "LOBATOS")
	assert.Contains(t, out, "50.00")
}

func TestLookupTier_AppliesRegionAliases(t *testing.T) {
	useConfig(t, t.TempDir())
	_, calc, err := loadRates()
	require.NoError(t, err)

	key, unit := lookupTier(calc, "", "comercial interno", "PA BELEM", 100)
	assert.Equal(t, "COMERCIAL_INTERNO_PA", key)
	assert.Equal(t, "6.00", unit.StringFixed(2))

	key, unit = lookupTier(calc, "mania", "instalacao", "AM MANAUS", 200)
	assert.Equal(t, "PRODUCAO_INSTALACAO_MANIA", key)
	assert.Equal(t, "20.00", unit.StringFixed(2))
}

func TestFormatModes_ListsRegionAliases(t *testing.T) {
	useConfig(t, t.TempDir())
	rc, _, err := loadRates()
	require.NoError(t, err)

	var buf bytes.Buffer
	formatModes(&buf, rc)
	out := buf.String()
	assert.Contains(t, out, "Region aliases:")
	assert.Contains(t, out, "REGIONAIS")
	assert.Contains(t, out, "SANTAREM")
}
