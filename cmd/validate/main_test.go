package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCells(t *testing.T) {
	rows := []domain.CellRow{
		{GX: 405000, GY: 285000, EndMonth: "2024-12-01", PropertyType: "ALL", NewBuild: "ALL", Median: 250000, TxCount: 12},
		{GX: 405500, GY: 285000, EndMonth: "2024-12-01", PropertyType: "ALL", NewBuild: "ALL", Median: 250000, TxCount: 12},
		{GX: 410000, GY: 285000, EndMonth: "2024-12", PropertyType: "d", NewBuild: "ALL", Median: 0, TxCount: -1},
		{GX: 405000, GY: 285000, EndMonth: "2024-12-01", PropertyType: "ALL", NewBuild: "ALL", Median: 251000, TxCount: 3},
	}

	p := validateCells(domain.Grid5km, rows)
	assert.False(t, p.passed())
	require.Len(t, p.errors, 6)
	assert.Contains(t, p.errors[0], "not a multiple of 5000")
	assert.Contains(t, p.errors[1], "not canonical")
	assert.Contains(t, p.errors[2], "YYYY-MM-01")
	assert.Contains(t, p.errors[3], "positive price")
	assert.Contains(t, p.errors[4], "negative")
	assert.Contains(t, p.errors[5], "duplicate cell 405000_285000")
}

func TestValidateDeltas(t *testing.T) {
	gx, gy := 400000.0, 300000.0
	good := domain.DeltaRow{
		GX10000: &gx, GY10000: &gy, PropertyType: "ALL", NewBuild: "ALL",
		PriceEarliest: 200000, PriceLatest: 210000, DeltaGBP: 10000, DeltaPct: 5,
		EndMonthEarliest: "2023-12-01", EndMonthLatest: "2024-12-01",
	}
	wrongArithmetic := good
	wrongArithmetic.DeltaGBP = 9000
	backwards := good
	backwards.EndMonthEarliest, backwards.EndMonthLatest = good.EndMonthLatest, good.EndMonthEarliest
	otherGrid := good
	otherGrid.GX10000, otherGrid.GY10000 = nil, nil
	otherGrid.GX5000, otherGrid.GY5000 = &gx, &gy

	assert.True(t, validateDeltas(domain.Grid10km, []domain.DeltaRow{good}).passed())

	p := validateDeltas(domain.Grid10km, []domain.DeltaRow{wrongArithmetic, backwards, otherGrid})
	require.Len(t, p.errors, 3)
	assert.Contains(t, p.errors[0], "delta_gbp")
	assert.Contains(t, p.errors[1], "not ascending")
	assert.Contains(t, p.errors[2], "no coordinates for 10km")
}

func TestValidateOutcodes(t *testing.T) {
	rows := []domain.CellRow{{GX: 400000, GY: 300000}, {GX: 425000, GY: 300000}}
	index := map[string][]string{
		"400000_300000": {"B1", "B2"},
		"410000_300000": {"B3"},
		"bad":           {"B4"},
	}

	p := validateOutcodes(domain.Grid25km, index, rows)
	assert.ElementsMatch(t, []string{
		`key "410000_300000" is not on the 25km grid`,
		`key "bad" is not {gx}_{gy}`,
		"1 cell rows have no outcode entry",
	}, p.errors)
}

func TestValidateEnvelope(t *testing.T) {
	rows := []domain.CellRow{
		{GX: 400000, GY: 300000},
		{GX: 400000, GY: 300000, PropertyType: "D"},
		{GX: 2000000, GY: 300000},
	}
	p := validateEnvelope(domain.Grid25km, rows)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "2000000_300000")
}

func TestRun_MissingCellSnapshotIsFatal(t *testing.T) {
	assert.Equal(t, 1, run(t.TempDir(), ""))
}

func TestRun_ValidDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, g := range domain.AllGrids {
		writeGz(t, dir, g.CellsKey(), []domain.CellRow{
			{GX: 400000, GY: 300000, EndMonth: "2024-12-01", PropertyType: "ALL", NewBuild: "ALL", Median: 250000, TxCount: 40},
		})
		writeGz(t, dir, g.OutcodeIndexKey(), map[string][]string{"400000_300000": {"CV1"}})
	}
	assert.Equal(t, 0, run(dir, ""))
}

func writeGz(t *testing.T, dir, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), buf.Bytes(), 0o600))
}
