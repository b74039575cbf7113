package feature

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestBuild_SingleFiveKilometreCell(t *testing.T) {
	rows := []domain.CellRow{{
		GX: 405000, GY: 305000, EndMonth: "2024-12-01",
		PropertyType: domain.PropertyAll, NewBuild: domain.NewBuildAll,
		Median: 250000, TxCount: 12,
	}}

	fc := Build(rows, 5000)
	require.Len(t, fc.Features, 1)

	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	ring := poly[0]
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4], "ring must close on its first point")

	want := []orb.Point{
		{-1.927541, 52.642719}, // LL
		{-1.853648, 52.642651}, // LR
		{-1.853498, 52.687599}, // UR
		{-1.927467, 52.687668}, // UL
	}
	for i, w := range want {
		assert.InDelta(t, w[0], ring[i][0], 1e-5, "corner %d lon", i)
		assert.InDelta(t, w[1], ring[i][1], 1e-5, "corner %d lat", i)
	}

	props := fc.Features[0].Properties
	assert.Equal(t, 250000.0, props[PropMedian])
	assert.Equal(t, 12.0, props[PropTxCount])
	assert.Equal(t, "ALL", props[PropPropertyType])
	assert.Equal(t, "2024-12-01", props[PropEndMonth])
	assert.Equal(t, 0.0, props[PropDeltaGBP])
	assert.Equal(t, 0.0, props[PropDeltaPct])
	assert.Equal(t, 0.0, props[PropYearsStale])
}

func TestBuild_RingsStayInsideEnvelope(t *testing.T) {
	var rows []domain.CellRow
	for gx := 0.0; gx <= 700000; gx += 25000 {
		for gy := 0.0; gy <= 1300000; gy += 25000 {
			rows = append(rows, domain.CellRow{GX: gx, GY: gy, Median: 1, TxCount: 1})
		}
	}

	fc := Build(rows, 25000)
	require.NotEmpty(t, fc.Features)
	for _, f := range fc.Features {
		ring := f.Geometry.(orb.Polygon)[0]
		require.Len(t, ring, 5)
		assert.Equal(t, ring[0], ring[4])
		for _, p := range ring {
			assert.True(t, InEnvelope(p), "point %v outside envelope", p)
		}
	}
}

func TestBuild_DropsCellsOutsideEnvelope(t *testing.T) {
	rows := []domain.CellRow{
		{GX: -1000000, GY: 0},
		{GX: 1500000, GY: 500000},
		{GX: 400000, GY: -500000},
		{GX: 530000, GY: 180000, Median: 600000},
	}

	fc := Build(rows, 1000)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, 530000.0, fc.Features[0].Properties[PropGX])
}

func TestBuild_EmptyInput(t *testing.T) {
	fc := Build(nil, 1000)
	require.NotNil(t, fc)
	assert.Empty(t, fc.Features)

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}

func TestBuild_CarriesOptionalFields(t *testing.T) {
	rows := []domain.CellRow{{
		GX: 530000, GY: 180000, Median: 700000, TxCount: 4,
		DeltaGBP: ptr(-12000), DeltaPct: ptr(-1.7), PeriodsStale: ptr(2),
	}}

	fc := Build(rows, 1000)
	require.Len(t, fc.Features, 1)
	props := fc.Features[0].Properties
	assert.Equal(t, -12000.0, props[PropDeltaGBP])
	assert.Equal(t, -1.7, props[PropDeltaPct])
	assert.Equal(t, 2.0, props[PropYearsStale])
}

func TestBuildDeltas(t *testing.T) {
	x, y := 530000.0, 180000.0
	rows := []domain.DeltaRow{
		{GX5000: &x, GY5000: &y, PriceLatest: 650000, SalesLatest: 20, DeltaGBP: 50000, DeltaPct: 8.3},
		{PriceLatest: 1},
	}

	fc := BuildDeltas(rows, domain.Grid5km)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, 650000.0, fc.Features[0].Properties[PropMedian])
	assert.Equal(t, 8.3, fc.Features[0].Properties[PropDeltaPct])
}

func TestInEnvelope_RejectsNonFinite(t *testing.T) {
	assert.False(t, InEnvelope(orb.Point{math.NaN(), 52}))
	assert.False(t, InEnvelope(orb.Point{-2, math.Inf(1)}))
	assert.True(t, InEnvelope(orb.Point{-2, 52}))
	assert.True(t, InEnvelope(orb.Point{5, 62.8}), "bounds are inclusive")
}

func TestNumber(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties = geojson.Properties{
		"f":   1.5,
		"i":   3,
		"n":   json.Number("4.25"),
		"s":   "x",
		"nan": math.NaN(),
	}

	v, ok := Number(f, "f")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)
	v, ok = Number(f, "i")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
	v, ok = Number(f, "n")
	assert.True(t, ok)
	assert.Equal(t, 4.25, v)

	_, ok = Number(f, "s")
	assert.False(t, ok)
	_, ok = Number(f, "nan")
	assert.False(t, ok)
	_, ok = Number(f, "missing")
	assert.False(t, ok)
	_, ok = Number(nil, "f")
	assert.False(t, ok)
}
