package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGridSize(t *testing.T) {
	tests := []struct {
		in      string
		want    GridSize
		wantErr bool
	}{
		{"", Grid25km, false},
		{"1km", Grid1km, false},
		{"5KM", Grid5km, false},
		{" 10km ", Grid10km, false},
		{"25km", Grid25km, false},
		{"2km", "", true},
		{"5000", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGridSize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidQuery))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGridSize_MetersAndKeys(t *testing.T) {
	assert.Equal(t, 1000.0, Grid1km.Meters())
	assert.Equal(t, 5000.0, Grid5km.Meters())
	assert.Equal(t, 10000.0, Grid10km.Meters())
	assert.Equal(t, 25000.0, Grid25km.Meters())
	assert.Zero(t, GridSize("3km").Meters())

	assert.Equal(t, "grid_5km_full.json.gz", Grid5km.CellsKey())
	assert.Equal(t, "deltas_overall_10km.json.gz", Grid10km.DeltasKey())
	assert.Equal(t, "postcode_outcode_index_1km.json.gz", Grid1km.OutcodeIndexKey())

	assert.False(t, Grid1km.HasDeltas())
	assert.True(t, Grid5km.HasDeltas())
	assert.True(t, Grid25km.HasDeltas())
}

func TestAutoGridForZoom(t *testing.T) {
	assert.Equal(t, Grid1km, AutoGridForZoom(9, MetricMedian))
	assert.Equal(t, Grid5km, AutoGridForZoom(9, MetricDeltaPct))
	assert.Equal(t, Grid5km, AutoGridForZoom(7.5, MetricMedian))
	assert.Equal(t, Grid10km, AutoGridForZoom(6, MetricDeltaGBP))
	assert.Equal(t, Grid25km, AutoGridForZoom(4, MetricMedian))
}

func TestParseSegment(t *testing.T) {
	seg, err := ParseSegment("d", "y")
	require.NoError(t, err)
	assert.Equal(t, PropertyDetached, seg.PropertyType)
	assert.Equal(t, NewBuildYes, seg.NewBuild)

	seg, err = ParseSegment("", "")
	require.NoError(t, err)
	assert.Equal(t, Segment{PropertyType: PropertyAll, NewBuild: NewBuildAll}, seg)

	_, err = ParseSegment("X", "ALL")
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = ParseSegment("ALL", "maybe")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalizeEndMonth(t *testing.T) {
	assert.Equal(t, LatestMonth, NormalizeEndMonth(""))
	assert.Equal(t, LatestMonth, NormalizeEndMonth("latest"))
	assert.Equal(t, "2024-12-01", NormalizeEndMonth(" 2024-12-01 "))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricMedian, m)

	m, err = ParseMetric("DELTA_PCT")
	require.NoError(t, err)
	assert.True(t, m.IsDelta())
	assert.False(t, MetricMedian.IsDelta())

	_, err = ParseMetric("mean")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
