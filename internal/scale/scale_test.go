package scale

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/feature"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collection(metric domain.Metric, values, txs []float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, v := range values {
		f := geojson.NewFeature(orb.Point{0, 0})
		f.Properties = geojson.Properties{string(metric): v}
		if txs != nil {
			f.Properties[feature.PropTxCount] = txs[i]
		}
		fc.Append(f)
	}
	return fc
}

func TestWeight(t *testing.T) {
	assert.Equal(t, 5.0, Weight(5))
	assert.Equal(t, 1.0, Weight(0))
	assert.Equal(t, 1.0, Weight(-3))
}

func TestQuantileBreakpoints_Weighted(t *testing.T) {
	fc := collection(domain.MetricMedian, []float64{200, 100}, []float64{3, 1})

	got := QuantileBreakpoints(fc, domain.MetricMedian, []float64{0, 0.25, 0.5, 1})
	assert.Equal(t, []float64{100, 100, 200, 200}, got)
}

func TestQuantileBreakpoints_PadsUnreachedWithMax(t *testing.T) {
	fc := collection(domain.MetricMedian, []float64{1, 2, 3}, nil)

	got := QuantileBreakpoints(fc, domain.MetricMedian, []float64{0.5, 1.5, 2})
	assert.Equal(t, []float64{2, 3, 3}, got)
}

func TestQuantileBreakpoints_EmptyIsNaN(t *testing.T) {
	got := QuantileBreakpoints(geojson.NewFeatureCollection(), domain.MetricMedian, DefaultProbabilities)
	require.Len(t, got, len(DefaultProbabilities))
	for _, v := range got {
		assert.True(t, math.IsNaN(v))
	}
	assert.False(t, HasSpread(got))

	got = QuantileBreakpoints(nil, domain.MetricMedian, []float64{0.5})
	assert.True(t, math.IsNaN(got[0]))
}

func TestQuantileBreakpoints_SkipsNonFinite(t *testing.T) {
	fc := collection(domain.MetricMedian, []float64{math.NaN(), 10, math.Inf(1), 20}, nil)

	got := QuantileBreakpoints(fc, domain.MetricMedian, []float64{0, 1})
	assert.Equal(t, []float64{10, 20}, got)
}

func TestQuantileBreakpoints_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 25; run++ {
		n := 1 + rng.Intn(300)
		vals := make([]float64, n)
		txs := make([]float64, n)
		for i := range vals {
			vals[i] = math.Exp(rng.Float64()*5) * 10000
			txs[i] = float64(rng.Intn(20))
		}
		got := QuantileBreakpoints(collection(domain.MetricMedian, vals, txs), domain.MetricMedian, DefaultProbabilities)
		assert.True(t, sort.Float64sAreSorted(got), "run %d: %v", run, got)

		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		assert.Equal(t, sorted[0], got[0])
		assert.Equal(t, sorted[n-1], got[len(got)-1])
	}
}

func TestQuantileBreakpoints_ZeroAndOneSalesWeighEqually(t *testing.T) {
	vals := []float64{120000, 95000, 310000, 150000, 150000, 88000}
	zero := collection(domain.MetricMedian, vals, []float64{0, 0, 0, 0, 0, 0})
	one := collection(domain.MetricMedian, vals, []float64{1, 1, 1, 1, 1, 1})
	missing := collection(domain.MetricMedian, vals, nil)

	want := QuantileBreakpoints(one, domain.MetricMedian, DefaultProbabilities)
	assert.Equal(t, want, QuantileBreakpoints(zero, domain.MetricMedian, DefaultProbabilities))
	assert.Equal(t, want, QuantileBreakpoints(missing, domain.MetricMedian, DefaultProbabilities))
}

func TestQuantileBreakpoints_ZeroSalesWeighLessThanBusyCell(t *testing.T) {
	vals := []float64{100, 200}
	p50 := []float64{0.5}

	busy := collection(domain.MetricMedian, vals, []float64{0, 50})
	assert.Equal(t, []float64{200}, QuantileBreakpoints(busy, domain.MetricMedian, p50))

	quiet := collection(domain.MetricMedian, vals, []float64{0, 1})
	assert.Equal(t, []float64{100}, QuantileBreakpoints(quiet, domain.MetricMedian, p50))

	assert.Less(t, Weight(0), Weight(50))
}

func TestHasSpread(t *testing.T) {
	assert.True(t, HasSpread([]float64{1, 2}))
	assert.False(t, HasSpread([]float64{3, 3, 3}))
	assert.False(t, HasSpread([]float64{1, math.NaN()}))
	assert.False(t, HasSpread(nil))
}

func TestLinearBreakpoints(t *testing.T) {
	fc := collection(domain.MetricMedian, []float64{300, 100, 200}, nil)
	assert.Equal(t, []float64{100, 150, 200, 250, 300}, LinearBreakpoints(fc, domain.MetricMedian, 5))
	assert.Equal(t, []float64{100}, LinearBreakpoints(fc, domain.MetricMedian, 1))
	assert.Nil(t, LinearBreakpoints(geojson.NewFeatureCollection(), domain.MetricMedian, 5))
}

func TestResolveAbsolute_UsesQuantilesWhenSpread(t *testing.T) {
	fc := collection(domain.MetricMedian, []float64{100, 200, 300, 400}, nil)

	b := ResolveAbsolute(fc, domain.MetricMedian, nil)
	require.True(t, b.Available())
	assert.False(t, b.Fallback)
	assert.False(t, b.Degenerate)
	assert.Len(t, b.Values, len(DefaultProbabilities))
}

func TestResolveAbsolute_AllIdenticalCollapses(t *testing.T) {
	fc := collection(domain.MetricMedian, []float64{300000, 300000, 300000}, []float64{4, 9, 1})

	b := ResolveAbsolute(fc, domain.MetricMedian, DefaultProbabilities)
	require.True(t, b.Available())
	assert.True(t, b.Fallback)
	assert.True(t, b.Degenerate)
	for _, v := range b.Values {
		assert.Equal(t, 300000.0, v)
	}

	expr := ForAbsolute(domain.MetricMedian, b)
	require.NotNil(t, expr)
	data, err := json.Marshal(expr)
	require.NoError(t, err)
	assert.JSONEq(t, `["step",["get","median"],"#2c7bb6"]`, string(data))
}

func TestResolveAbsolute_NoValues(t *testing.T) {
	b := ResolveAbsolute(geojson.NewFeatureCollection(), domain.MetricMedian, DefaultProbabilities)
	assert.False(t, b.Available())
	assert.Nil(t, ForAbsolute(domain.MetricMedian, b))
}

func TestDeltaBreakpoints_Symmetric(t *testing.T) {
	fc := collection(domain.MetricDeltaGBP, []float64{-5000, 12000, -48000, 3000}, nil)

	stops, maxAbs := DeltaBreakpoints(fc, domain.MetricDeltaGBP)
	assert.Equal(t, 48000.0, maxAbs)
	require.Len(t, stops, 7)
	assert.Equal(t, []float64{-48000, -24000, -9600, 0, 9600, 24000, 48000}, stops)
	for i := range stops {
		assert.Equal(t, -stops[len(stops)-1-i], stops[i])
	}
}

func TestDeltaBreakpoints_Defaults(t *testing.T) {
	stops, maxAbs := DeltaBreakpoints(geojson.NewFeatureCollection(), domain.MetricDeltaPct)
	assert.Equal(t, 30.0, maxAbs)
	assert.Equal(t, -30.0, stops[0])
	assert.Equal(t, 30.0, stops[6])

	zeros := collection(domain.MetricDeltaGBP, []float64{0, 0}, nil)
	_, maxAbs = DeltaBreakpoints(zeros, domain.MetricDeltaGBP)
	assert.Equal(t, 200000.0, maxAbs)
}

func TestStep_MarshalJSON_SkipsTiedThresholds(t *testing.T) {
	s := NewStep(domain.MetricMedian, []float64{10, 20, 20, 30}, []string{"a", "b", "c", "d"}, false)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["step",["get","median"],"a",20,"b",30,"d"]`, string(data))
}

func TestStep_MarshalJSON_Log(t *testing.T) {
	s := NewStep(domain.MetricMedian, []float64{0.5, math.E, math.E * math.E}, []string{"a", "b", "c"}, true)
	require.True(t, s.UseLog)

	ts, idx := s.Thresholds()
	require.Len(t, ts, 2)
	assert.InDelta(t, 1, ts[0], 1e-12)
	assert.InDelta(t, 2, ts[1], 1e-12)
	assert.Equal(t, []int{1, 2}, idx)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var arr []any
	require.NoError(t, json.Unmarshal(data, &arr))
	assert.Equal(t, "step", arr[0])
	assert.Equal(t, []any{"ln", []any{"max", 1.0, []any{"get", "median"}}}, arr[1])
	assert.Equal(t, "a", arr[2])
}

func TestNewStep_LogNeedsSpread(t *testing.T) {
	s := NewStep(domain.MetricMedian, []float64{5, 5}, QuantilePalette, true)
	assert.False(t, s.UseLog)
}

func TestInterpolate_MarshalJSON(t *testing.T) {
	stops, _ := DeltaBreakpoints(collection(domain.MetricDeltaPct, []float64{-10, 4}, nil), domain.MetricDeltaPct)
	expr := ForDelta(domain.MetricDeltaPct, stops)
	assert.Equal(t, domain.MetricDeltaPct, expr.Metric())

	data, err := json.Marshal(expr)
	require.NoError(t, err)
	assert.JSONEq(t, `["interpolate",["linear"],["get","delta_pct"],
		-10,"#762a83",-5,"#af8dc3",-2,"#e7d4e8",0,"#f7f7f7",2,"#d9f0d3",5,"#7fbf7b",10,"#1b7837"]`, string(data))
}

func TestColorIndex(t *testing.T) {
	assert.Equal(t, 3, colorIndex(3, 21, 21))
	assert.Equal(t, 0, colorIndex(0, 7, 3))
	assert.Equal(t, 2, colorIndex(6, 7, 3))
	assert.Equal(t, 1, colorIndex(3, 7, 3))
	assert.Equal(t, 0, colorIndex(4, 5, 0))
}

func TestPalettes(t *testing.T) {
	assert.Len(t, QuantilePalette, len(DefaultProbabilities))
	assert.Len(t, DeltaPalette, 7)
}
