package scale

import (
	"math"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// deltaFractions place seven stops symmetrically around zero, denser near it.
var deltaFractions = []float64{-1, -0.5, -0.2, 0, 0.2, 0.5, 1}

// DefaultDeltaMaxAbs is the half-range used when a collection has no usable
// delta values.
var DefaultDeltaMaxAbs = map[domain.Metric]float64{
	domain.MetricDeltaGBP: 200000,
	domain.MetricDeltaPct: 30,
}

// MaxAbs returns the largest absolute finite value of metric, or false when
// there is none.
func MaxAbs(fc *geojson.FeatureCollection, metric domain.Metric) (float64, bool) {
	vals := Values(fc, metric)
	if len(vals) == 0 {
		return 0, false
	}
	m := 0.0
	for _, v := range vals {
		m = math.Max(m, math.Abs(v))
	}
	return m, true
}

// DeltaBreakpoints returns seven ascending stops at -1, -0.5, -0.2, 0, 0.2,
// 0.5 and 1 times the half-range, together with the half-range itself. A
// collection with no finite values, or only zeros, uses DefaultDeltaMaxAbs.
func DeltaBreakpoints(fc *geojson.FeatureCollection, metric domain.Metric) ([]float64, float64) {
	maxAbs, ok := MaxAbs(fc, metric)
	if !ok || maxAbs == 0 {
		maxAbs = DefaultDeltaMaxAbs[metric]
		if maxAbs == 0 {
			maxAbs = 1
		}
	}
	stops := make([]float64, len(deltaFractions))
	for i, f := range deltaFractions {
		stops[i] = f * maxAbs
	}
	return stops, maxAbs
}
