// Package scale derives color breakpoints from a cell collection and renders
// them as MapLibre style expressions.
package scale

import (
	"math"
	"sort"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/feature"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/floats"
)

// DefaultProbabilities is dense in both tails so a few extreme cells do not
// flatten the rest of the map into one color.
var DefaultProbabilities = []float64{
	0, 0.01, 0.02, 0.03, 0.04, 0.05,
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9,
	0.95, 0.96, 0.97, 0.98, 0.99, 1,
}

// Weight is the influence of a cell with txCount sales. Cells with no
// recorded sales still count once.
func Weight(txCount float64) float64 {
	if txCount > 0 {
		return txCount
	}
	return 1
}

type sample struct {
	value  float64
	weight float64
}

// samples collects the finite values of metric with their weights.
func samples(fc *geojson.FeatureCollection, metric domain.Metric) []sample {
	if fc == nil {
		return nil
	}
	out := make([]sample, 0, len(fc.Features))
	for _, f := range fc.Features {
		v, ok := feature.Number(f, string(metric))
		if !ok {
			continue
		}
		tx, _ := feature.Number(f, feature.PropTxCount)
		out = append(out, sample{value: v, weight: Weight(tx)})
	}
	return out
}

// Values returns the finite values of metric in collection order.
func Values(fc *geojson.FeatureCollection, metric domain.Metric) []float64 {
	s := samples(fc, metric)
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].value
	}
	return out
}

// HasValues reports whether any feature carries a finite value for metric.
func HasValues(fc *geojson.FeatureCollection, metric domain.Metric) bool {
	if fc == nil {
		return false
	}
	for _, f := range fc.Features {
		if _, ok := feature.Number(f, string(metric)); ok {
			return true
		}
	}
	return false
}

// QuantileBreakpoints returns one weighted quantile per probability. Values are
// walked in ascending order and each probability takes the first value whose
// cumulative weight fraction reaches it; probabilities never reached take the
// maximum. With no finite values every breakpoint is NaN. probs must be
// ascending.
func QuantileBreakpoints(fc *geojson.FeatureCollection, metric domain.Metric, probs []float64) []float64 {
	out := make([]float64, len(probs))
	s := samples(fc, metric)
	if len(s) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	sort.Slice(s, func(i, j int) bool { return s[i].value < s[j].value })
	total := 0.0
	for i := range s {
		total += s[i].weight
	}

	j, cum := 0, 0.0
	for i := range s {
		cum += s[i].weight
		frac := cum / total
		for j < len(probs) && frac >= probs[j] {
			out[j] = s[i].value
			j++
		}
	}
	maxV := s[len(s)-1].value
	for ; j < len(probs); j++ {
		out[j] = maxV
	}
	return out
}

// HasSpread reports whether breakpoints are all finite and not all equal.
func HasSpread(b []float64) bool {
	if len(b) == 0 {
		return false
	}
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return floats.Max(b) > floats.Min(b)
}

// LinearBreakpoints spaces n values evenly between the observed minimum and
// maximum of metric. It returns nil when there are no finite values. When
// every value is equal all n breakpoints collapse to that value.
func LinearBreakpoints(fc *geojson.FeatureCollection, metric domain.Metric, n int) []float64 {
	vals := Values(fc, metric)
	if len(vals) == 0 || n <= 0 {
		return nil
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Breaks is the outcome of resolving an absolute scale.
type Breaks struct {
	Values []float64
	// Fallback is set when quantiles had no spread and linear spacing was used.
	Fallback bool
	// Degenerate is set when every value is identical, so even the linear
	// breakpoints are equal. The scale still renders, in a single color.
	Degenerate bool
}

// Available reports whether Values can drive a color expression.
func (b Breaks) Available() bool {
	return len(b.Values) > 0
}

// ResolveAbsolute computes quantile breakpoints and falls back to linear
// spacing when they have no spread. Values is nil when the collection has no
// finite values for metric.
func ResolveAbsolute(fc *geojson.FeatureCollection, metric domain.Metric, probs []float64) Breaks {
	if len(probs) == 0 {
		probs = DefaultProbabilities
	}
	q := QuantileBreakpoints(fc, metric, probs)
	if HasSpread(q) {
		return Breaks{Values: q}
	}
	lin := LinearBreakpoints(fc, metric, len(probs))
	if lin == nil {
		return Breaks{}
	}
	return Breaks{Values: lin, Fallback: true, Degenerate: !HasSpread(lin)}
}
