package scale

import (
	"encoding/json"
	"math"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
)

// QuantilePalette is a 21-step sequential ramp, one color per default
// probability.
var QuantilePalette = []string{
	"#2c7bb6", "#1a8cbe", "#099dc6", "#00aec7", "#00bdc2", "#00ccbc", "#3ad8b0",
	"#73e5a3", "#a6ef9a", "#d3f793", "#ffff8c", "#fdec77", "#fad962", "#f8c64f",
	"#f5b23e", "#f29e2e", "#ee8825", "#e9731c", "#e45819", "#dd391a", "#d7191c",
}

// DeltaPalette runs from purple for falls through near-white at zero to green
// for rises.
var DeltaPalette = []string{
	"#762a83", "#af8dc3", "#e7d4e8", "#f7f7f7", "#d9f0d3", "#7fbf7b", "#1b7837",
}

// Expression is a fill-color rule for a metric. It is either a Step or an
// Interpolate and renders to the MapLibre array form only through MarshalJSON.
type Expression interface {
	json.Marshaler
	Metric() domain.Metric
	expression()
}

// Step maps ascending thresholds to discrete colors. Values below the first
// threshold take the first color.
type Step struct {
	MetricName  domain.Metric
	Breakpoints []float64
	Colors      []string
	// UseLog compares ln(max(value, 1)) against ln(max(threshold, 1)).
	UseLog bool
}

// Interpolate blends linearly between colors placed at ascending stops.
type Interpolate struct {
	MetricName domain.Metric
	Stops      []float64
	Colors     []string
}

func (Step) expression() {}
func (Interpolate) expression() {}

func (s Step) Metric() domain.Metric { return s.MetricName }
func (i Interpolate) Metric() domain.Metric { return i.MetricName }

// NewStep builds a step expression. Log comparison is only enabled when the
// breakpoints have spread.
func NewStep(metric domain.Metric, breakpoints []float64, colors []string, useLog bool) Step {
	return Step{
		MetricName:  metric,
		Breakpoints: breakpoints,
		Colors:      colors,
		UseLog:      useLog && HasSpread(breakpoints),
	}
}

// NewInterpolate builds an interpolate expression.
func NewInterpolate(metric domain.Metric, stops []float64, colors []string) Interpolate {
	return Interpolate{MetricName: metric, Stops: stops, Colors: colors}
}

// ForAbsolute renders resolved absolute breakpoints with QuantilePalette. It
// returns nil when b is not available.
func ForAbsolute(metric domain.Metric, b Breaks) Expression {
	if !b.Available() {
		return nil
	}
	return NewStep(metric, b.Values, QuantilePalette, true)
}

// ForDelta renders delta stops with DeltaPalette.
func ForDelta(metric domain.Metric, stops []float64) Expression {
	return NewInterpolate(metric, stops, DeltaPalette)
}

// Thresholds returns the thresholds that will be emitted, after log
// transformation and removal of ties, paired with their color index.
func (s Step) Thresholds() ([]float64, []int) {
	if len(s.Breakpoints) == 0 {
		return nil, nil
	}
	last := s.transform(s.Breakpoints[0])
	var ts []float64
	var idx []int
	for i := 1; i < len(s.Breakpoints); i++ {
		t := s.transform(s.Breakpoints[i])
		if math.IsNaN(t) || !(t > last) {
			continue
		}
		ts = append(ts, t)
		idx = append(idx, colorIndex(i, len(s.Breakpoints), len(s.Colors)))
		last = t
	}
	return ts, idx
}

func (s Step) transform(v float64) float64 {
	if s.UseLog {
		return math.Log(math.Max(v, 1))
	}
	return v
}

func (s Step) input() any {
	get := []any{"get", string(s.MetricName)}
	if s.UseLog {
		return []any{"ln", []any{"max", 1, get}}
	}
	return get
}

// MarshalJSON renders ["step", input, c0, t1, c1, ...].
func (s Step) MarshalJSON() ([]byte, error) {
	out := []any{"step", s.input(), s.color(0)}
	ts, idx := s.Thresholds()
	for i := range ts {
		out = append(out, ts[i], s.color(idx[i]))
	}
	return json.Marshal(out)
}

func (s Step) color(i int) string {
	if len(s.Colors) == 0 {
		return "#000000"
	}
	return s.Colors[i]
}

// MarshalJSON renders ["interpolate", ["linear"], ["get", metric], s0, c0, ...].
// Stops that do not strictly increase are dropped.
func (i Interpolate) MarshalJSON() ([]byte, error) {
	out := []any{"interpolate", []any{"linear"}, []any{"get", string(i.MetricName)}}
	last := math.Inf(-1)
	for k, stop := range i.Stops {
		if math.IsNaN(stop) || !(stop > last) {
			continue
		}
		c := "#000000"
		if len(i.Colors) > 0 {
			c = i.Colors[colorIndex(k, len(i.Stops), len(i.Colors))]
		}
		out = append(out, stop, c)
		last = stop
	}
	return json.Marshal(out)
}

// colorIndex maps position i of n onto a palette of m colors, so palettes
// shorter or longer than the breakpoint list still span their full range.
func colorIndex(i, n, m int) int {
	if m == 0 {
		return 0
	}
	if n <= 1 || n == m {
		return min(i, m-1)
	}
	return i * (m - 1) / (n - 1)
}
