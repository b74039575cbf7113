// Package feature turns snapshot rows into GeoJSON cell polygons in WGS84.
package feature

import (
	"math"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/geodesy"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// NationalEnvelope bounds every corner a plausible Great Britain cell can
// project to. Cells with any corner outside it are dropped.
var NationalEnvelope = orb.Bound{
	Min: orb.Point{-11, 48.5},
	Max: orb.Point{5, 62.8},
}

// Property names carried on every feature.
const (
	PropGX           = "gx"
	PropGY           = "gy"
	PropEndMonth     = "end_month"
	PropPropertyType = "property_type"
	PropNewBuild     = "new_build"
	PropMedian       = "median"
	PropTxCount      = "tx_count"
	PropDeltaGBP     = "delta_gbp"
	PropDeltaPct     = "delta_pct"
	PropYearsStale   = "years_stale"
)

// Build projects each row's cell to a closed WGS84 ring, ordered lower-left,
// lower-right, upper-right, upper-left and back to lower-left. Rows whose
// cell leaves NationalEnvelope are skipped. The result is never nil.
func Build(rows []domain.CellRow, cellSize float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(rows))

	for i := range rows {
		ring, ok := cellRing(rows[i].GX, rows[i].GY, cellSize)
		if !ok {
			continue
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties = properties(&rows[i])
		fc.Append(f)
	}
	return fc
}

// BuildDeltas normalizes delta rows for grid g and builds their cells.
func BuildDeltas(rows []domain.DeltaRow, g domain.GridSize) *geojson.FeatureCollection {
	return Build(domain.NormalizeDeltas(rows, g), g.Meters())
}

func cellRing(gx, gy, size float64) (orb.Ring, bool) {
	corners := [4][2]float64{
		{gx, gy},
		{gx + size, gy},
		{gx + size, gy + size},
		{gx, gy + size},
	}

	ring := make(orb.Ring, 0, 5)
	for _, c := range corners {
		lon, lat := geodesy.ToGeodetic(c[0], c[1])
		p := orb.Point{lon, lat}
		if !InEnvelope(p) {
			return nil, false
		}
		ring = append(ring, p)
	}
	return append(ring, ring[0]), true
}

// InEnvelope reports whether p is finite and inside NationalEnvelope.
func InEnvelope(p orb.Point) bool {
	if !isFinite(p[0]) || !isFinite(p[1]) {
		return false
	}
	return NationalEnvelope.Contains(p)
}

func properties(r *domain.CellRow) geojson.Properties {
	return geojson.Properties{
		PropGX:           r.GX,
		PropGY:           r.GY,
		PropEndMonth:     r.EndMonth,
		PropPropertyType: string(r.PropertyType),
		PropNewBuild:     string(r.NewBuild),
		PropMedian:       r.Median,
		PropTxCount:      r.TxCount,
		PropDeltaGBP:     orZero(r.DeltaGBP),
		PropDeltaPct:     orZero(r.DeltaPct),
		PropYearsStale:   orZero(r.PeriodsStale),
	}
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
