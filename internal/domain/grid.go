package domain

import (
	"fmt"
	"strings"
)

// GridSize names one of the published cell resolutions.
type GridSize string

const (
	Grid1km  GridSize = "1km"
	Grid5km  GridSize = "5km"
	Grid10km GridSize = "10km"
	Grid25km GridSize = "25km"
)

// DefaultGrid is used when a request does not name a grid.
const DefaultGrid = Grid25km

// AllGrids lists every resolution in ascending cell size.
var AllGrids = []GridSize{Grid1km, Grid5km, Grid10km, Grid25km}

// ParseGridSize validates s against the known resolutions. An empty string
// yields DefaultGrid.
func ParseGridSize(s string) (GridSize, error) {
	if s == "" {
		return DefaultGrid, nil
	}
	g := GridSize(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case Grid1km, Grid5km, Grid10km, Grid25km:
		return g, nil
	}
	return "", fmt.Errorf("%w: grid %q", ErrInvalidQuery, s)
}

// Meters returns the cell edge length. Unknown sizes return 0.
func (g GridSize) Meters() float64 {
	switch g {
	case Grid1km:
		return 1000
	case Grid5km:
		return 5000
	case Grid10km:
		return 10000
	case Grid25km:
		return 25000
	}
	return 0
}

// HasDeltas reports whether a delta snapshot is published for g.
func (g GridSize) HasDeltas() bool {
	return g == Grid5km || g == Grid10km || g == Grid25km
}

// CellsKey is the object key of the full cell snapshot.
func (g GridSize) CellsKey() string {
	return fmt.Sprintf("grid_%s_full.json.gz", g)
}

// DeltasKey is the object key of the delta snapshot.
func (g GridSize) DeltasKey() string {
	return fmt.Sprintf("deltas_overall_%s.json.gz", g)
}

// OutcodeIndexKey is the object key of the cell-to-outcode index.
func (g GridSize) OutcodeIndexKey() string {
	return fmt.Sprintf("postcode_outcode_index_%s.json.gz", g)
}

// AutoGridForZoom picks a resolution for a map zoom level. Delta metrics never
// use the 1km grid because no delta snapshot exists for it.
func AutoGridForZoom(zoom float64, metric Metric) GridSize {
	switch {
	case zoom >= 8.2:
		if metric.IsDelta() {
			return Grid5km
		}
		return Grid1km
	case zoom >= 7:
		return Grid5km
	case zoom >= 5.6:
		return Grid10km
	default:
		return Grid25km
	}
}
