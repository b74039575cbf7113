package domain

import (
	"fmt"
	"math"
)

// CellRow is one cell, segment and period of a cell snapshot.
type CellRow struct {
	GX           float64      `json:"gx"`
	GY           float64      `json:"gy"`
	EndMonth     string       `json:"end_month"`
	PropertyType PropertyType `json:"property_type"`
	NewBuild     NewBuild     `json:"new_build"`
	Median       float64      `json:"median"`
	TxCount      float64      `json:"tx_count"`

	DeltaGBP     *float64 `json:"delta_gbp,omitempty"`
	DeltaPct     *float64 `json:"delta_pct,omitempty"`
	PeriodsStale *float64 `json:"years_stale,omitempty"`
}

// Matches reports whether r belongs to the segment and resolved period of f.
// f.EndMonth must already be resolved from LatestMonth.
func (r *CellRow) Matches(f CellFilter) bool {
	return r.EndMonth == f.EndMonth &&
		r.PropertyType == f.PropertyType &&
		r.NewBuild == f.NewBuild
}

// DeltaRow is one cell and segment of a delta snapshot. Coordinates are
// published once per grid size; only the pair matching the snapshot's grid is
// set.
type DeltaRow struct {
	GX5000    *float64 `json:"gx_5000,omitempty"`
	GY5000    *float64 `json:"gy_5000,omitempty"`
	GX10000   *float64 `json:"gx_10000,omitempty"`
	GY10000   *float64 `json:"gy_10000,omitempty"`
	GX25000   *float64 `json:"gx_25000,omitempty"`
	GY25000   *float64 `json:"gy_25000,omitempty"`
	Cell5000  string   `json:"cell_5000,omitempty"`
	Cell10000 string   `json:"cell_10000,omitempty"`
	Cell25000 string   `json:"cell_25000,omitempty"`

	PropertyType     PropertyType `json:"property_type"`
	NewBuild         NewBuild     `json:"new_build"`
	PriceEarliest    float64      `json:"price_earliest"`
	SalesEarliest    float64      `json:"sales_earliest"`
	PriceLatest      float64      `json:"price_latest"`
	SalesLatest      float64      `json:"sales_latest"`
	DeltaGBP         float64      `json:"delta_gbp"`
	DeltaPct         float64      `json:"delta_pct"`
	EndMonthEarliest string       `json:"end_month_earliest"`
	EndMonthLatest   string       `json:"end_month_latest"`
	YearsDelta       float64      `json:"years_delta"`
}

// Coords returns the lower-left corner for grid g.
func (d *DeltaRow) Coords(g GridSize) (gx, gy float64, ok bool) {
	var x, y *float64
	switch g {
	case Grid5km:
		x, y = d.GX5000, d.GY5000
	case Grid10km:
		x, y = d.GX10000, d.GY10000
	case Grid25km:
		x, y = d.GX25000, d.GY25000
	}
	if x == nil || y == nil {
		return 0, 0, false
	}
	return *x, *y, true
}

// Normalize converts d into a CellRow for grid g: the latest price and sales
// become median and tx_count, and both deltas are carried as optional fields.
// It returns false when d has no coordinates for g.
func (d *DeltaRow) Normalize(g GridSize) (CellRow, bool) {
	gx, gy, ok := d.Coords(g)
	if !ok {
		return CellRow{}, false
	}
	gbp, pct := d.DeltaGBP, d.DeltaPct
	return CellRow{
		GX:           gx,
		GY:           gy,
		EndMonth:     d.EndMonthLatest,
		PropertyType: d.PropertyType,
		NewBuild:     d.NewBuild,
		Median:       d.PriceLatest,
		TxCount:      d.SalesLatest,
		DeltaGBP:     &gbp,
		DeltaPct:     &pct,
	}, true
}

// NormalizeDeltas converts every row with coordinates for g. Rows without
// them are dropped.
func NormalizeDeltas(rows []DeltaRow, g GridSize) []CellRow {
	out := make([]CellRow, 0, len(rows))
	for i := range rows {
		if r, ok := rows[i].Normalize(g); ok {
			out = append(out, r)
		}
	}
	return out
}

// CellKey formats the outcode-index key of the cell at (gx, gy).
func CellKey(gx, gy float64) string {
	return fmt.Sprintf("%d_%d", int64(math.Round(gx)), int64(math.Round(gy)))
}
