package snapshot

import (
	"context"
	"math"
	"sort"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/scale"
)

// CellSlice is the filtered view of a cell snapshot returned to callers.
type CellSlice struct {
	Grid     domain.GridSize
	Segment  domain.Segment
	EndMonth string
	Rows     []domain.CellRow
}

// Rows returns the cells of grid matching filter. A LatestMonth filter
// resolves to the snapshot's most recent end_month.
func (s *Service) Rows(ctx context.Context, grid domain.GridSize, filter domain.CellFilter) (CellSlice, error) {
	snap, err := s.Cells(ctx, grid)
	if err != nil {
		return CellSlice{}, err
	}

	filter.EndMonth = domain.NormalizeEndMonth(filter.EndMonth)
	if filter.EndMonth == domain.LatestMonth {
		filter.EndMonth = snap.LatestEndMonth
	}

	rows := make([]domain.CellRow, 0)
	for i := range snap.Rows {
		if snap.Rows[i].Matches(filter) {
			rows = append(rows, snap.Rows[i])
		}
	}
	return CellSlice{Grid: grid, Segment: filter.Segment, EndMonth: filter.EndMonth, Rows: rows}, nil
}

// TimeRange is the pair of periods a delta snapshot compares.
type TimeRange struct {
	Earliest *string `json:"earliest"`
	Latest   *string `json:"latest"`
}

// DeltaSlice is the filtered view of a delta snapshot.
type DeltaSlice struct {
	Grid      domain.GridSize
	Segment   domain.Segment
	TimeRange TimeRange
	Rows      []domain.DeltaRow
}

// Deltas returns the delta rows of grid for one segment. The time range is
// taken from the snapshot's first row, since every row compares the same two
// periods.
func (s *Service) Deltas(ctx context.Context, grid domain.GridSize, seg domain.Segment) (DeltaSlice, error) {
	snap, err := s.DeltaSnapshot(ctx, grid)
	if err != nil {
		return DeltaSlice{}, err
	}

	var tr TimeRange
	if len(snap.Rows) > 0 {
		earliest, latest := snap.Rows[0].EndMonthEarliest, snap.Rows[0].EndMonthLatest
		tr = TimeRange{Earliest: &earliest, Latest: &latest}
	}

	rows := make([]domain.DeltaRow, 0)
	for i := range snap.Rows {
		r := &snap.Rows[i]
		if r.PropertyType == seg.PropertyType && r.NewBuild == seg.NewBuild {
			rows = append(rows, *r)
		}
	}
	return DeltaSlice{Grid: grid, Segment: seg, TimeRange: tr, Rows: rows}, nil
}

// OutcodeRank is the sales-weighted average of cell medians over one
// postcode outcode.
type OutcodeRank struct {
	Outcode string  `json:"outcode"`
	Median  float64 `json:"median"`
	Weight  float64 `json:"weight"`
}

// OutcodeRanking lists outcodes by weighted median.
type OutcodeRanking struct {
	Grid     domain.GridSize
	Segment  domain.Segment
	EndMonth string
	Count    int
	// Top is ordered most expensive first, Bottom cheapest first.
	Top    []OutcodeRank
	Bottom []OutcodeRank
}

// DefaultRankLimit is the length of each end of an outcode ranking.
const DefaultRankLimit = 10

// Outcodes ranks postcode outcodes by the weighted average median of the
// cells they overlap. Cells without sales are ignored.
func (s *Service) Outcodes(ctx context.Context, grid domain.GridSize, filter domain.CellFilter, limit int) (OutcodeRanking, error) {
	if limit <= 0 {
		limit = DefaultRankLimit
	}
	slice, err := s.Rows(ctx, grid, filter)
	if err != nil {
		return OutcodeRanking{}, err
	}
	index, err := s.OutcodeIndex(ctx, grid)
	if err != nil {
		return OutcodeRanking{}, err
	}

	type cell struct{ median, tx float64 }
	cells := make(map[string]cell, len(slice.Rows))
	for _, r := range slice.Rows {
		if math.IsNaN(r.Median) || math.IsInf(r.Median, 0) || !(r.TxCount > 0) {
			continue
		}
		cells[domain.CellKey(r.GX, r.GY)] = cell{median: r.Median, tx: r.TxCount}
	}

	type agg struct{ sum, weight float64 }
	byOutcode := make(map[string]*agg)
	for key, outcodes := range index.Cells {
		c, ok := cells[key]
		if !ok {
			continue
		}
		w := scale.Weight(c.tx)
		for _, oc := range outcodes {
			a := byOutcode[oc]
			if a == nil {
				a = &agg{}
				byOutcode[oc] = a
			}
			a.sum += c.median * w
			a.weight += w
		}
	}

	items := make([]OutcodeRank, 0, len(byOutcode))
	for oc, a := range byOutcode {
		if a.weight <= 0 {
			continue
		}
		v := a.sum / a.weight
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		items = append(items, OutcodeRank{Outcode: oc, Median: v, Weight: a.weight})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Median != items[j].Median {
			return items[i].Median < items[j].Median
		}
		return items[i].Outcode < items[j].Outcode
	})

	n := min(limit, len(items))
	bottom := make([]OutcodeRank, n)
	copy(bottom, items[:n])
	top := make([]OutcodeRank, 0, n)
	for i := len(items) - 1; i >= len(items)-n; i-- {
		top = append(top, items[i])
	}

	return OutcodeRanking{
		Grid:     grid,
		Segment:  slice.Segment,
		EndMonth: slice.EndMonth,
		Count:    len(items),
		Top:      top,
		Bottom:   bottom,
	}, nil
}
