package client

import (
	"context"
	"fmt"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/feature"
	"github.com/paulmach/orb/geojson"
)

// Query names one map layer: a grid, a segment, a metric and a period.
type Query struct {
	Grid     domain.GridSize
	Segment  domain.Segment
	Metric   domain.Metric
	EndMonth string
}

// Normalize applies defaults and moves delta metrics off the 1km grid, which
// has no delta snapshot.
func (q Query) Normalize() Query {
	if q.Grid == "" {
		q.Grid = domain.DefaultGrid
	}
	if q.Segment.PropertyType == "" {
		q.Segment.PropertyType = domain.PropertyAll
	}
	if q.Segment.NewBuild == "" {
		q.Segment.NewBuild = domain.NewBuildAll
	}
	if q.Metric == "" {
		q.Metric = domain.MetricMedian
	}
	if q.Metric.IsDelta() && !q.Grid.HasDeltas() {
		q.Grid = domain.Grid5km
	}
	q.EndMonth = domain.NormalizeEndMonth(q.EndMonth)
	return q
}

// Key is the request cache key of a normalized query.
func (q Query) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", q.Grid, q.Segment.PropertyType, q.Segment.NewBuild, q.Metric, q.EndMonth)
}

// FeatureSource produces the feature collection for a layer query.
type FeatureSource interface {
	Features(ctx context.Context, q Query) (*geojson.FeatureCollection, error)
}

// RowFetcher is the row-level API the fetcher builds features from.
type RowFetcher interface {
	Cells(ctx context.Context, grid domain.GridSize, filter domain.CellFilter) ([]domain.CellRow, error)
	Deltas(ctx context.Context, grid domain.GridSize, seg domain.Segment) ([]domain.DeltaRow, error)
}

// FeatureFetcher fetches rows and converts them into polygon features.
type FeatureFetcher struct {
	rows RowFetcher
}

// NewFeatureFetcher creates a FeatureSource backed by rows.
func NewFeatureFetcher(rows RowFetcher) *FeatureFetcher {
	return &FeatureFetcher{rows: rows}
}

// Features fetches the rows for q and builds one polygon per cell.
func (f *FeatureFetcher) Features(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	q = q.Normalize()

	if q.Metric.IsDelta() {
		rows, err := f.rows.Deltas(ctx, q.Grid, q.Segment)
		if err != nil {
			return nil, fmt.Errorf("fetch deltas %s: %w", q.Key(), err)
		}
		return feature.BuildDeltas(rows, q.Grid), nil
	}

	rows, err := f.rows.Cells(ctx, q.Grid, domain.CellFilter{Segment: q.Segment, EndMonth: q.EndMonth})
	if err != nil {
		return nil, fmt.Errorf("fetch cells %s: %w", q.Key(), err)
	}
	return feature.Build(rows, q.Grid.Meters()), nil
}
