package aggregate

import (
	"github.com/couchcryptid/valuemap-grid/internal/client"
	"github.com/couchcryptid/valuemap-grid/internal/scale"
	"github.com/paulmach/orb/geojson"
)

// Stage is a step of layer resolution.
type Stage int

const (
	StageIdle Stage = iota
	StageFetchingPrimary
	StageFetchingOverlay
	StageResolving
	StagePublished
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageFetchingPrimary:
		return "fetching_primary"
	case StageFetchingOverlay:
		return "fetching_overlay"
	case StageResolving:
		return "resolving"
	case StagePublished:
		return "published"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}

// Class is the severity of a resolution outcome.
type Class int

const (
	ClassOK Class = iota
	// ClassNonFatal means the layer published without its summary.
	ClassNonFatal
	// ClassFatal means nothing was published.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassNonFatal:
		return "non_fatal"
	case ClassFatal:
		return "fatal"
	}
	return "unknown"
}

// Summary is the map-wide sales-weighted average median of the overlay grid.
type Summary struct {
	Median float64 `json:"median"`
	Weight float64 `json:"weight"`
	Cells  int     `json:"cells"`
}

// BreaksSource names the collection the color scale was computed from.
type BreaksSource string

const (
	BreaksNone    BreaksSource = ""
	BreaksPrimary BreaksSource = "primary"
	BreaksOverlay BreaksSource = "overlay"
)

// Result is the outcome of resolving one layer query.
type Result struct {
	Seq   uint64
	Query client.Query

	// Stage is StagePublished or StageFailed. FailedAt is the stage that
	// failed, if any.
	Stage    Stage
	FailedAt Stage

	Features *geojson.FeatureCollection
	Overlay  *geojson.FeatureCollection
	// Summary is nil when the overlay was skipped, failed or held no values.
	Summary *Summary

	Breaks       scale.Breaks
	BreaksSource BreaksSource
	// Scale is nil when neither collection had values for the metric.
	Scale scale.Expression

	// Err wraps domain.ErrUpstreamFetch when the primary fetch failed.
	Err error
	// OverlayErr wraps domain.ErrOverlayFetch when the overlay fetch failed.
	OverlayErr error
}

// Class reports whether the result is usable and complete.
func (r Result) Class() Class {
	switch {
	case r.Err != nil:
		return ClassFatal
	case r.OverlayErr != nil:
		return ClassNonFatal
	default:
		return ClassOK
	}
}
