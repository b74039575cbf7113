package domain

import (
	"fmt"
	"strings"
)

// PropertyType filters rows by dwelling type.
type PropertyType string

const (
	PropertyAll          PropertyType = "ALL"
	PropertyDetached     PropertyType = "D"
	PropertySemiDetached PropertyType = "S"
	PropertyTerraced     PropertyType = "T"
	PropertyFlat         PropertyType = "F"
)

// NewBuild filters rows by new-build status.
type NewBuild string

const (
	NewBuildAll NewBuild = "ALL"
	NewBuildYes NewBuild = "Y"
	NewBuildNo  NewBuild = "N"
)

// LatestMonth asks for the most recent end_month present in a snapshot.
const LatestMonth = "LATEST"

// Segment is the property-type and new-build pair every row is keyed by.
type Segment struct {
	PropertyType PropertyType
	NewBuild     NewBuild
}

// ParseSegment upper-cases and validates raw query values. Empty values
// default to ALL.
func ParseSegment(propertyType, newBuild string) (Segment, error) {
	pt := PropertyType(strings.ToUpper(strings.TrimSpace(propertyType)))
	if pt == "" {
		pt = PropertyAll
	}
	switch pt {
	case PropertyAll, PropertyDetached, PropertySemiDetached, PropertyTerraced, PropertyFlat:
	default:
		return Segment{}, fmt.Errorf("%w: propertyType %q", ErrInvalidQuery, propertyType)
	}

	nb := NewBuild(strings.ToUpper(strings.TrimSpace(newBuild)))
	if nb == "" {
		nb = NewBuildAll
	}
	switch nb {
	case NewBuildAll, NewBuildYes, NewBuildNo:
	default:
		return Segment{}, fmt.Errorf("%w: newBuild %q", ErrInvalidQuery, newBuild)
	}

	return Segment{PropertyType: pt, NewBuild: nb}, nil
}

// CellFilter selects rows of one segment and period from a cell snapshot.
type CellFilter struct {
	Segment
	// EndMonth is an ISO date or LatestMonth.
	EndMonth string
}

// NormalizeEndMonth maps an empty or case-variant "latest" to LatestMonth.
func NormalizeEndMonth(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, LatestMonth) {
		return LatestMonth
	}
	return s
}

// Metric is the row field a layer is colored by.
type Metric string

const (
	MetricMedian   Metric = "median"
	MetricDeltaGBP Metric = "delta_gbp"
	MetricDeltaPct Metric = "delta_pct"
)

// ParseMetric validates s. An empty string yields MetricMedian.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return MetricMedian, nil
	case MetricMedian, MetricDeltaGBP, MetricDeltaPct:
		return m, nil
	}
	return "", fmt.Errorf("%w: metric %q", ErrInvalidQuery, s)
}

// IsDelta reports whether m is a signed change rendered on a divergent scale.
func (m Metric) IsDelta() bool {
	return m == MetricDeltaGBP || m == MetricDeltaPct
}
