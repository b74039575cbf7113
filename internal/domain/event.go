package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotKind distinguishes the two snapshot families a grid publishes.
type SnapshotKind string

const (
	KindCells  SnapshotKind = "cells"
	KindDeltas SnapshotKind = "deltas"
)

// RawEvent represents an unprocessed message from the announcement topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// SnapshotAnnouncement is published by the build job after it uploads a
// snapshot object.
type SnapshotAnnouncement struct {
	Grid        GridSize     `json:"grid"`
	Kind        SnapshotKind `json:"kind"`
	PublishedAt time.Time    `json:"published_at"`
}

// WarmReport records the outcome of loading an announced snapshot into memory.
type WarmReport struct {
	Grid     GridSize     `json:"grid"`
	Kind     SnapshotKind `json:"kind"`
	Key      string       `json:"key"`
	Rows     int          `json:"rows"`
	Resident bool         `json:"already_resident"`
	WarmedAt time.Time    `json:"warmed_at"`
}

// ParseAnnouncement decodes and validates an announcement message. A missing
// kind defaults to cells.
func ParseAnnouncement(raw RawEvent) (SnapshotAnnouncement, error) {
	var a SnapshotAnnouncement
	if err := json.Unmarshal(raw.Value, &a); err != nil {
		return SnapshotAnnouncement{}, fmt.Errorf("parse announcement: %w", err)
	}

	grid, err := ParseGridSize(string(a.Grid))
	if err != nil || a.Grid == "" {
		return SnapshotAnnouncement{}, fmt.Errorf("parse announcement: %w: grid %q", ErrInvalidQuery, a.Grid)
	}
	a.Grid = grid

	switch a.Kind {
	case "":
		a.Kind = KindCells
	case KindCells:
	case KindDeltas:
		if !grid.HasDeltas() {
			return SnapshotAnnouncement{}, fmt.Errorf("parse announcement: %w: no deltas for %s", ErrInvalidQuery, grid)
		}
	default:
		return SnapshotAnnouncement{}, fmt.Errorf("parse announcement: %w: kind %q", ErrInvalidQuery, a.Kind)
	}
	return a, nil
}

// Key returns the object key the announcement refers to.
func (a SnapshotAnnouncement) Key() string {
	if a.Kind == KindDeltas {
		return a.Grid.DeltasKey()
	}
	return a.Grid.CellsKey()
}
