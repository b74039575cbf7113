// Package snapshot serves grid rows from gzip-compressed JSON objects held in
// a blob store. Each object is fetched and decoded at most once per process
// and then kept in memory for the life of the process.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
	"golang.org/x/sync/singleflight"
)

// BlobStore reads snapshot objects. Get must return an error wrapping
// domain.ErrNotFound when the key does not exist.
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Config tunes a Service.
type Config struct {
	// Prefix is prepended to every object key.
	Prefix string
	// LoadTimeout bounds a single fetch and decode. Zero means no bound.
	LoadTimeout time.Duration
	// Preload lists grids that must be resident before the service is ready.
	Preload []domain.GridSize
}

// GridSnapshot is the decoded cell snapshot of one grid.
type GridSnapshot struct {
	Grid           domain.GridSize
	Rows           []domain.CellRow
	LatestEndMonth string
	LoadedAt       time.Time
}

// DeltaSnapshot is the decoded delta snapshot of one grid.
type DeltaSnapshot struct {
	Grid     domain.GridSize
	Rows     []domain.DeltaRow
	LoadedAt time.Time
}

// OutcodeIndex maps "{gx}_{gy}" cell keys to the postcode outcodes the cell
// overlaps.
type OutcodeIndex struct {
	Grid     domain.GridSize
	Cells    map[string][]string
	LoadedAt time.Time
}

// Service is the in-memory snapshot cache. Snapshots are immutable once
// stored; there is no eviction and no TTL.
type Service struct {
	store   BlobStore
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	group singleflight.Group

	mu       sync.RWMutex
	cells    map[domain.GridSize]*GridSnapshot
	deltas   map[domain.GridSize]*DeltaSnapshot
	outcodes map[domain.GridSize]*OutcodeIndex
}

// NewService creates an empty cache over store.
func NewService(store BlobStore, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		cells:    make(map[domain.GridSize]*GridSnapshot),
		deltas:   make(map[domain.GridSize]*DeltaSnapshot),
		outcodes: make(map[domain.GridSize]*OutcodeIndex),
	}
}

// Cells returns the cell snapshot for grid, loading it on first use.
func (s *Service) Cells(ctx context.Context, grid domain.GridSize) (*GridSnapshot, error) {
	if grid.Meters() == 0 {
		return nil, fmt.Errorf("%w: grid %q", domain.ErrInvalidQuery, grid)
	}
	return cached(ctx, s, string(domain.KindCells), grid, s.cells, grid.CellsKey(), s.loadCells)
}

// DeltaSnapshot returns the delta snapshot for grid, loading it on first use.
func (s *Service) DeltaSnapshot(ctx context.Context, grid domain.GridSize) (*DeltaSnapshot, error) {
	if !grid.HasDeltas() {
		return nil, fmt.Errorf("%w: no deltas for grid %q", domain.ErrInvalidQuery, grid)
	}
	return cached(ctx, s, string(domain.KindDeltas), grid, s.deltas, grid.DeltasKey(), s.loadDeltas)
}

// OutcodeIndex returns the outcode index for grid, loading it on first use.
func (s *Service) OutcodeIndex(ctx context.Context, grid domain.GridSize) (*OutcodeIndex, error) {
	if grid.Meters() == 0 {
		return nil, fmt.Errorf("%w: grid %q", domain.ErrInvalidQuery, grid)
	}
	return cached(ctx, s, "outcodes", grid, s.outcodes, grid.OutcodeIndexKey(), s.loadOutcodes)
}

// cached returns the resident entry for grid or joins a single load of key.
// Concurrent cold callers share one fetch. The load runs detached from the
// first caller's cancellation so a departing caller cannot fail the others;
// each caller still stops waiting when its own ctx ends.
func cached[T any](
	ctx context.Context,
	s *Service,
	kind string,
	grid domain.GridSize,
	entries map[domain.GridSize]*T,
	key string,
	load func(ctx context.Context, grid domain.GridSize, key string) (*T, error),
) (*T, error) {
	s.mu.RLock()
	entry := entries[grid]
	s.mu.RUnlock()
	if entry != nil {
		s.metrics.SnapshotCache.WithLabelValues(kind, "hit").Inc()
		return entry, nil
	}
	s.metrics.SnapshotCache.WithLabelValues(kind, "miss").Inc()

	ch := s.group.DoChan(kind+":"+key, func() (any, error) {
		s.mu.RLock()
		existing := entries[grid]
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		loadCtx := context.WithoutCancel(ctx)
		if s.cfg.LoadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, s.cfg.LoadTimeout)
			defer cancel()
		}

		start := time.Now()
		v, err := load(loadCtx, grid, key)
		s.metrics.SnapshotLoadDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.SnapshotLoads.WithLabelValues(kind, loadOutcome(err)).Inc()
			s.logger.Error("snapshot load failed", "kind", kind, "grid", grid, "key", key, "error", err)
			return nil, err
		}
		s.metrics.SnapshotLoads.WithLabelValues(kind, "success").Inc()

		s.mu.Lock()
		entries[grid] = v
		s.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	}
}

func loadOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDecode):
		return "decode_error"
	default:
		return "error"
	}
}

// Resident reports whether the snapshot of kind for grid is in memory.
func (s *Service) Resident(kind domain.SnapshotKind, grid domain.GridSize) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind == domain.KindDeltas {
		return s.deltas[grid] != nil
	}
	return s.cells[grid] != nil
}

// Warm loads the snapshot named by a and reports its size. Loading a
// snapshot that is already resident is a no-op: snapshots are never replaced
// at runtime.
func (s *Service) Warm(ctx context.Context, a domain.SnapshotAnnouncement) (domain.WarmReport, error) {
	report := domain.WarmReport{
		Grid:     a.Grid,
		Kind:     a.Kind,
		Key:      s.cfg.Prefix + a.Key(),
		Resident: s.Resident(a.Kind, a.Grid),
	}

	switch a.Kind {
	case domain.KindDeltas:
		snap, err := s.DeltaSnapshot(ctx, a.Grid)
		if err != nil {
			return domain.WarmReport{}, fmt.Errorf("warm %s: %w", report.Key, err)
		}
		report.Rows = len(snap.Rows)
	default:
		snap, err := s.Cells(ctx, a.Grid)
		if err != nil {
			return domain.WarmReport{}, fmt.Errorf("warm %s: %w", report.Key, err)
		}
		report.Rows = len(snap.Rows)
	}

	report.WarmedAt = domain.Now()
	return report, nil
}

// Preload warms every configured grid's cell snapshot. Failures are logged
// and the first one is returned after all grids have been attempted.
func (s *Service) Preload(ctx context.Context) error {
	var first error
	for _, g := range s.cfg.Preload {
		snap, err := s.Cells(ctx, g)
		if err != nil {
			s.logger.Warn("snapshot preload failed", "grid", g, "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		s.logger.Info("snapshot preloaded", "grid", g, "rows", len(snap.Rows), "latest_end_month", snap.LatestEndMonth)
	}
	return first
}

// CheckReadiness returns nil once every preload grid is resident.
func (s *Service) CheckReadiness(_ context.Context) error {
	var missing []string
	for _, g := range s.cfg.Preload {
		if !s.Resident(domain.KindCells, g) {
			missing = append(missing, string(g))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("snapshots not loaded: %s", strings.Join(missing, ","))
	}
	return nil
}
