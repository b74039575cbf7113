// Package aggregate resolves a map layer: it fetches the primary grid and a
// fixed coarse overlay, computes the summary readout and picks the color
// scale.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/couchcryptid/valuemap-grid/internal/client"
	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/feature"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
	"github.com/couchcryptid/valuemap-grid/internal/scale"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
)

// DefaultDebounce is the quiet period between the last submitted query and
// the fetch it triggers.
const DefaultDebounce = 200 * time.Millisecond

// Config tunes a Coordinator.
type Config struct {
	// OverlayGrid backs the summary readout regardless of the primary grid.
	OverlayGrid domain.GridSize
	Debounce    time.Duration
	// Probabilities for absolute-metric breakpoints. Empty uses
	// scale.DefaultProbabilities.
	Probabilities []float64
}

// Coordinator resolves layer queries against a feature source. Resolve is
// synchronous; Submit debounces, cancels the previous submission, and
// publishes only the newest result.
type Coordinator struct {
	source  client.FeatureSource
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	seq       uint64
	cancel    context.CancelFunc
	timer     clockwork.Timer
	latest    *Result
	onPublish func(Result)

	// publishMu orders publication so an older result can never be
	// delivered after a newer one.
	publishMu sync.Mutex
}

// NewCoordinator creates a coordinator over source.
func NewCoordinator(source client.FeatureSource, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	if cfg.OverlayGrid == "" {
		cfg.OverlayGrid = domain.Grid25km
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Coordinator{
		source:  source,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// OnPublish registers fn to receive every published result. fn runs on a
// coordinator goroutine and must not block for long.
func (c *Coordinator) OnPublish(fn func(Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPublish = fn
}

// Latest returns the most recently published result.
func (c *Coordinator) Latest() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Result{}, false
	}
	return *c.latest, true
}

// Submit schedules q after the debounce period and returns its sequence
// number. Any earlier submission is cancelled and its result discarded.
func (c *Coordinator) Submit(q client.Query) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.seq++
	seq := c.seq

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.timer = c.clock.AfterFunc(c.cfg.Debounce, func() {
		go c.run(ctx, seq, q)
	})
	return seq
}

// Close cancels any pending or in-flight submission.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.seq++
}

func (c *Coordinator) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Coordinator) run(ctx context.Context, seq uint64, q client.Query) {
	if ctx.Err() != nil {
		c.metrics.LayerResolutions.WithLabelValues("superseded").Inc()
		return
	}

	res := c.Resolve(ctx, q)
	res.Seq = seq

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	if seq != c.seq || ctx.Err() != nil {
		c.mu.Unlock()
		c.metrics.LayerResolutions.WithLabelValues("superseded").Inc()
		c.logger.Debug("layer result superseded", "seq", seq, "query", res.Query.Key())
		return
	}
	c.latest = &res
	fn := c.onPublish
	c.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}

// Resolve runs one query to completion. A primary fetch failure is fatal;
// an overlay failure only removes the summary.
func (c *Coordinator) Resolve(ctx context.Context, q client.Query) Result {
	q = q.Normalize()
	res := Result{Query: q}

	c.enter(q, StageFetchingPrimary)
	primary, err := c.source.Features(ctx, q)
	if err != nil {
		res.Stage, res.FailedAt = StageFailed, StageFetchingPrimary
		c.enter(q, StageFailed)
		res.Err = fmt.Errorf("%w: %w", domain.ErrUpstreamFetch, err)
		if ctx.Err() == nil {
			c.metrics.LayerResolutions.WithLabelValues("failed").Inc()
			c.logger.Error("primary fetch failed", "query", q.Key(), "error", err)
		}
		return res
	}
	res.Features = primary

	if !q.Metric.IsDelta() {
		c.enter(q, StageFetchingOverlay)
		c.resolveOverlay(ctx, q, &res)
	}

	c.enter(q, StageResolving)
	c.resolveScale(q, &res)
	res.Stage = StagePublished
	c.enter(q, StagePublished)

	outcome := "published"
	if res.OverlayErr != nil {
		outcome = "overlay_degraded"
	}
	c.metrics.LayerResolutions.WithLabelValues(outcome).Inc()
	return res
}

func (c *Coordinator) enter(q client.Query, s Stage) {
	c.logger.Debug("layer stage", "query", q.Key(), "stage", s.String())
}

func (c *Coordinator) resolveOverlay(ctx context.Context, q client.Query, res *Result) {
	oq := q
	oq.Grid = c.cfg.OverlayGrid
	oq.Metric = domain.MetricMedian

	overlay := res.Features
	if oq.Key() != q.Key() {
		var err error
		overlay, err = c.source.Features(ctx, oq)
		if err != nil {
			res.OverlayErr = fmt.Errorf("%w: %w", domain.ErrOverlayFetch, err)
			c.logger.Warn("overlay fetch failed, summary unavailable", "query", oq.Key(), "error", err)
			return
		}
	}
	res.Overlay = overlay
	res.Summary = Summarize(overlay)
}

func (c *Coordinator) resolveScale(q client.Query, res *Result) {
	if q.Metric.IsDelta() {
		stops, maxAbs := scale.DeltaBreakpoints(res.Features, q.Metric)
		res.Breaks = scale.Breaks{Values: stops}
		res.BreaksSource = BreaksPrimary
		res.Scale = scale.ForDelta(q.Metric, stops)
		c.logger.Debug("delta scale resolved", "query", q.Key(), "max_abs", maxAbs)
		return
	}

	var src *geojson.FeatureCollection
	switch {
	case scale.HasValues(res.Features, q.Metric):
		src, res.BreaksSource = res.Features, BreaksPrimary
	case res.Overlay != nil && scale.HasValues(res.Overlay, q.Metric):
		src, res.BreaksSource = res.Overlay, BreaksOverlay
	default:
		c.logger.Info("no values for color scale", "query", q.Key())
		return
	}

	res.Breaks = scale.ResolveAbsolute(src, q.Metric, c.cfg.Probabilities)
	res.Scale = scale.ForAbsolute(q.Metric, res.Breaks)
	if res.Breaks.Fallback {
		c.logger.Warn("quantile breakpoints lack spread, using linear scale",
			"query", q.Key(), "source", res.BreaksSource, "degenerate", res.Breaks.Degenerate)
	}
}

// Summarize returns the sales-weighted average median of fc, or nil when no
// feature carries a finite median.
func Summarize(fc *geojson.FeatureCollection) *Summary {
	if fc == nil {
		return nil
	}
	var sum, weight float64
	cells := 0
	for _, f := range fc.Features {
		m, ok := feature.Number(f, feature.PropMedian)
		if !ok {
			continue
		}
		tx, _ := feature.Number(f, feature.PropTxCount)
		w := scale.Weight(tx)
		sum += m * w
		weight += w
		cells++
	}
	if cells == 0 || weight <= 0 {
		return nil
	}
	avg := sum / weight
	if math.IsNaN(avg) || math.IsInf(avg, 0) {
		return nil
	}
	return &Summary{Median: avg, Weight: weight, Cells: cells}
}
