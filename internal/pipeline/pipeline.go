// Package pipeline runs the snapshot warm loop: announcements are read from
// Kafka, each snapshot object they name is loaded into the cache once, and a
// warm report is published per object.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
)

// Warm outcome labels.
const (
	outcomeWarmed    = "warmed"
	outcomeResident  = "already_resident"
	outcomeDuplicate = "duplicate"
	outcomeInvalid   = "invalid"
	outcomeFailed    = "failed"
)

// BatchExtractor reads up to batchSize raw announcements from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Warmer loads the snapshot an announcement names. snapshot.Service
// implements it.
type Warmer interface {
	Warm(ctx context.Context, a domain.SnapshotAnnouncement) (domain.WarmReport, error)
}

// BatchLoader publishes warm reports to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, reports []domain.WarmReport) error
}

// Pipeline drives extract, warm, publish and commit over announcement batches.
type Pipeline struct {
	extractor BatchExtractor
	warmer    Warmer
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
}

// New creates a Pipeline.
func New(e BatchExtractor, w Warmer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		warmer:    w,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// Run processes batches until ctx is cancelled. Extract and publish failures
// are retried with exponential backoff; Run itself only returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("warm pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	delay := retryDelay{initial: 200 * time.Millisecond, ceiling: 5 * time.Second}
	delay.reset()

	for ctx.Err() == nil {
		err := p.cycle(ctx)
		if err == nil {
			delay.reset()
			continue
		}
		if ctx.Err() != nil {
			break
		}
		p.logger.Error("warm cycle failed", "error", err, "retry_in", delay.current)
		if !delay.wait(ctx) {
			break
		}
	}

	p.logger.Info("warm pipeline stopping", "reason", ctx.Err())
	return nil
}

// cycle handles one batch. Announcements naming the same object are warmed
// once and share a single report. Offsets of unparseable announcements and
// of failed warms are committed straight away; the rest are committed only
// after their reports are published. A returned error leaves those offsets
// uncommitted.
func (p *Pipeline) cycle(ctx context.Context) error {
	raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("extract announcements: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	start := time.Now()
	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))

	groups, invalid := groupByObject(raws, p.logger)
	p.metrics.WarmOutcomes.WithLabelValues(outcomeInvalid).Add(float64(len(invalid)))
	p.commit(ctx, invalid)

	reports := make([]domain.WarmReport, 0, len(groups))
	pending := make([]domain.RawEvent, 0, len(raws))
	for _, g := range groups {
		report, err := p.warmer.Warm(ctx, g.announcement)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			first := g.events[0]
			p.logger.Warn("warm failed, skipping announcement",
				"key", g.key,
				"error", err,
				"messages", len(g.events),
				"topic", first.Topic,
				"partition", first.Partition,
				"offset", first.Offset,
			)
			p.metrics.WarmOutcomes.WithLabelValues(outcomeFailed).Inc()
			p.commit(ctx, g.events)
			continue
		}
		p.recordWarm(g, report)
		reports = append(reports, report)
		pending = append(pending, g.events...)
	}

	if len(reports) == 0 {
		return nil
	}
	if err := p.loader.LoadBatch(ctx, reports); err != nil {
		return fmt.Errorf("publish %d warm reports: %w", len(reports), err)
	}
	p.metrics.MessagesProduced.Add(float64(len(reports)))
	p.commit(ctx, pending)
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (p *Pipeline) recordWarm(g *objectGroup, report domain.WarmReport) {
	outcome := outcomeWarmed
	if report.Resident {
		outcome = outcomeResident
	}
	p.metrics.WarmOutcomes.WithLabelValues(outcome).Inc()
	if dup := len(g.events) - 1; dup > 0 {
		p.metrics.WarmOutcomes.WithLabelValues(outcomeDuplicate).Add(float64(dup))
	}

	p.logger.Info("snapshot warmed",
		"grid", report.Grid,
		"kind", report.Kind,
		"key", report.Key,
		"rows", report.Rows,
		"already_resident", report.Resident,
		"announcements", len(g.events),
	)
}

// commit commits each event's offset. Failures are logged and otherwise
// ignored; the message will be redelivered after a rebalance at worst.
func (p *Pipeline) commit(ctx context.Context, events []domain.RawEvent) {
	for _, raw := range events {
		if raw.Commit == nil {
			continue
		}
		if err := raw.Commit(ctx); err != nil {
			p.logger.Warn("commit offset failed", "error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		}
	}
}

// retryDelay is a doubling delay capped at ceiling.
type retryDelay struct {
	initial, ceiling time.Duration
	current          time.Duration
}

func (d *retryDelay) reset() { d.current = d.initial }

// wait sleeps for the current delay and doubles it. It reports false if ctx
// ended first.
func (d *retryDelay) wait(ctx context.Context) bool {
	timer := time.NewTimer(d.current)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	d.current = min(d.current*2, d.ceiling)
	return true
}
