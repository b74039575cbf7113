package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/valuemap-grid/internal/config"
	"github.com/couchcryptid/valuemap-grid/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces warm reports to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes warm reports in a single WriteMessages call. Reports
// are keyed by object key so all reports for one snapshot share a partition.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.WarmReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write warm reports: %w", err)
	}
	w.logger.Debug("warm reports written", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a WarmReport into a Kafka message.
func serializeToMessage(report domain.WarmReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize warm report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "grid", Value: []byte(report.Grid)},
			{Key: "kind", Value: []byte(report.Kind)},
			{Key: "warmed_at", Value: []byte(report.WarmedAt.Format(time.RFC3339))},
		},
	}, nil
}
