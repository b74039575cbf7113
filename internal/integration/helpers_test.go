//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/klauspost/compress/gzip"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("valuemap-grid-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeSnapshots writes a small 25km cell snapshot and a 10km delta snapshot
// into a fresh directory.
func writeSnapshots(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gx, gy := 400000.0, 300000.0
	writeGz(t, dir, domain.Grid25km.CellsKey(), []domain.CellRow{
		{GX: 400000, GY: 300000, EndMonth: "2024-12-01", PropertyType: "ALL", NewBuild: "ALL", Median: 250000, TxCount: 40},
		{GX: 425000, GY: 300000, EndMonth: "2024-12-01", PropertyType: "ALL", NewBuild: "ALL", Median: 310000, TxCount: 12},
		{GX: 400000, GY: 325000, EndMonth: "2024-12-01", PropertyType: "F", NewBuild: "N", Median: 180000, TxCount: 7},
	})
	writeGz(t, dir, domain.Grid10km.DeltasKey(), []domain.DeltaRow{
		{GX10000: &gx, GY10000: &gy, PropertyType: "ALL", NewBuild: "ALL", DeltaGBP: 12000, DeltaPct: 4.8},
	})
	return dir
}

func writeGz(t *testing.T, dir, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), buf.Bytes(), 0o600))
}

func announcement(t *testing.T, grid domain.GridSize, kind domain.SnapshotKind) []byte {
	t.Helper()
	data, err := json.Marshal(domain.SnapshotAnnouncement{Grid: grid, Kind: kind})
	require.NoError(t, err)
	return data
}
