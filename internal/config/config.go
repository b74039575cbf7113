package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/valuemap-grid/internal/domain"
)

// Blob backends.
const (
	BlobBackendFS = "fs"
	BlobBackendS3 = "s3"
)

// ClientConfig holds the map client's settings. LoadClient reads only these,
// so a client run does not depend on the server's blob or Kafka setup.
type ClientConfig struct {
	LogLevel      string
	APIBaseURL    string
	APITimeout    time.Duration
	OverlayGrid   domain.GridSize
	Debounce      time.Duration
	QuantileProbs []float64 // nil means the built-in list
}

// Config holds all service settings, populated from environment variables.
// The client settings are embedded so one .env can drive both binaries.
type Config struct {
	ClientConfig

	HTTPAddr        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Snapshot blob store.
	BlobBackend         string
	BlobDir             string
	BlobBucket          string
	BlobEndpoint        string
	BlobRegion          string
	BlobAccessKeyID     string
	BlobSecretAccessKey string
	BlobPrefix          string
	BlobTimeout         time.Duration
	PreloadGrids        []domain.GridSize

	// Snapshot announcement pipeline.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// LoadClient reads the map client's settings from environment variables.
func LoadClient() (*ClientConfig, error) {
	apiTimeout, err := parseDuration("API_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	debounce, err := parseDuration("DEBOUNCE", "200ms")
	if err != nil {
		return nil, err
	}

	overlay, err := domain.ParseGridSize(sharedcfg.EnvOrDefault("OVERLAY_GRID", "25km"))
	if err != nil {
		return nil, errors.New("invalid OVERLAY_GRID")
	}

	probs, err := parseProbabilities(os.Getenv("QUANTILE_PROBS"))
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		LogLevel:      sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		APIBaseURL:    sharedcfg.EnvOrDefault("API_BASE_URL", "http://localhost:8080"),
		APITimeout:    apiTimeout,
		OverlayGrid:   overlay,
		Debounce:      debounce,
		QuantileProbs: probs,
	}, nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	blobTimeout, err := parseDuration("BLOB_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	preload, err := parseGrids(sharedcfg.EnvOrDefault("PRELOAD_GRIDS", "25km"))
	if err != nil {
		return nil, err
	}

	client, err := LoadClient()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ClientConfig: *client,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BlobBackend:         strings.ToLower(sharedcfg.EnvOrDefault("BLOB_BACKEND", BlobBackendFS)),
		BlobDir:             sharedcfg.EnvOrDefault("BLOB_DIR", "./data"),
		BlobBucket:          os.Getenv("BLOB_BUCKET"),
		BlobEndpoint:        os.Getenv("BLOB_ENDPOINT"),
		BlobRegion:          sharedcfg.EnvOrDefault("BLOB_REGION", "auto"),
		BlobAccessKeyID:     os.Getenv("BLOB_ACCESS_KEY_ID"),
		BlobSecretAccessKey: os.Getenv("BLOB_SECRET_ACCESS_KEY"),
		BlobPrefix:          os.Getenv("BLOB_PREFIX"),
		BlobTimeout:         blobTimeout,
		PreloadGrids:        preload,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "grid-snapshot-published"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "grid-snapshot-warmed"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "valuemap-grid"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	switch cfg.BlobBackend {
	case BlobBackendFS:
		if cfg.BlobDir == "" {
			return nil, errors.New("BLOB_DIR is required for the fs backend")
		}
	case BlobBackendS3:
		if cfg.BlobBucket == "" {
			return nil, errors.New("BLOB_BUCKET is required for the s3 backend")
		}
		if (cfg.BlobAccessKeyID == "") != (cfg.BlobSecretAccessKey == "") {
			return nil, errors.New("BLOB_ACCESS_KEY_ID and BLOB_SECRET_ACCESS_KEY must be set together")
		}
	default:
		return nil, fmt.Errorf("invalid BLOB_BACKEND %q", cfg.BlobBackend)
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

// parseGrids reads a comma-separated grid list. An empty list is allowed and
// disables preloading.
func parseGrids(s string) ([]domain.GridSize, error) {
	grids := make([]domain.GridSize, 0, len(domain.AllGrids))
	seen := make(map[domain.GridSize]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		g, err := domain.ParseGridSize(part)
		if err != nil {
			return nil, fmt.Errorf("invalid PRELOAD_GRIDS: %w", err)
		}
		if !seen[g] {
			seen[g] = true
			grids = append(grids, g)
		}
	}
	return grids, nil
}

// parseProbabilities reads a comma-separated ascending list in [0, 1].
func parseProbabilities(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	probs := make([]float64, 0, len(parts))
	for _, part := range parts {
		p, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || p < 0 || p > 1 {
			return nil, fmt.Errorf("invalid QUANTILE_PROBS value %q", part)
		}
		if len(probs) > 0 && p < probs[len(probs)-1] {
			return nil, errors.New("invalid QUANTILE_PROBS: values must be ascending")
		}
		probs = append(probs, p)
	}
	return probs, nil
}
