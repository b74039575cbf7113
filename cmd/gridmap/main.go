// Command gridmap resolves one map layer against the grid API and writes the
// GeoJSON feature collection and its fill-color style to disk.
//
// Usage:
//
//	go run ./cmd/gridmap \
//	  -grid auto -zoom 7.5 \
//	  -metric median -ptype D -newbuild N -period LATEST \
//	  -out layer.geojson -style layer.style.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/valuemap-grid/internal/aggregate"
	"github.com/couchcryptid/valuemap-grid/internal/client"
	"github.com/couchcryptid/valuemap-grid/internal/config"
	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
	"github.com/couchcryptid/valuemap-grid/internal/scale"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

type flags struct {
	grid     string
	zoom     float64
	metric   string
	ptype    string
	newBuild string
	period   string
	out      string
	style    string
}

// layerStyle is the sidecar written next to the GeoJSON.
type layerStyle struct {
	Grid         domain.GridSize        `json:"grid"`
	Metric       domain.Metric          `json:"metric"`
	PropertyType domain.PropertyType    `json:"propertyType"`
	NewBuild     domain.NewBuild        `json:"newBuild"`
	EndMonth     string                 `json:"endMonth"`
	Outcome      string                 `json:"outcome"`
	Summary      *aggregate.Summary     `json:"summary,omitempty"`
	BreaksSource aggregate.BreaksSource `json:"breaksSource,omitempty"`
	Breakpoints  []float64              `json:"breakpoints,omitempty"`
	FillColor    scale.Expression       `json:"fillColor,omitempty"`
	Warning      string                 `json:"warning,omitempty"`
}

func main() {
	var f flags
	flag.StringVar(&f.grid, "grid", "auto", "grid size (1km, 5km, 10km, 25km) or auto")
	flag.Float64Var(&f.zoom, "zoom", 6, "map zoom used when -grid=auto")
	flag.StringVar(&f.metric, "metric", "median", "median, delta_gbp or delta_pct")
	flag.StringVar(&f.ptype, "ptype", "ALL", "property type: ALL, D, S, T or F")
	flag.StringVar(&f.newBuild, "newbuild", "ALL", "new build: ALL, Y or N")
	flag.StringVar(&f.period, "period", domain.LatestMonth, "end month (YYYY-MM-DD) or LATEST")
	flag.StringVar(&f.out, "out", "layer.geojson", "output path for the feature collection")
	flag.StringVar(&f.style, "style", "", "output path for the style sidecar (default: stdout)")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "gridmap: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	q, err := parseQuery(f)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, "text")
	metrics := observability.NewMetricsForTesting()

	api := client.NewAPIClient(cfg.APIBaseURL, cfg.APITimeout, logger, metrics)
	source := client.NewRequestCache(client.NewFeatureFetcher(api), metrics)
	coord := aggregate.NewCoordinator(source, aggregate.Config{
		OverlayGrid:   cfg.OverlayGrid,
		Debounce:      cfg.Debounce,
		Probabilities: cfg.QuantileProbs,
	}, clockwork.NewRealClock(), logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := coord.Resolve(ctx, q)
	if res.Class() == aggregate.ClassFatal {
		return res.Err
	}

	if err := writeJSONFile(f.out, res.Features); err != nil {
		return err
	}
	style := newLayerStyle(res)
	if f.style == "" {
		return json.NewEncoder(os.Stdout).Encode(style)
	}
	if err := writeJSONFile(f.style, style); err != nil {
		return err
	}

	logger.Info("layer written",
		"query", res.Query.Key(),
		"features", len(res.Features.Features),
		"outcome", res.Class().String(),
		"out", f.out,
		"style", f.style,
	)
	return nil
}

func parseQuery(f flags) (client.Query, error) {
	metric, err := domain.ParseMetric(f.metric)
	if err != nil {
		return client.Query{}, err
	}
	seg, err := domain.ParseSegment(f.ptype, f.newBuild)
	if err != nil {
		return client.Query{}, err
	}

	var grid domain.GridSize
	if strings.EqualFold(strings.TrimSpace(f.grid), "auto") {
		grid = domain.AutoGridForZoom(f.zoom, metric)
	} else if grid, err = domain.ParseGridSize(f.grid); err != nil {
		return client.Query{}, err
	}

	q := client.Query{Grid: grid, Segment: seg, Metric: metric, EndMonth: f.period}
	return q.Normalize(), nil
}

func newLayerStyle(res aggregate.Result) layerStyle {
	s := layerStyle{
		Grid:         res.Query.Grid,
		Metric:       res.Query.Metric,
		PropertyType: res.Query.Segment.PropertyType,
		NewBuild:     res.Query.Segment.NewBuild,
		EndMonth:     res.Query.EndMonth,
		Outcome:      res.Class().String(),
		Summary:      res.Summary,
		BreaksSource: res.BreaksSource,
		Breakpoints:  res.Breaks.Values,
		FillColor:    res.Scale,
	}
	if res.OverlayErr != nil {
		s.Warning = res.OverlayErr.Error()
	}
	return s
}

func writeJSONFile(path string, v any) error {
	if path == "" {
		return errors.New("output path is empty")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // map layers are meant to be shared
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
