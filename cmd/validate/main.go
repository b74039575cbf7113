// Command validate performs data integrity checks on a directory of grid
// snapshots before it is published: cell coordinates, segment values and
// periods, delta arithmetic, outcode index keys, and whether every cell lands
// inside the national envelope once converted to WGS84.
//
// Usage:
//
//	go run ./cmd/validate -dir data
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/valuemap-grid/internal/adapter/blob"
	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/feature"
	"github.com/couchcryptid/valuemap-grid/internal/geodesy"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
	"github.com/couchcryptid/valuemap-grid/internal/snapshot"
	"github.com/paulmach/orb"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

// maxErrors caps the detail printed per phase; the count stays exact.
const maxErrors = 25

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "directory containing snapshot objects")
	prefix := flag.String("prefix", "", "object key prefix")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *prefix); code != 0 {
		os.Exit(code)
	}
}

func run(dir, prefix string) int {
	ctx := context.Background()
	svc := snapshot.NewService(blob.NewDirStore(dir), snapshot.Config{Prefix: prefix},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())

	fmt.Println("=== Grid Snapshot Integrity Validation ===")
	fmt.Println()

	var phases []*phase
	rows := 0
	for _, g := range domain.AllGrids {
		cells, err := svc.Cells(ctx, g)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s cells: %v\n", g, err)
			return 1
		}
		rows += len(cells.Rows)
		phases = append(phases, validateCells(g, cells.Rows), validateEnvelope(g, cells.Rows))

		if g.HasDeltas() {
			deltas, err := svc.DeltaSnapshot(ctx, g)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				fmt.Printf("  %s: no delta snapshot, skipped\n", g)
			case err != nil:
				fmt.Fprintf(os.Stderr, "FATAL: load %s deltas: %v\n", g, err)
				return 1
			default:
				rows += len(deltas.Rows)
				phases = append(phases, validateDeltas(g, deltas.Rows))
			}
		}

		index, err := svc.OutcodeIndex(ctx, g)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			fmt.Printf("  %s: no outcode index, skipped\n", g)
		case err != nil:
			fmt.Fprintf(os.Stderr, "FATAL: load %s outcode index: %v\n", g, err)
			return 1
		default:
			phases = append(phases, validateOutcodes(g, index.Cells, cells.Rows))
		}
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d across %d grids\n", rows, len(domain.AllGrids))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxErrors {
				fmt.Printf("  ... %d more\n", len(p.errors)-maxErrors)
				break
			}
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Cells ──

type rowKey struct {
	gx, gy   float64
	endMonth string
	seg      domain.Segment
}

func validateCells(g domain.GridSize, rows []domain.CellRow) *phase {
	p := &phase{name: fmt.Sprintf("%s cells", g)}
	size := g.Meters()
	seen := make(map[rowKey]bool, len(rows))

	for i := range rows {
		r := &rows[i]
		if !onGrid(r.GX, size) || !onGrid(r.GY, size) {
			p.errorf("row %d: (%v, %v) is not a multiple of %v", i, r.GX, r.GY, size)
		}
		seg, err := domain.ParseSegment(string(r.PropertyType), string(r.NewBuild))
		if err != nil || seg.PropertyType != r.PropertyType || seg.NewBuild != r.NewBuild {
			p.errorf("row %d: segment %q/%q is not canonical", i, r.PropertyType, r.NewBuild)
		}
		if !validMonth(r.EndMonth) {
			p.errorf("row %d: end_month %q is not YYYY-MM-01", i, r.EndMonth)
		}
		if !finite(r.Median) || r.Median <= 0 {
			p.errorf("row %d: median %v is not a positive price", i, r.Median)
		}
		if !finite(r.TxCount) || r.TxCount < 0 {
			p.errorf("row %d: tx_count %v is negative", i, r.TxCount)
		}

		k := rowKey{r.GX, r.GY, r.EndMonth, domain.Segment{PropertyType: r.PropertyType, NewBuild: r.NewBuild}}
		if seen[k] {
			p.errorf("row %d: duplicate cell %s %s %s/%s", i, domain.CellKey(r.GX, r.GY), r.EndMonth, r.PropertyType, r.NewBuild)
		}
		seen[k] = true
	}
	return p
}

// validateEnvelope reports cells whose centre would be dropped by the
// feature builder.
func validateEnvelope(g domain.GridSize, rows []domain.CellRow) *phase {
	p := &phase{name: fmt.Sprintf("%s cells inside national envelope", g)}
	size := g.Meters()
	checked := make(map[string]bool)
	for i := range rows {
		key := domain.CellKey(rows[i].GX, rows[i].GY)
		if checked[key] {
			continue
		}
		checked[key] = true
		lon, lat := geodesy.ToGeodetic(rows[i].GX+size/2, rows[i].GY+size/2)
		if !feature.InEnvelope(orb.Point{lon, lat}) {
			p.errorf("cell %s centre (%.4f, %.4f) is outside the envelope", key, lon, lat)
		}
	}
	return p
}

// ── Deltas ──

func validateDeltas(g domain.GridSize, rows []domain.DeltaRow) *phase {
	p := &phase{name: fmt.Sprintf("%s deltas", g)}
	size := g.Meters()
	for i := range rows {
		d := &rows[i]
		gx, gy, ok := d.Coords(g)
		if !ok {
			p.errorf("row %d: no coordinates for %s", i, g)
			continue
		}
		if !onGrid(gx, size) || !onGrid(gy, size) {
			p.errorf("row %d: (%v, %v) is not a multiple of %v", i, gx, gy, size)
		}
		if !validMonth(d.EndMonthEarliest) || !validMonth(d.EndMonthLatest) {
			p.errorf("row %d: period %q..%q is malformed", i, d.EndMonthEarliest, d.EndMonthLatest)
		} else if d.EndMonthEarliest >= d.EndMonthLatest {
			p.errorf("row %d: period %q..%q is not ascending", i, d.EndMonthEarliest, d.EndMonthLatest)
		}
		if !floatEq(d.DeltaGBP, d.PriceLatest-d.PriceEarliest, 1) {
			p.errorf("row %d: delta_gbp %v != %v - %v", i, d.DeltaGBP, d.PriceLatest, d.PriceEarliest)
		}
		if d.PriceEarliest > 0 {
			pct := (d.PriceLatest - d.PriceEarliest) / d.PriceEarliest * 100
			if !floatEq(d.DeltaPct, pct, 0.1) {
				p.errorf("row %d: delta_pct %v, expected %.2f", i, d.DeltaPct, pct)
			}
		}
	}
	return p
}

// ── Outcodes ──

func validateOutcodes(g domain.GridSize, index map[string][]string, rows []domain.CellRow) *phase {
	p := &phase{name: fmt.Sprintf("%s outcode index", g)}
	size := g.Meters()
	for key, codes := range index {
		gx, gy, ok := parseCellKey(key)
		if !ok {
			p.errorf("key %q is not {gx}_{gy}", key)
			continue
		}
		if !onGrid(gx, size) || !onGrid(gy, size) {
			p.errorf("key %q is not on the %s grid", key, g)
		}
		if len(codes) == 0 {
			p.errorf("key %q lists no outcodes", key)
		}
	}

	missing := 0
	for i := range rows {
		if _, ok := index[domain.CellKey(rows[i].GX, rows[i].GY)]; !ok {
			missing++
		}
	}
	if missing > 0 {
		p.errorf("%d cell rows have no outcode entry", missing)
	}
	return p
}

func parseCellKey(key string) (gx, gy float64, ok bool) {
	x, y, found := strings.Cut(key, "_")
	if !found {
		return 0, 0, false
	}
	ix, err := strconv.ParseInt(x, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	iy, err := strconv.ParseInt(y, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return float64(ix), float64(iy), true
}

// ── Helpers ──

func onGrid(v, size float64) bool {
	return finite(v) && math.Mod(v, size) == 0
}

func validMonth(s string) bool {
	t, err := time.Parse(time.DateOnly, s)
	return err == nil && t.Day() == 1
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func floatEq(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
