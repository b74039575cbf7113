// Command gensnapshot writes deterministic synthetic grid snapshots for local
// development and tests: cell snapshots for every grid, delta snapshots for
// the grids that have them, and a cell-to-outcode index per grid.
//
// Usage:
//
//	go run ./cmd/gensnapshot \
//	  -out data \
//	  -bounds 380000,260000,430000,310000 \
//	  -months 2023-12-01,2024-12-01
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/klauspost/compress/gzip"
)

// bounds is a BNG rectangle in metres: minE, minN, maxE, maxN.
type bounds [4]float64

var propertyTypes = []domain.PropertyType{
	domain.PropertyAll, domain.PropertyDetached, domain.PropertySemiDetached,
	domain.PropertyTerraced, domain.PropertyFlat,
}

var newBuilds = []domain.NewBuild{domain.NewBuildAll, domain.NewBuildYes, domain.NewBuildNo}

var typeFactor = map[domain.PropertyType]float64{
	domain.PropertyAll:          1.00,
	domain.PropertyDetached:     1.55,
	domain.PropertySemiDetached: 1.05,
	domain.PropertyTerraced:     0.85,
	domain.PropertyFlat:         0.70,
}

var buildFactor = map[domain.NewBuild]float64{
	domain.NewBuildAll: 1.00,
	domain.NewBuildYes: 1.18,
	domain.NewBuildNo:  0.97,
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data", "output directory")
	boundsFlag := flag.String("bounds", "380000,260000,430000,310000", "BNG rectangle minE,minN,maxE,maxN")
	monthsFlag := flag.String("months", "2023-12-01,2024-12-01", "comma-separated end months, oldest first")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	b, err := parseBounds(*boundsFlag)
	if err != nil {
		return err
	}
	months := strings.Split(*monthsFlag, ",")
	if len(months) < 2 {
		return fmt.Errorf("need at least two months for deltas, got %q", *monthsFlag)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	for _, g := range domain.AllGrids {
		rng := rand.New(rand.NewPCG(*seed, uint64(g.Meters())))
		cells := genCells(rng, b, g, months)
		if err := writeGz(filepath.Join(*outDir, g.CellsKey()), cells); err != nil {
			return fmt.Errorf("writing %s: %w", g.CellsKey(), err)
		}
		log.Printf("%s: %d cell rows", g, len(cells))

		if err := writeGz(filepath.Join(*outDir, g.OutcodeIndexKey()), genOutcodes(b, g)); err != nil {
			return fmt.Errorf("writing %s: %w", g.OutcodeIndexKey(), err)
		}

		if !g.HasDeltas() {
			continue
		}
		deltas := genDeltas(cells, g, months[0], months[len(months)-1])
		if err := writeGz(filepath.Join(*outDir, g.DeltasKey()), deltas); err != nil {
			return fmt.Errorf("writing %s: %w", g.DeltasKey(), err)
		}
		log.Printf("%s: %d delta rows", g, len(deltas))
	}
	return nil
}

func parseBounds(s string) (bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return bounds{}, fmt.Errorf("bounds needs four values, got %q", s)
	}
	var b bounds
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bounds{}, fmt.Errorf("bounds value %q: %w", p, err)
		}
		b[i] = v
	}
	if b[0] >= b[2] || b[1] >= b[3] {
		return bounds{}, fmt.Errorf("bounds %q are empty", s)
	}
	return b, nil
}

// cellOrigins yields the lower-left corners of every grid cell overlapping b.
func cellOrigins(b bounds, size float64, fn func(gx, gy float64)) {
	x0 := math.Floor(b[0]/size) * size
	y0 := math.Floor(b[1]/size) * size
	for gx := x0; gx < b[2]; gx += size {
		for gy := y0; gy < b[3]; gy += size {
			fn(gx, gy)
		}
	}
}

// basePrice is a smooth price surface peaking towards the south-east.
func basePrice(gx, gy float64) float64 {
	return 140000 + 0.45*gx - 0.12*gy + 40000*math.Sin(gx/37000)*math.Cos(gy/29000)
}

func genCells(rng *rand.Rand, b bounds, g domain.GridSize, months []string) []domain.CellRow {
	size := g.Meters()
	var rows []domain.CellRow //nolint:prealloc // size depends on bounds and grid
	cellOrigins(b, size, func(gx, gy float64) {
		base := basePrice(gx+size/2, gy+size/2)
		sales := math.Max(1, math.Round(size/1000*size/1000*0.6*(0.5+rng.Float64())))
		for i, month := range months {
			growth := 1 + 0.035*float64(i)
			for _, pt := range propertyTypes {
				for _, nb := range newBuilds {
					noise := 1 + 0.08*(rng.Float64()-0.5)
					tx := math.Round(sales * segmentShare(pt, nb))
					if tx == 0 && rng.Float64() < 0.7 {
						continue
					}
					rows = append(rows, domain.CellRow{
						GX:           gx,
						GY:           gy,
						EndMonth:     month,
						PropertyType: pt,
						NewBuild:     nb,
						Median:       math.Round(base * growth * typeFactor[pt] * buildFactor[nb] * noise),
						TxCount:      tx,
					})
				}
			}
		}
	})
	return rows
}

func segmentShare(pt domain.PropertyType, nb domain.NewBuild) float64 {
	share := 1.0
	if pt != domain.PropertyAll {
		share *= 0.25
	}
	switch nb {
	case domain.NewBuildYes:
		share *= 0.1
	case domain.NewBuildNo:
		share *= 0.9
	}
	return share
}

type segKey struct {
	gx, gy float64
	pt     domain.PropertyType
	nb     domain.NewBuild
}

func genDeltas(cells []domain.CellRow, g domain.GridSize, earliest, latest string) []domain.DeltaRow {
	first := make(map[segKey]domain.CellRow)
	for _, r := range cells {
		if r.EndMonth == earliest {
			first[segKey{r.GX, r.GY, r.PropertyType, r.NewBuild}] = r
		}
	}

	var rows []domain.DeltaRow //nolint:prealloc // only segments present in both months
	for _, r := range cells {
		if r.EndMonth != latest {
			continue
		}
		e, ok := first[segKey{r.GX, r.GY, r.PropertyType, r.NewBuild}]
		if !ok || e.Median == 0 {
			continue
		}
		gx, gy := r.GX, r.GY
		d := domain.DeltaRow{
			PropertyType:     r.PropertyType,
			NewBuild:         r.NewBuild,
			PriceEarliest:    e.Median,
			SalesEarliest:    e.TxCount,
			PriceLatest:      r.Median,
			SalesLatest:      r.TxCount,
			DeltaGBP:         r.Median - e.Median,
			DeltaPct:         math.Round((r.Median-e.Median)/e.Median*1000) / 10,
			EndMonthEarliest: earliest,
			EndMonthLatest:   latest,
			YearsDelta:       1,
		}
		cell := fmt.Sprintf("%s_%s", g, domain.CellKey(gx, gy))
		switch g {
		case domain.Grid5km:
			d.GX5000, d.GY5000, d.Cell5000 = &gx, &gy, cell
		case domain.Grid10km:
			d.GX10000, d.GY10000, d.Cell10000 = &gx, &gy, cell
		case domain.Grid25km:
			d.GX25000, d.GY25000, d.Cell25000 = &gx, &gy, cell
		}
		rows = append(rows, d)
	}
	return rows
}

// genOutcodes assigns synthetic outcodes on a fixed 6km lattice, so coarse
// cells list several outcodes and fine cells share one.
func genOutcodes(b bounds, g domain.GridSize) map[string][]string {
	const lattice = 6000.0
	size := g.Meters()
	index := make(map[string][]string)
	cellOrigins(b, size, func(gx, gy float64) {
		seen := make(map[string]bool)
		var codes []string
		for x := gx; x < gx+size; x += math.Min(size, lattice) {
			for y := gy; y < gy+size; y += math.Min(size, lattice) {
				code := fmt.Sprintf("SY%d", 1+int(x/lattice)%90+int(y/lattice)%7*90)
				if !seen[code] {
					seen[code] = true
					codes = append(codes, code)
				}
			}
		}
		index[domain.CellKey(gx, gy)] = codes
	})
	return index
}

func writeGz(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	zw, err := gzip.NewWriterLevel(bw, gzip.BestCompression)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}
