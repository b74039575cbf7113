package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/klauspost/compress/gzip"
)

func (s *Service) loadCells(ctx context.Context, grid domain.GridSize, key string) (*GridSnapshot, error) {
	var rows []domain.CellRow
	if err := s.fetchJSON(ctx, key, &rows); err != nil {
		return nil, err
	}

	latest := ""
	for i := range rows {
		if rows[i].EndMonth > latest {
			latest = rows[i].EndMonth
		}
	}
	s.metrics.SnapshotRows.WithLabelValues(string(domain.KindCells), string(grid)).Set(float64(len(rows)))

	return &GridSnapshot{
		Grid:           grid,
		Rows:           rows,
		LatestEndMonth: latest,
		LoadedAt:       domain.Now(),
	}, nil
}

func (s *Service) loadDeltas(ctx context.Context, grid domain.GridSize, key string) (*DeltaSnapshot, error) {
	var rows []domain.DeltaRow
	if err := s.fetchJSON(ctx, key, &rows); err != nil {
		return nil, err
	}
	s.metrics.SnapshotRows.WithLabelValues(string(domain.KindDeltas), string(grid)).Set(float64(len(rows)))

	return &DeltaSnapshot{Grid: grid, Rows: rows, LoadedAt: domain.Now()}, nil
}

func (s *Service) loadOutcodes(ctx context.Context, grid domain.GridSize, key string) (*OutcodeIndex, error) {
	cells := make(map[string][]string)
	if err := s.fetchJSON(ctx, key, &cells); err != nil {
		return nil, err
	}
	return &OutcodeIndex{Grid: grid, Cells: cells, LoadedAt: domain.Now()}, nil
}

// fetchJSON streams key through a gzip reader into a JSON decoder, so the
// compressed and decompressed forms are never both held in full.
func (s *Service) fetchJSON(ctx context.Context, key string, v any) error {
	fullKey := s.cfg.Prefix + key

	body, err := s.store.Get(ctx, fullKey)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", fullKey, err)
	}
	defer body.Close()

	return decodeGzipJSON(body, fullKey, v)
}

func decodeGzipJSON(r io.Reader, key string, v any) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %s: gunzip: %v", domain.ErrDecode, key, err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: parse: %v", domain.ErrDecode, key, err)
	}

	// Read through to EOF so the gzip trailer checksum and length are verified.
	rest, err := io.ReadAll(io.MultiReader(dec.Buffered(), zr))
	if err != nil {
		return fmt.Errorf("%w: %s: gunzip: %v", domain.ErrDecode, key, err)
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		return fmt.Errorf("%w: %s: %d bytes after JSON value", domain.ErrDecode, key, len(rest))
	}
	return nil
}
