package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/snapshot"
)

// Browser cache lifetimes per route, in seconds.
const (
	cellsMaxAge    = 60
	outcodesMaxAge = 300
	deltasMaxAge   = 3600

	maxRankLimit = 100
)

type cellsResponse struct {
	Grid         domain.GridSize     `json:"grid"`
	EndMonth     string              `json:"end_month"`
	PropertyType domain.PropertyType `json:"propertyType"`
	NewBuild     domain.NewBuild     `json:"newBuild"`
	Count        int                 `json:"count"`
	Rows         []domain.CellRow    `json:"rows"`
}

type deltasResponse struct {
	Grid         domain.GridSize     `json:"grid"`
	PropertyType domain.PropertyType `json:"propertyType"`
	NewBuild     domain.NewBuild     `json:"newBuild"`
	Count        int                 `json:"count"`
	TimeRange    snapshot.TimeRange  `json:"timeRange"`
	Rows         []domain.DeltaRow   `json:"rows"`
}

type outcodesResponse struct {
	Grid         domain.GridSize        `json:"grid"`
	EndMonth     string                 `json:"end_month"`
	PropertyType domain.PropertyType    `json:"propertyType"`
	NewBuild     domain.NewBuild        `json:"newBuild"`
	Count        int                    `json:"count"`
	Top          []snapshot.OutcodeRank `json:"top"`
	Bottom       []snapshot.OutcodeRank `json:"bottom"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	grid, filter, err := parseCellQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	slice, err := s.snapshots.Rows(r.Context(), grid, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	setMaxAge(w, cellsMaxAge)
	writeJSON(w, http.StatusOK, cellsResponse{
		Grid:         slice.Grid,
		EndMonth:     slice.EndMonth,
		PropertyType: slice.Segment.PropertyType,
		NewBuild:     slice.Segment.NewBuild,
		Count:        len(slice.Rows),
		Rows:         slice.Rows,
	})
}

func (s *Server) handleDeltas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	grid, err := domain.ParseGridSize(q.Get("grid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seg, err := domain.ParseSegment(q.Get("propertyType"), q.Get("newBuild"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	slice, err := s.snapshots.Deltas(r.Context(), grid, seg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	setMaxAge(w, deltasMaxAge)
	writeJSON(w, http.StatusOK, deltasResponse{
		Grid:         slice.Grid,
		PropertyType: slice.Segment.PropertyType,
		NewBuild:     slice.Segment.NewBuild,
		Count:        len(slice.Rows),
		TimeRange:    slice.TimeRange,
		Rows:         slice.Rows,
	})
}

func (s *Server) handleOutcodes(w http.ResponseWriter, r *http.Request) {
	grid, filter, err := parseCellQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := snapshot.DefaultRankLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n <= 0 || n > maxRankLimit {
			s.writeError(w, r, fmt.Errorf("%w: limit %q", domain.ErrInvalidQuery, v))
			return
		}
		limit = n
	}

	ranking, err := s.snapshots.Outcodes(r.Context(), grid, filter, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	setMaxAge(w, outcodesMaxAge)
	writeJSON(w, http.StatusOK, outcodesResponse{
		Grid:         ranking.Grid,
		EndMonth:     ranking.EndMonth,
		PropertyType: ranking.Segment.PropertyType,
		NewBuild:     ranking.Segment.NewBuild,
		Count:        ranking.Count,
		Top:          ranking.Top,
		Bottom:       ranking.Bottom,
	})
}

func parseCellQuery(r *http.Request) (domain.GridSize, domain.CellFilter, error) {
	q := r.URL.Query()
	grid, err := domain.ParseGridSize(q.Get("grid"))
	if err != nil {
		return "", domain.CellFilter{}, err
	}
	seg, err := domain.ParseSegment(q.Get("propertyType"), q.Get("newBuild"))
	if err != nil {
		return "", domain.CellFilter{}, err
	}
	return grid, domain.CellFilter{Segment: seg, EndMonth: domain.NormalizeEndMonth(q.Get("endMonth"))}, nil
}

// writeError maps domain errors onto status codes. Internal failures are
// logged; the client only sees the wrapped message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		status, code = http.StatusBadRequest, "invalid_query"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDecode):
		code = "decode_failed"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "query", r.URL.RawQuery, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

func setMaxAge(w http.ResponseWriter, seconds int) {
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(seconds))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
