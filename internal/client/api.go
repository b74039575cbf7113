// Package client fetches grid rows from the grid API and turns them into
// cached GeoJSON feature collections for the map.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
)

// APIClient reads rows from the grid HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewAPIClient creates a client for the API served at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Cells fetches the cell rows matching filter.
func (c *APIClient) Cells(ctx context.Context, grid domain.GridSize, filter domain.CellFilter) ([]domain.CellRow, error) {
	params := url.Values{
		"grid":         {string(grid)},
		"propertyType": {string(filter.PropertyType)},
		"newBuild":     {string(filter.NewBuild)},
		"endMonth":     {domain.NormalizeEndMonth(filter.EndMonth)},
	}

	var resp struct {
		Rows []domain.CellRow `json:"rows"`
	}
	if err := c.get(ctx, "cells", params, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// Deltas fetches the delta rows of one segment.
func (c *APIClient) Deltas(ctx context.Context, grid domain.GridSize, seg domain.Segment) ([]domain.DeltaRow, error) {
	params := url.Values{
		"grid":         {string(grid)},
		"propertyType": {string(seg.PropertyType)},
		"newBuild":     {string(seg.NewBuild)},
	}

	var resp struct {
		Rows []domain.DeltaRow `json:"rows"`
	}
	if err := c.get(ctx, "deltas", params, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *APIClient) get(ctx context.Context, endpoint string, params url.Values, v any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.APIRequests.WithLabelValues(endpoint, outcome).Inc()
		c.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	fullURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	c.logger.Debug("api request", "endpoint", endpoint, "query", params.Encode(), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// apiError keeps the server's error classification so callers can tell a
// missing snapshot from a transport failure.
func apiError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		msg = payload.Message
	}

	var kind error
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = domain.ErrNotFound
	case http.StatusBadRequest:
		kind = domain.ErrInvalidQuery
	default:
		kind = errors.New("grid API error")
	}
	return fmt.Errorf("%s: %w: status %d: %s", endpoint, kind, resp.StatusCode, msg)
}
