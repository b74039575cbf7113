package domain

import "errors"

var (
	// ErrNotFound reports that a snapshot object does not exist in the blob store.
	ErrNotFound = errors.New("snapshot not found")

	// ErrDecode reports a snapshot object that could not be decompressed or parsed.
	ErrDecode = errors.New("snapshot decode failed")

	// ErrUpstreamFetch reports a failed fetch of the primary collection for a layer.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrOverlayFetch reports a failed fetch of the coarse overlay collection.
	// It is never fatal to a layer.
	ErrOverlayFetch = errors.New("overlay fetch failed")

	// ErrInvalidQuery reports a grid, segment or metric value outside the
	// accepted set.
	ErrInvalidQuery = errors.New("invalid query")
)
