// Package blob provides snapshot.BlobStore implementations.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
)

// DirStore serves objects from a local directory, one file per key. It is
// used for development against files written by gensnapshot.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Get opens the file for key. Keys may contain forward slashes but must stay
// inside the root.
func (d *DirStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	f, err := os.Open(filepath.Join(d.root, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}
