package process

import (
	"fmt"
	"os"
	"sync"
)

// TempDir is a private scratch directory released exactly once.
type TempDir struct {
	path string
	once sync.Once
	err  error
}

// NewTempDir creates a directory under the system temp dir.
func NewTempDir(pattern string) (*TempDir, error) {
	path, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the directory's path.
func (d *TempDir) Path() string {
	return d.path
}

// Release removes the directory and its contents. Later calls return the
// result of the first.
func (d *TempDir) Release() error {
	d.once.Do(func() {
		d.err = os.RemoveAll(d.path)
	})
	return d.err
}
