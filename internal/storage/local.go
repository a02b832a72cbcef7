package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local reads and writes plain files.
type Local struct{}

// NewLocal returns a filesystem store.
func NewLocal() *Local {
	return &Local{}
}

// Open opens a file for reading.
func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// Create truncates or creates a file, making parent directories as needed.
func (l *Local) Create(_ context.Context, path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}
