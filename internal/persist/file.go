package persist

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/cadstore/internal/model"
)

// File stores documents as local files.
type File struct{}

// Load reads path.
func (File) Load(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.FileNotFound(path)
	}
	if err != nil {
		return nil, model.Other(err)
	}
	return data, nil
}

// Save writes data to a temporary file next to path and renames it over
// path, so readers never observe a partial document.
func (File) Save(_ context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.Other(err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return model.Other(err)
	}
	name := tmp.Name()
	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(name)
		return model.Other(err)
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return model.Other(err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return model.Other(err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return model.Other(err)
	}
	return nil
}
