package persist

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// Backend names reported by Route.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// DefaultProject names the SQLite project used when a path has no
// #project suffix.
const DefaultProject = "default"

// Backend loads and saves whole documents.
type Backend interface {
	Load(ctx context.Context, path string) ([]byte, error)
	Save(ctx context.Context, path string, data []byte) error
}

// Router dispatches each path to the backend its form selects. It
// implements engine.Storage.
//
// SQLite databases are opened on first use and stay open until Close.
type Router struct {
	file   File
	memory *Memory
	s3     *S3
	log    *slog.Logger

	mu  sync.Mutex
	dbs map[string]*SQLite
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithS3 enables s3:// paths.
func WithS3(s *S3) RouterOption {
	return func(r *Router) { r.s3 = s }
}

// WithMemory shares m for mem:// paths.
func WithMemory(m *Memory) RouterOption {
	return func(r *Router) { r.memory = m }
}

// WithLogger logs backend selection to l.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// NewRouter returns a router. Without WithS3, s3:// paths fail.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{log: slog.Default(), dbs: make(map[string]*SQLite)}
	for _, opt := range opts {
		opt(r)
	}
	if r.memory == nil {
		r.memory = NewMemory()
	}
	return r
}

// Route reports the backend for path and the key that backend sees.
func Route(path string) (backend, key string) {
	switch {
	case strings.HasPrefix(path, "s3://"):
		return BackendS3, path
	case strings.HasPrefix(path, "mem://"):
		return BackendMemory, strings.TrimPrefix(path, "mem://")
	}
	file, _, _ := strings.Cut(path, "#")
	switch strings.ToLower(filepath.Ext(file)) {
	case ".db", ".sqlite", ".sqlite3":
		return BackendSQLite, path
	}
	return BackendFile, path
}

// splitProject splits file.db#project.
func splitProject(path string) (file, project string) {
	file, project, _ = strings.Cut(path, "#")
	if project == "" {
		project = DefaultProject
	}
	return file, project
}

// SQLite returns the database at file, opening it on first use.
func (r *Router) SQLite(file string) (*SQLite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[file]; ok {
		return db, nil
	}
	db, err := OpenSQLite(file)
	if err != nil {
		return nil, model.Other(err)
	}
	r.dbs[file] = db
	return db, nil
}

func (r *Router) backend(path string) (Backend, string, error) {
	name, key := Route(path)
	switch name {
	case BackendS3:
		if r.s3 == nil {
			return nil, "", model.Otherf("s3 storage is not configured for %s", path)
		}
		return r.s3, key, nil
	case BackendMemory:
		return r.memory, key, nil
	case BackendSQLite:
		file, project := splitProject(key)
		db, err := r.SQLite(file)
		if err != nil {
			return nil, "", err
		}
		return db, project, nil
	default:
		return r.file, key, nil
	}
}

// Load reads the document at path.
func (r *Router) Load(ctx context.Context, path string) ([]byte, error) {
	b, key, err := r.backend(path)
	if err != nil {
		return nil, err
	}
	data, err := b.Load(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrFileNotFound) {
			return nil, model.FileNotFound(path)
		}
		return nil, err
	}
	r.log.Debug("document loaded", "path", path, "bytes", len(data))
	return data, nil
}

// Save writes data to path.
func (r *Router) Save(ctx context.Context, path string, data []byte) error {
	b, key, err := r.backend(path)
	if err != nil {
		return err
	}
	if err := b.Save(ctx, key, data); err != nil {
		return err
	}
	r.log.Debug("document saved", "path", path, "bytes", len(data))
	return nil
}

// Close closes every SQLite database the router opened.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for file, db := range r.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.dbs, file)
	}
	return errors.Join(errs...)
}
