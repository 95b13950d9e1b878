// Package registry maps open file paths to their engines and tracks which
// users have each file open.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/outbox"
)

// openFile is one loaded project.
type openFile struct {
	engine *engine.Engine
	group  *outbox.Group
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns every open engine. A user has at most one current file;
// opening another leaves the previous one.
type Registry struct {
	outbox  *outbox.Outbox
	storage engine.Storage
	opts    []engine.Option
	log     *slog.Logger

	mu       sync.Mutex
	files    map[string]*openFile
	sessions map[model.UserID]string
}

// Option configures a Registry.
type Option func(*Registry)

// WithEngineOptions applies opts to every engine the registry creates.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// WithLogger logs file lifecycle events to l.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// New returns an empty registry delivering through out and persisting to
// storage.
func New(out *outbox.Outbox, storage engine.Storage, opts ...Option) *Registry {
	r := &Registry{
		outbox:   out,
		storage:  storage,
		log:      slog.Default(),
		files:    make(map[string]*openFile),
		sessions: make(map[model.UserID]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// start launches the engine's propagation loop.
func (r *Registry) start(path string, e *engine.Engine, g *outbox.Group) *openFile {
	ctx, cancel := context.WithCancel(context.Background())
	f := &openFile{engine: e, group: g, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("engine loop failed", "path", path, "error", err)
		}
	}()
	return f
}

func (f *openFile) stop() {
	f.engine.Stop()
	<-f.done
	f.cancel()
}

// leaveLocked removes user from its current file, dropping the file when
// it was the last user. Returns the file to stop, if any.
func (r *Registry) leaveLocked(user model.UserID) *openFile {
	path, ok := r.sessions[user]
	if !ok {
		return nil
	}
	delete(r.sessions, user)
	f, ok := r.files[path]
	if !ok {
		return nil
	}
	if f.group.Leave(user) > 0 {
		return nil
	}
	delete(r.files, path)
	r.log.Info("file closed", "path", path)
	return f
}

func (r *Registry) enter(user model.UserID, path string, f *openFile) error {
	if err := f.group.Join(user); err != nil {
		return err
	}
	r.sessions[user] = path
	return nil
}

// InitFile creates an empty project at path and makes it user's current
// file. Nothing is written until SaveFile.
func (r *Registry) InitFile(ctx context.Context, path string, user model.UserID) error {
	if _, err := r.outbox.Mailbox(user); err != nil {
		return err
	}
	r.mu.Lock()
	if _, ok := r.files[path]; ok {
		r.mu.Unlock()
		return model.Otherf("file %s is already open", path)
	}
	prev := r.leaveLocked(user)
	g := outbox.NewGroup(r.outbox, path)
	f := r.start(path, engine.New(g, r.opts...), g)
	r.files[path] = f
	err := r.enter(user, path, f)
	r.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	if err != nil {
		return err
	}
	r.log.Info("file initialised", "path", path, "user", user)
	return nil
}

// OpenFile makes path user's current file, loading it from storage unless
// another user already has it open. The user receives every entity.
//
// Storage is read without holding the registry lock. If another user opens
// path during the load, the loaded copy is discarded and user joins theirs.
func (r *Registry) OpenFile(ctx context.Context, path string, user model.UserID) error {
	if _, err := r.outbox.Mailbox(user); err != nil {
		return err
	}
	joined, ok, err := r.join(path, user)
	if err != nil {
		return err
	}
	if ok {
		return joined.UpdateAll(ctx, user)
	}

	g := outbox.NewGroup(r.outbox, path)
	if err := g.Join(user); err != nil {
		return err
	}
	e, err := engine.Open(ctx, r.storage, path, user, g, r.opts...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.files[path]; ok {
		r.mu.Unlock()
		r.log.Debug("concurrent open, discarding loaded copy", "path", path, "user", user)
		winner, _, err := r.join(path, user)
		if err != nil {
			return err
		}
		return winner.UpdateAll(ctx, user)
	}
	prev := r.leaveLocked(user)
	r.files[path] = r.start(path, e, g)
	r.sessions[user] = path
	r.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	r.log.Info("file opened", "path", path, "user", user)
	return nil
}

// join makes the already open file at path user's current file. It reports
// false when path is not open.
func (r *Registry) join(path string, user model.UserID) (*engine.Engine, bool, error) {
	r.mu.Lock()
	if cur, ok := r.sessions[user]; ok && cur == path {
		e := r.files[path].engine
		r.mu.Unlock()
		return e, true, nil
	}
	f, ok := r.files[path]
	if !ok {
		r.mu.Unlock()
		return nil, false, nil
	}
	prev := r.leaveLocked(user)
	err := r.enter(user, path, f)
	r.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	if err != nil {
		return nil, true, err
	}
	r.log.Info("file joined", "path", path, "user", user, "users", len(f.group.Users()))
	return f.engine, true, nil
}

// SaveFile writes the open project at path back to storage.
func (r *Registry) SaveFile(ctx context.Context, path string) error {
	e, err := r.Engine(path)
	if err != nil {
		return err
	}
	return e.Save(ctx, r.storage, path)
}

// SaveAsFile writes the project open at path to newPath and re-keys it:
// every user of path now has newPath open. Storage is written without
// holding the registry lock.
func (r *Registry) SaveAsFile(ctx context.Context, path, newPath string) error {
	r.mu.Lock()
	f, ok := r.files[path]
	if !ok {
		r.mu.Unlock()
		return model.FileNotFound(path)
	}
	if path != newPath {
		if _, ok := r.files[newPath]; ok {
			r.mu.Unlock()
			return model.Otherf("file %s is already open", newPath)
		}
	}
	r.mu.Unlock()

	if err := f.engine.Save(ctx, r.storage, newPath); err != nil {
		return err
	}
	if path == newPath {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.files[path] != f {
		return model.FileNotFound(path)
	}
	if _, ok := r.files[newPath]; ok {
		return model.Otherf("file %s is already open", newPath)
	}
	delete(r.files, path)
	r.files[newPath] = f
	f.group.Rename(newPath)
	for user, p := range r.sessions {
		if p == path {
			r.sessions[user] = newPath
		}
	}
	r.log.Info("file saved as", "from", path, "to", newPath)
	return nil
}

// CloseFile removes user from path. The engine is dropped when its last
// user leaves; unsaved changes are discarded.
func (r *Registry) CloseFile(ctx context.Context, path string, user model.UserID) error {
	r.mu.Lock()
	f, ok := r.files[path]
	if !ok {
		r.mu.Unlock()
		return model.FileNotFound(path)
	}
	if !f.group.Contains(user) {
		r.mu.Unlock()
		return model.UserNotFound(user)
	}
	prev := r.leaveLocked(user)
	r.mu.Unlock()
	if prev != nil {
		prev.stop()
	}
	return nil
}

// Engine returns the engine of the open file at path.
func (r *Registry) Engine(path string) (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[path]
	if !ok {
		return nil, model.FileNotFound(path)
	}
	return f.engine, nil
}

// Current returns user's current file and its engine.
func (r *Registry) Current(user model.UserID) (string, *engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.sessions[user]
	if !ok {
		return "", nil, model.UserNotFound(user)
	}
	return path, r.files[path].engine, nil
}

// Users lists the users who have path open.
func (r *Registry) Users(path string) ([]model.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[path]
	if !ok {
		return nil, model.FileNotFound(path)
	}
	return f.group.Users(), nil
}

// Files lists open paths in order.
func (r *Registry) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.files))
	for p := range r.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Disconnect removes user from whatever file it has open.
func (r *Registry) Disconnect(user model.UserID) {
	r.mu.Lock()
	prev := r.leaveLocked(user)
	r.mu.Unlock()
	if prev != nil {
		prev.stop()
	}
}

// Close drops every open file without saving.
func (r *Registry) Close() {
	r.mu.Lock()
	files := r.files
	r.files = make(map[string]*openFile)
	r.sessions = make(map[model.UserID]string)
	r.mu.Unlock()
	for _, f := range files {
		f.stop()
	}
}
