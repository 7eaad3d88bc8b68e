// Package reload watches the local artifact directory and swaps freshly
// persisted indexes into a running engine.
package reload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/statsearch/internal/artifact"
	"github.com/hyperjump/statsearch/internal/indexer"
	"github.com/hyperjump/statsearch/internal/vector"
)

const defaultDebounce = 400 * time.Millisecond

// ErrStopped is returned by a debounced reload that completes after Stop.
var ErrStopped = errors.New("reloader stopped")

// Swapper receives each newly loaded snapshot.
type Swapper interface {
	Swap(*vector.Store) *vector.Store
}

// Reloader reloads the index whenever the manifest artifact is rewritten.
// The manifest is the last artifact a build writes, so a manifest event
// means the vector and id artifacts are already in place.
type Reloader struct {
	store     *artifact.LocalStore
	dimension int
	model     string
	target    Swapper
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	ctx      context.Context
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithLogger sets a logger for reload events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reloader) { r.logger = l }
}

// WithDebounce sets how long to wait after the last manifest event before reloading.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// New creates a Reloader for the artifacts in store, decoded with dimension.
// Builds embedded by a model other than model are rejected.
func New(store *artifact.LocalStore, dimension int, model string, target Swapper, opts ...Option) *Reloader {
	r := &Reloader{
		store:     store,
		dimension: dimension,
		model:     model,
		target:    target,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := os.MkdirAll(r.store.Root(), 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.store.Root()); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", r.store.Root(), err)
	}
	r.watcher = watcher
	r.ctx = ctx
	r.started = true
	r.logger.Info("watching artifacts for reload", zap.String("dir", r.store.Root()))
	go r.run(ctx, watcher)
	return nil
}

func (r *Reloader) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			r.Stop()
			return
		case <-r.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			r.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				r.logger.Debug("reload watcher error", zap.Error(err))
			}
		}
	}
}

func (r *Reloader) handleEvent(ev fsnotify.Event) {
	if filepath.Base(ev.Name) != indexer.ManifestArtifact {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	r.logger.Debug("manifest changed", zap.String("op", ev.Op.String()))
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	ctx := r.ctx
	r.timer = time.AfterFunc(r.debounce, func() {
		_ = r.reloadIfRunning(ctx)
	})
}

// Reload loads the persisted index and swaps it into the target. On failure
// the current snapshot is kept and the error is returned.
func (r *Reloader) Reload(ctx context.Context) error {
	store, manifest, err := r.load(ctx)
	if err != nil {
		return err
	}
	r.swap(store, manifest)
	return nil
}

// reloadIfRunning is the debounced reload. The swap happens under mu after
// checking started, so nothing is swapped in once Stop has returned.
func (r *Reloader) reloadIfRunning(ctx context.Context) error {
	store, manifest, err := r.load(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		r.logger.Debug("reloader stopped, discarding loaded index")
		return ErrStopped
	}
	r.swap(store, manifest)
	return nil
}

func (r *Reloader) load(ctx context.Context) (*vector.Store, *indexer.Manifest, error) {
	store, manifest, err := indexer.Load(ctx, r.store, r.dimension, r.model)
	if err != nil {
		r.logger.Warn("index reload failed, keeping current snapshot", zap.Error(err))
		return nil, nil, err
	}
	return store, manifest, nil
}

func (r *Reloader) swap(store *vector.Store, manifest *indexer.Manifest) {
	r.target.Swap(store)
	fields := []zap.Field{zap.Int("count", store.Len())}
	if manifest != nil {
		fields = append(fields, zap.String("build_id", manifest.BuildID))
	}
	r.logger.Info("index reloaded", fields...)
}

// Stop stops watching and cancels any pending reload.
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	_ = r.watcher.Close()
	r.watcher = nil
	r.started = false
	r.mu.Unlock()
	r.stopOnce.Do(func() { close(r.done) })
}
