// internal/watch/coordinator.go
package watch

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"ck3watch/internal/backup"
	"ck3watch/internal/errors"
	"ck3watch/internal/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrWatcherClosed is returned by Run when the notification source shuts
// down before the context is done.
var ErrWatcherClosed = stderrors.New("file watcher closed")

// Handler processes one save file. Calls are never concurrent.
type Handler interface {
	Process(path string) (backup.Outcome, error)
}

type Options struct {
	// Fs is used to list the save directory. Defaults to the OS filesystem.
	Fs afero.Fs
	// QueueSize bounds the number of distinct saves waiting for the worker.
	QueueSize int
	// Reconcile queues every existing save once at start, catching saves
	// written while nothing was watching.
	Reconcile bool
}

// Coordinator turns filesystem notifications on the save directory into
// handler calls. Events go through a queue drained by a single worker, so
// the detect, rotate and copy steps for a save never overlap.
type Coordinator struct {
	fs      afero.Fs
	dir     string
	handler Handler
	opts    Options
	logger  *zap.Logger

	queue   chan string
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewCoordinator(dir string, handler Handler, logger *zap.Logger, opts Options) *Coordinator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return &Coordinator{
		fs:      opts.Fs,
		dir:     dir,
		handler: handler,
		opts:    opts,
		logger:  logging.Named(logger, "watch"),
		queue:   make(chan string, opts.QueueSize),
		pending: make(map[string]struct{}),
	}
}

// Run watches until ctx is done. An event already being handled runs to
// completion before Run returns; queued events that have not started are
// dropped. If the watcher itself stops first, Run returns ErrWatcherClosed.
func (c *Coordinator) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watching %s: %w", c.dir, err)
	}
	c.logger.Info("watching save directory", zap.String("dir", c.dir))

	done := make(chan struct{})
	go c.worker(ctx, done)

	if c.opts.Reconcile {
		if err := c.reconcile(ctx); err != nil {
			c.logger.Warn("reconciling existing saves", zap.Error(err))
		}
	}

	err = c.watchLoop(ctx, watcher)

	close(c.queue)
	<-done
	if err != nil {
		c.logger.Error("stopped watching", zap.String("dir", c.dir), zap.Error(err))
		return err
	}
	c.logger.Info("stopped watching", zap.String("dir", c.dir))
	return nil
}

// watchLoop processes filesystem events until ctx is done or the watcher
// closes its channels.
func (c *Coordinator) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return c.closed(ctx)
			}
			c.handleFSEvent(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return c.closed(ctx)
			}
			c.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (c *Coordinator) closed(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return ErrWatcherClosed
}

// handleFSEvent queues creates and writes of save files
func (c *Coordinator) handleFSEvent(ctx context.Context, event fsnotify.Event) {
	if !isSaveFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	c.enqueue(ctx, event.Name)
}

// enqueue adds path unless it is already waiting. It blocks while the
// queue is full.
func (c *Coordinator) enqueue(ctx context.Context, path string) {
	c.mu.Lock()
	if _, ok := c.pending[path]; ok {
		c.mu.Unlock()
		return
	}
	c.pending[path] = struct{}{}
	c.mu.Unlock()

	select {
	case c.queue <- path:
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, path)
		c.mu.Unlock()
	}
}

func (c *Coordinator) worker(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for path := range c.queue {
		c.mu.Lock()
		delete(c.pending, path)
		c.mu.Unlock()

		if ctx.Err() != nil {
			continue
		}
		c.process(path)
	}
}

func (c *Coordinator) process(path string) {
	outcome, err := c.handler.Process(path)
	switch {
	case err == nil:
		c.logger.Debug("handled save", zap.String("path", path), zap.Stringer("outcome", outcome))
	case errors.IsType(err, errors.ErrorTypeTransient):
		c.logger.Debug("save vanished", zap.String("path", path), zap.Error(err))
	default:
		c.logger.Error("backup failed", zap.String("path", path), zap.Error(err))
	}
}

func (c *Coordinator) reconcile(ctx context.Context) error {
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return errors.IOError("readdir", c.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isSaveFile(e.Name()) {
			continue
		}
		c.enqueue(ctx, filepath.Join(c.dir, e.Name()))
	}
	return nil
}

func isSaveFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), backup.Extension)
}
