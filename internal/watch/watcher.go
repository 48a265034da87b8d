// Package watch monitors the camera drop directory and feeds the ingestion
// queue once files stop growing.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Enqueuer receives stable photo paths.
type Enqueuer interface {
	Enqueue(path string)
}

// Watcher monitors the watched tree recursively for new photos. Cameras
// write files incrementally, so a photo is only handed to the queue after
// its size has stopped changing for the stability window.
type Watcher struct {
	dir       string
	stability time.Duration
	poll      time.Duration
	queue     Enqueuer
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func New(dir string, stability, poll time.Duration, queue Enqueuer, log zerolog.Logger) *Watcher {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Watcher{
		dir:       dir,
		stability: stability,
		poll:      poll,
		queue:     queue,
		log:       log,
		pending:   map[string]struct{}{},
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := w.addTree(watcher, w.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				w.handleEvent(ctx, watcher, evt)
			case err := <-watcher.Errors:
				w.log.Error().Err(err).Msg("watcher error")
			}
		}
	}()

	w.log.Info().Str("dir", w.dir).Msg("watching for photos")
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, evt fsnotify.Event) {
	if evt.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	info, err := os.Stat(evt.Name)
	if err != nil {
		return
	}

	// Cameras create date and site directories on the fly; each new one
	// has to be watched too.
	if info.IsDir() {
		if err := w.addTree(watcher, evt.Name); err != nil {
			w.log.Error().Err(err).Str("dir", evt.Name).Msg("failed to watch new directory")
		}
		return
	}

	if !isPhoto(evt.Name) {
		return
	}
	w.trackFile(ctx, evt.Name)
}

// trackFile starts a stability poll for the path unless one is already
// running.
func (w *Watcher) trackFile(ctx context.Context, path string) {
	w.mu.Lock()
	if _, dup := w.pending[path]; dup {
		w.mu.Unlock()
		return
	}
	w.pending[path] = struct{}{}
	w.mu.Unlock()

	go w.awaitStable(ctx, path)
}

// awaitStable polls the file size until it stays unchanged for the
// stability window, then enqueues the path. A file that disappears
// mid-poll is dropped.
func (w *Watcher) awaitStable(ctx context.Context, path string) {
	defer func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
	}()

	var (
		lastSize  int64 = -1
		stableFor time.Duration
	)
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				w.log.Debug().Str("path", path).Msg("file vanished before stabilizing")
				return
			}
			if info.Size() != lastSize {
				lastSize = info.Size()
				stableFor = 0
				continue
			}
			stableFor += w.poll
			if stableFor >= w.stability {
				w.queue.Enqueue(path)
				return
			}
		}
	}
}

// Backfill enqueues photos already present in the tree at startup. These
// predate the watcher, so they are assumed fully written.
func (w *Watcher) Backfill(ctx context.Context) error {
	count := 0
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isPhoto(path) {
			return nil
		}
		w.queue.Enqueue(path)
		count++
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if count > 0 {
		w.log.Info().Int("count", count).Msg("backfilled existing photos")
	}
	return err
}

func (w *Watcher) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func isPhoto(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}
