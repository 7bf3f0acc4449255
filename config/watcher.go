package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 500 * time.Millisecond

// WatcherOption configures a DeclarationWatcher.
type WatcherOption func(*DeclarationWatcher)

// WithWatchDebounce sets how long the file must stay quiet before it is
// reloaded. Non-positive values keep the default.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *DeclarationWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *DeclarationWatcher) { w.logger = l }
}

// DeclarationWatcher reloads a declaration file when its content changes and
// hands every successfully parsed revision to a callback. Declarations that
// fail to parse are reported in the log and never delivered.
type DeclarationWatcher struct {
	source   *FileSource
	debounce time.Duration
	logger   *slog.Logger
	onChange func(ChangeEvent)

	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
	stopErr error

	// applied is the hash of the last delivered revision; owned by run.
	applied string
}

// NewDeclarationWatcher creates a DeclarationWatcher for the given FileSource.
func NewDeclarationWatcher(source *FileSource, onChange func(ChangeEvent), opts ...WatcherOption) *DeclarationWatcher {
	w := &DeclarationWatcher{
		source:   source,
		debounce: defaultWatchDebounce,
		logger:   slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start records the current content as already applied and begins watching.
// The parent directory is watched so editors that save by renaming a temp
// file over the original are seen too.
func (w *DeclarationWatcher) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	hash, err := w.source.Hash(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("watch declaration: %w", err)
	}
	w.applied = hash

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return fmt.Errorf("watch declaration: %w", err)
	}
	dir := filepath.Dir(w.source.Path())
	if err := fsw.Add(dir); err != nil {
		cancel()
		_ = fsw.Close()
		return fmt.Errorf("watch declaration: add %s: %w", dir, err)
	}

	w.fsw, w.cancel = fsw, cancel
	w.stopped = make(chan struct{})
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the reload loop to exit. Repeated calls
// return the result of the first.
func (w *DeclarationWatcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.once.Do(func() {
		w.cancel()
		<-w.stopped
		w.stopErr = w.fsw.Close()
	})
	return w.stopErr
}

func (w *DeclarationWatcher) run(ctx context.Context) {
	defer close(w.stopped)

	// Every relevant event pushes the reload back by one debounce period,
	// so a burst of writes produces a single reload.
	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.touches(ev) {
				quiet.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", "err", err)
		case <-quiet.C:
			w.reload(ctx)
		}
	}
}

// touches reports whether ev may have replaced the declaration file. Creates
// and renames elsewhere in the directory count as well: a symlink swap of a
// mounted volume never names the file itself.
func (w *DeclarationWatcher) touches(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) == filepath.Clean(w.source.Path()) {
		return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
	}
	return ev.Op&(fsnotify.Create|fsnotify.Rename) != 0
}

func (w *DeclarationWatcher) reload(ctx context.Context) {
	log := w.logger.With("path", w.source.Path())

	hash, err := w.source.Hash(ctx)
	if err != nil {
		log.Error("cannot read declaration", "err", err)
		return
	}
	if hash == w.applied {
		log.Debug("declaration content unchanged")
		return
	}

	// A rejected revision leaves applied untouched so the next save is
	// compared against the last good content.
	decl, err := w.source.Load(ctx)
	if err != nil {
		log.Error("declaration rejected, keeping previous revision", "err", err)
		return
	}

	evt := ChangeEvent{
		Source:      w.source.Name(),
		OldHash:     w.applied,
		NewHash:     hash,
		Declaration: decl,
		Time:        time.Now(),
	}
	w.applied = hash
	log.Info("declaration changed", "version", decl.Version, "hash", hash[:12])
	w.onChange(evt)
}
