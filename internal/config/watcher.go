package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ReloadFunc receives the previous config, the reloaded one and what changed
// between them.
type ReloadFunc func(old, updated *Config, d ConfigDiff)

// Watcher polls a config file and calls its [ReloadFunc] when an edit
// validates and changes at least one setting. Invalid edits are logged and
// the previous config stays current.
type Watcher struct {
	path     string
	fs       afero.Fs
	interval time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	current *Config
	seen    fileStamp

	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp identifies one version of the file. The size and mtime are
// compared first so unchanged files are never read.
type fileStamp struct {
	size  int64
	mtime time.Time
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchFs reads the config through fs instead of the OS filesystem.
func WithWatchFs(fs afero.Fs) WatcherOption {
	return func(w *Watcher) {
		if fs != nil {
			w.fs = fs
		}
	}
}

// NewWatcher loads path and starts polling it in the background. onReload
// may be nil.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		fs:       afero.NewOsFs(),
		interval: 5 * time.Second,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.seen = cfg, stamp

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

// Check polls the file once and reports whether a reload was delivered.
// Edits that only touch comments or formatting update the stamp without a
// callback.
func (w *Watcher) Check() (bool, error) {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	seen := w.seen
	w.mu.Unlock()
	if info.Size() == seen.size && info.ModTime().Equal(seen.mtime) {
		return false, nil
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if stamp.sum == w.seen.sum {
		w.seen = stamp
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	d := Diff(old, cfg)
	w.seen = stamp
	w.current = cfg
	w.mu.Unlock()

	if !d.Changed() {
		return false, nil
	}
	slog.Info("configuration reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged, "restart_required", d.RestartRequired)
	if w.onReload != nil {
		w.onReload(old, cfg, d)
	}
	return true, nil
}

func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := afero.ReadFile(w.fs, w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{size: int64(len(data)), mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
