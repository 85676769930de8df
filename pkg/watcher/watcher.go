// Package watcher notices changes to the inputs of a build: source lists,
// image lists, snapshots and whole image directories.
package watcher

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
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// Common errors.
var (
	ErrNoPaths        = errors.New("no paths to watch")
	ErrPathRemoved    = errors.New("watched path was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDuration = d
	}
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithOnChange sets the callback invoked when any watched path changes.
func WithOnChange(fn func()) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

// WithIgnore excludes paths for which skip returns true from change
// detection, typically the outputs of a build written inside a watched
// directory.
func WithIgnore(skip func(path string) bool) WatcherOption {
	return func(w *Watcher) {
		w.ignore = skip
	}
}

// signature is what polling compares between ticks. Directories fold in
// every entry beneath them.
type signature struct {
	exists  bool
	mtime   time.Time
	size    int64
	entries int
}

// Watcher monitors files and directory trees for changes using fsnotify,
// falling back to polling on remote filesystems or when asked to.
type Watcher struct {
	paths            []string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func()
	onError          func(error)
	forcePoll        bool
	forcePollEnv     bool
	fsType           FilesystemType
	ignore           func(string) bool

	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool
	state       map[string]signature

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan struct{}
}

// NewWatcher creates a watcher over paths. Directories are watched
// recursively.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}
	w := &Watcher{
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func() {},
		onError:          func(error) {},
		changeCh:         make(chan struct{}, 1),
		ignore:           func(string) bool { return false },
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		w.paths = append(w.paths, abs)
	}

	for _, opt := range opts {
		opt(w)
	}

	w.debouncer = NewDebouncer(w.debounceDuration)
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())

	// Reset per-start state.
	w.useFallback = false
	w.forcePollEnv = envBool("SLIDETREE_FORCE_POLL")
	w.fsType = FSTypeUnknown

	for i, p := range w.paths {
		t := DetectFilesystemType(p)
		if i == 0 || isRemoteFilesystem(t) {
			w.fsType = t
		}
		if isRemoteFilesystem(t) {
			w.useFallback = true
		}
	}

	w.state = make(map[string]signature, len(w.paths))
	for _, p := range w.paths {
		sig, err := w.stat(p)
		if err != nil && os.IsPermission(err) {
			w.cancel()
			return ErrPermission
		}
		w.state[p] = sig
	}

	forcePoll := w.forcePoll || w.forcePollEnv
	if !forcePoll && !w.useFallback {
		if fsw, err := fsnotify.NewWatcher(); err != nil {
			w.useFallback = true
		} else if err := w.addAll(fsw); err != nil {
			fsw.Close()
			w.useFallback = true
		} else {
			w.fsWatcher = fsw
			go w.watchFsnotify()
		}
	} else {
		w.useFallback = true
	}

	if w.useFallback {
		go w.watchPolling()
	}

	w.started = true
	return nil
}

// addAll registers every watched file's directory, and every directory
// beneath a watched directory.
func (w *Watcher) addAll(fsw *fsnotify.Watcher) error {
	seen := make(map[string]bool)
	add := func(dir string) error {
		if seen[dir] {
			return nil
		}
		seen[dir] = true
		return fsw.Add(dir)
	}
	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			// Watch the containing directory; it survives atomic renames
			if err := add(filepath.Dir(p)); err != nil {
				return err
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return add(path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop stops watching. The Changed channel is left open so a receiver
// blocked on it is not woken spuriously.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}

	if w.cancel != nil {
		w.cancel()
	}

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}

	w.debouncer.Cancel()
	w.started = false
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed returns a channel that receives after each debounced change.
// This is an alternative to using the OnChange callback.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Paths returns the watched absolute paths.
func (w *Watcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

// FilesystemType returns the best-effort filesystem classification of the
// watched paths. A remote filesystem wins over a local one.
func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

// PollInterval returns the polling interval used when polling mode is active.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// match reports whether name is a watched path, or lies beneath one.
func (w *Watcher) match(name string) (watched string, exact bool) {
	if w.ignore(name) {
		return "", false
	}
	for _, p := range w.paths {
		if name == p {
			return p, true
		}
		if strings.HasPrefix(name, p+string(filepath.Separator)) {
			return p, false
		}
	}
	return "", false
}

// watchFsnotify monitors using fsnotify events.
func (w *Watcher) watchFsnotify() {
	// Capture channel references to avoid race with Stop() setting fsWatcher to nil
	w.mu.RLock()
	fsw := w.fsWatcher
	w.mu.RUnlock()
	if fsw == nil {
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			watched, exact := w.match(filepath.Clean(event.Name))
			if watched == "" {
				continue
			}

			switch {
			case exact && event.Op&fsnotify.Remove != 0:
				w.onError(ErrPathRemoved)

			case event.Op&fsnotify.Create != 0:
				// New subdirectories of a watched tree need their own watch
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = fsw.Add(event.Name)
				}
				w.debouncer.Trigger(w.notifyChange)

			case event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0:
				w.debouncer.Trigger(w.notifyChange)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

// watchPolling monitors using periodic stat checks.
func (w *Watcher) watchPolling() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			changed := false
			for _, p := range w.paths {
				sig, err := w.stat(p)
				if err != nil {
					if os.IsPermission(err) {
						w.onError(ErrPermission)
					} else {
						w.onError(err)
					}
					continue
				}

				w.mu.Lock()
				prev := w.state[p]
				w.state[p] = sig
				w.mu.Unlock()

				switch {
				case prev.exists && !sig.exists:
					w.onError(ErrPathRemoved)
				case sig != prev:
					changed = true
				}
			}
			if changed {
				w.debouncer.Trigger(w.notifyChange)
			}
		}
	}
}

// stat summarizes path. A missing path is not an error.
func (w *Watcher) stat(path string) (signature, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return signature{}, nil
		}
		return signature{}, err
	}
	sig := signature{exists: true, mtime: info.ModTime(), size: info.Size()}
	if !info.IsDir() {
		return sig, nil
	}
	// Directory mtimes move whenever an ignored file is written, so only
	// files count.
	sig.size = 0
	sig.mtime = time.Time{}
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if w.ignore(p) || d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		sig.entries++
		sig.size += fi.Size()
		if fi.ModTime().After(sig.mtime) {
			sig.mtime = fi.ModTime()
		}
		return nil
	})
	return sig, nil
}

// notifyChange invokes the onChange callback and signals the change channel.
func (w *Watcher) notifyChange() {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()

	// Best effort: a callback may still slip through right after Stop
	if !started {
		return
	}

	w.onChange()

	// Non-blocking send to change channel
	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
