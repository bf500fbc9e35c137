// Package watch rebuilds on source changes and notifies subscribers of build results.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/euforicio/bundlekit/internal/compiler"
)

// Event types.
const (
	EventBuildSucceeded = "buildSucceeded"
	EventBuildFailed    = "buildFailed"
)

// DefaultDebounce groups bursts of file events, such as an editor's save sequence.
const DefaultDebounce = 100 * time.Millisecond

// Event describes the outcome of one build.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	BuildID   string    `json:"buildId,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	Changed   []string  `json:"changed,omitempty"`
}

// Builder runs one build. *compiler.Compiler satisfies it.
type Builder interface {
	Run(ctx context.Context) (*compiler.Stats, error)
}

// Options configure a Watcher.
type Options struct {
	// Root is the directory tree to watch.
	Root string
	// Ignore lists directories never watched, typically the output directory.
	Ignore []string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// OnChange is called with the absolute path of every relevant change before the rebuild.
	OnChange func(path string)
}

// Watcher owns an fsnotify watcher and a build loop.
type Watcher struct {
	ctx      context.Context
	cancel   context.CancelFunc
	builder  Builder
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	opts     Options
	done     chan struct{}
	last     atomic.Pointer[Event]
	subs     map[uint64]*subscriber
	subCount atomic.Uint64
	subsMu   sync.RWMutex
}

type subscriber struct {
	ctx context.Context
	ch  chan Event
}

// Start runs an initial build, then rebuilds whenever files under opts.Root change.
// A failed initial build is reported to subscribers, not returned.
func Start(parentCtx context.Context, builder Builder, logger *slog.Logger, opts Options) (*Watcher, error) {
	if builder == nil {
		return nil, errors.New("builder must be provided")
	}
	if opts.Root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	opts.Root = root
	for i, dir := range opts.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			opts.Ignore[i] = abs
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	w := &Watcher{
		ctx:     ctx,
		cancel:  cancel,
		builder: builder,
		logger:  logger.With("component", "watch"),
		watcher: fw,
		opts:    opts,
		done:    make(chan struct{}),
		subs:    make(map[uint64]*subscriber),
	}

	if err := w.watchRecursive(root); err != nil {
		cancel()
		_ = fw.Close()
		return nil, err
	}

	w.rebuild(nil)
	go w.run()
	return w, nil
}

// Close stops watching and closes all subscriber channels.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

// Last returns the most recent build event.
func (w *Watcher) Last() (Event, bool) {
	evt := w.last.Load()
	if evt == nil {
		return Event{}, false
	}
	return *evt, true
}

// Subscribe registers for build events. The returned channel closes when ctx is done or the
// watcher is closed. Slow subscribers miss events rather than block the build loop.
func (w *Watcher) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 8)
	id := w.subCount.Add(1)

	w.subsMu.Lock()
	w.subs[id] = &subscriber{ctx: ctx, ch: ch}
	w.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-w.ctx.Done():
		}
		w.removeSubscriber(id)
	}()

	return ch
}

func (w *Watcher) run() {
	defer close(w.done)

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	pending := map[string]struct{}{}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.handleEvent(event) {
				pending[w.relativePath(event.Name)] = struct{}{}
				timer.Reset(w.opts.Debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.Any("err", err))
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]struct{}{}
			w.rebuild(changed)
		case <-w.ctx.Done():
			return
		}
	}
}

// handleEvent reports whether the event should trigger a rebuild.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if event.Name == "" || event.Op == fsnotify.Chmod {
		return false
	}
	if w.skip(event.Name) {
		return false
	}

	w.logger.Debug("fsnotify event", slog.String("path", w.relativePath(event.Name)), slog.String("op", event.Op.String()))

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watchRecursive(event.Name)
		}
	}
	if w.opts.OnChange != nil {
		w.opts.OnChange(event.Name)
	}
	return true
}

func (w *Watcher) rebuild(changed []string) {
	stats, err := w.builder.Run(w.ctx)
	evt := Event{Timestamp: time.Now(), Changed: changed}
	switch {
	case err != nil:
		if w.ctx.Err() != nil {
			return
		}
		evt.Type = EventBuildFailed
		evt.Error = err.Error()
		w.logger.Error("rebuild failed", slog.Any("err", err), slog.Any("changed", changed))
	default:
		evt.Type = EventBuildSucceeded
		evt.BuildID = stats.ID
		evt.Hash = stats.Hash
	}
	w.last.Store(&evt)
	w.broadcast(evt)
}

func (w *Watcher) broadcast(evt Event) {
	w.subsMu.RLock()
	var stale []uint64
	for id, sub := range w.subs {
		select {
		case <-sub.ctx.Done():
			stale = append(stale, id)
		case sub.ch <- evt:
		default:
			// drop event when subscriber lags
		}
	}
	w.subsMu.RUnlock()

	for _, id := range stale {
		w.removeSubscriber(id)
	}
}

func (w *Watcher) removeSubscriber(id uint64) {
	w.subsMu.Lock()
	if sub, ok := w.subs[id]; ok {
		close(sub.ch)
		delete(w.subs, id)
	}
	w.subsMu.Unlock()
}

func (w *Watcher) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.opts.Root && w.skip(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("err", err))
		}
		return nil
	})
}

// skip reports whether path lives in an ignored, hidden or dependency directory.
func (w *Watcher) skip(path string) bool {
	for _, dir := range w.opts.Ignore {
		if path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator)) {
			return true
		}
	}
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == "node_modules" || (strings.HasPrefix(part, ".") && part != "." && part != "..") {
			return true
		}
	}
	return false
}

func (w *Watcher) relativePath(abs string) string {
	rel, err := filepath.Rel(w.opts.Root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}
