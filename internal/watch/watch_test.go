package watch_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/euforicio/bundlekit/internal/compiler"
	"github.com/euforicio/bundlekit/internal/watch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitFor(t *testing.T, ch <-chan watch.Event, match func(watch.Event) bool) watch.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed")
			}
			if match(evt) {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestWatcherRebuildsOnChange(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	entry := filepath.Join(root, "src", "main.js")
	writeFile(t, entry, "console.log('one');\n")
	out := filepath.Join(root, "dist")

	c, err := compiler.New(compiler.Options{
		Context:    root,
		Entry:      []string{"src/main.js"},
		OutputPath: out,
		Mode:       compiler.ModeNone,
	}, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var (
		mu      sync.Mutex
		changed []string
	)
	w, err := watch.Start(context.Background(), c, quietLogger(), watch.Options{
		Root:     root,
		Ignore:   []string{out},
		Debounce: 20 * time.Millisecond,
		OnChange: func(path string) {
			mu.Lock()
			changed = append(changed, path)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	first, ok := w.Last()
	if !ok || first.Type != watch.EventBuildSucceeded {
		t.Fatalf("expected successful initial build, got %+v", first)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch := w.Subscribe(subCtx)

	// Give the watcher time to attach.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, entry, "console.log('two');\n")

	evt := waitFor(t, ch, func(e watch.Event) bool { return e.Type == watch.EventBuildSucceeded })
	if evt.Hash == first.Hash {
		t.Fatalf("expected a new hash after the change")
	}
	if evt.BuildID == first.BuildID {
		t.Fatalf("expected a new build id")
	}
	bundle, err := os.ReadFile(filepath.Join(out, "bundle.js"))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if !strings.Contains(string(bundle), "two") {
		t.Fatalf("expected rebuilt bundle, got %s", bundle)
	}

	mu.Lock()
	sawEntry := false
	for _, p := range changed {
		if p == entry {
			sawEntry = true
		}
		if strings.HasPrefix(p, out) {
			t.Errorf("output change leaked into watcher: %s", p)
		}
	}
	mu.Unlock()
	if !sawEntry {
		t.Fatalf("expected OnChange for %s", entry)
	}

	writeFile(t, entry, "import missing from './missing.js';\n")
	failed := waitFor(t, ch, func(e watch.Event) bool { return e.Type == watch.EventBuildFailed })
	if !strings.Contains(failed.Error, "missing.js") {
		t.Fatalf("expected resolve error, got %q", failed.Error)
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.js"), "1;\n")
	c, err := compiler.New(compiler.Options{
		Context:    root,
		Entry:      []string{"main.js"},
		OutputPath: filepath.Join(root, "dist"),
	}, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w, err := watch.Start(context.Background(), c, quietLogger(), watch.Options{Root: root, Ignore: []string{filepath.Join(root, "dist")}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := w.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber channel not closed")
	}
}

func TestStartValidatesArguments(t *testing.T) {
	t.Parallel()
	if _, err := watch.Start(context.Background(), nil, nil, watch.Options{Root: "."}); err == nil {
		t.Fatalf("expected missing builder error")
	}
}
