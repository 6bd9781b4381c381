package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"claimchain/internal/logging"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	fired chan struct{}
	once  sync.Once
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{})}
}

func (r *recorder) trigger(_ context.Context, changed []string) {
	r.mu.Lock()
	r.paths = append(r.paths, changed...)
	r.mu.Unlock()
	r.once.Do(func() { close(r.fired) })
}

func (r *recorder) sawSuffix(suffix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if filepath.Base(p) == suffix {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, root string, rec *recorder) *Watcher {
	t.Helper()
	w, err := New(root, 50*time.Millisecond, rec.trigger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherFiresOnGoFileChange(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, rec)

	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger never fired for a .go file change")
	}
	if !rec.sawSuffix("main.go") {
		t.Errorf("changed paths = %v, want main.go among them", rec.paths)
	}
}

func TestWatcherIgnoresNonGoFiles(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, rec)

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rec.fired:
		t.Fatalf("trigger fired for a non-Go file: %v", rec.paths)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherLogsUnderWatchCategory(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logging.Install(zap.New(core))
	defer logging.Install(nil)

	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, rec)

	if err := os.WriteFile(filepath.Join(root, "change.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger never fired for a .go file change")
	}

	entries := logs.All()
	if len(entries) == 0 {
		t.Fatal("watcher emitted no log entries")
	}
	for _, e := range entries {
		if e.LoggerName != string(logging.CategoryWatch) {
			t.Errorf("LoggerName = %q, want %q", e.LoggerName, logging.CategoryWatch)
		}
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	w := startWatcher(t, root, rec)

	w.Stop()
	w.Stop()
}
