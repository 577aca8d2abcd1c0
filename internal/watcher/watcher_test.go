package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) onChange(path string) {
	r.mu.Lock()
	r.changed = append(r.changed, path)
	r.mu.Unlock()
}

func (r *recorder) onRemove(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changed), len(r.removed)
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, r *recorder) *Watcher {
	t.Helper()
	w := New(r.onChange, r.onRemove, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_TrackUntrack(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	for _, p := range []string{a, b} {
		if err := writeFile(p, "x"); err != nil {
			t.Fatal(err)
		}
	}
	w := startWatcher(t, &recorder{})

	if err := w.Track(a); err != nil {
		t.Fatal(err)
	}
	if err := w.Track(a); err != nil {
		t.Fatal(err)
	}
	if err := w.Track(b); err != nil {
		t.Fatal(err)
	}
	if got := w.Tracked(); len(got) != 2 {
		t.Errorf("Tracked() = %v", got)
	}
	if got := w.Directories(); len(got) != 1 || got[0] != dir {
		t.Errorf("Directories() = %v, want [%s]", got, dir)
	}

	w.Untrack(a)
	if got := w.Directories(); len(got) != 1 {
		t.Errorf("directory dropped while b is still tracked: %v", got)
	}
	w.Untrack(b)
	if got := w.Directories(); len(got) != 0 {
		t.Errorf("Directories() after untracking all = %v", got)
	}
}

func TestWatcher_TrackMissingFile(t *testing.T) {
	w := New(nil, nil)
	if err := w.Track(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error tracking a missing file")
	}
}

func TestWatcher_WriteIsDebounced(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "doc.pdf")
	if err := writeFile(f, "v1"); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "other.pdf")
	r := &recorder{}
	w := startWatcher(t, r)
	if err := w.Track(f); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := writeFile(f, "v2"); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(other, "untracked"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { c, _ := r.counts(); return c >= 1 }) {
		t.Fatal("expected a change callback")
	}
	time.Sleep(150 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.changed {
		if p != f {
			t.Errorf("unexpected change for %s", p)
		}
	}
	if len(r.changed) > 2 {
		t.Errorf("writes were not debounced: %v", r.changed)
	}
}

func TestWatcher_RemoveReportsAndUntracks(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "doc.pdf")
	if err := writeFile(f, "x"); err != nil {
		t.Fatal(err)
	}
	r := &recorder{}
	w := startWatcher(t, r)
	if err := w.Track(f); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(f); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { _, rm := r.counts(); return rm == 1 }) {
		t.Fatal("expected a remove callback")
	}
	if got := w.Tracked(); len(got) != 0 {
		t.Errorf("removed file still tracked: %v", got)
	}
}

func TestWatcher_RenameCountsAsRemove(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "doc.pdf")
	if err := writeFile(f, "x"); err != nil {
		t.Fatal(err)
	}
	r := &recorder{}
	w := startWatcher(t, r)
	if err := w.Track(f); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(f, filepath.Join(dir, "moved.pdf")); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { _, rm := r.counts(); return rm == 1 }) {
		t.Fatal("expected a remove callback for rename")
	}
}

func TestWatcher_TrackBeforeStart(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "doc.pdf")
	if err := writeFile(f, "x"); err != nil {
		t.Fatal(err)
	}
	r := &recorder{}
	w := New(r.onChange, r.onRemove, WithDebounce(50*time.Millisecond))
	if err := w.Track(f); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := os.Remove(f); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { _, rm := r.counts(); return rm == 1 }) {
		t.Fatal("file tracked before Start was not watched")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
