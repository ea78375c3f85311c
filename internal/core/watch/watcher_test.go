package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"fsindex/internal/model"
)

type fakeStager struct {
	mu      sync.Mutex
	staged  []model.ChangeRecord
	deleted []string
	drains  int
}

func (f *fakeStager) StageIncoming(recs ...model.ChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged = append(f.staged, recs...)
	return nil
}

func (f *fakeStager) EnqueueDeletion(term string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, term)
	return nil
}

func (f *fakeStager) DrainStaged() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return 0
}

func (f *fakeStager) stagedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.staged))
	for _, rec := range f.staged {
		out = append(out, rec.Path)
	}
	return out
}

func (f *fakeStager) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeStager) drainCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drains
}

func newTestService(t *testing.T, stager *fakeStager, opts Options) (*Service, string) {
	t.Helper()

	root := t.TempDir()
	opts.Roots = append(opts.Roots, root)
	s, err := NewService(stager, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, root
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestCreateEventStagesRecord(t *testing.T) {
	fake := &fakeStager{}
	s, root := newTestService(t, fake, Options{})

	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})

	got := fake.stagedPaths()
	if len(got) != 1 || got[0] != path {
		t.Fatalf("staged = %v, want [%s]", got, path)
	}
	if fake.staged[0].Kind != model.KindCreate {
		t.Fatalf("kind = %v, want create", fake.staged[0].Kind)
	}
}

func TestWriteEventStagesModifyRecord(t *testing.T) {
	fake := &fakeStager{}
	s, root := newTestService(t, fake, Options{})

	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})

	if len(fake.staged) != 1 || fake.staged[0].Kind != model.KindModify {
		t.Fatalf("staged = %+v, want one modify record", fake.staged)
	}
}

func TestRemoveAndRenameEnqueueDeletions(t *testing.T) {
	fake := &fakeStager{}
	s, root := newTestService(t, fake, Options{})

	removed := filepath.Join(root, "old.txt")
	renamed := filepath.Join(root, "moved.txt")
	s.handleEvent(fsnotify.Event{Name: removed, Op: fsnotify.Remove})
	s.handleEvent(fsnotify.Event{Name: renamed, Op: fsnotify.Rename})

	got := fake.deletedPaths()
	if !contains(got, removed) || !contains(got, renamed) {
		t.Fatalf("deleted = %v, want both %s and %s", got, removed, renamed)
	}
	if len(fake.stagedPaths()) != 0 {
		t.Fatalf("deletion events must not stage records")
	}
}

func TestSiblingEventsInheritSuppression(t *testing.T) {
	fake := &fakeStager{}
	m := &countingMatcher{matches: map[string]bool{}}
	s, root := newTestService(t, fake, Options{
		Suppressor: Suppressor{Matcher: m, ShadowSuffix: ".longname", FSType: "fuse.dlnfs"},
	})

	share := filepath.Join(root, "share")
	m.matches[filepath.Join(share, "a.txt")] = true

	s.handleEvent(fsnotify.Event{Name: filepath.Join(share, "a.txt"), Op: fsnotify.Create})
	s.handleEvent(fsnotify.Event{Name: filepath.Join(share, "b.txt"), Op: fsnotify.Create})
	s.handleEvent(fsnotify.Event{Name: filepath.Join(share, "c.txt"), Op: fsnotify.Create})

	if m.calls != 1 {
		t.Fatalf("sibling events must inherit the verdict, got %d lookups", m.calls)
	}
	if len(fake.stagedPaths()) != 0 {
		t.Fatalf("suppressed events must not stage records, got %v", fake.stagedPaths())
	}

	// A different directory starts a fresh verdict.
	other := filepath.Join(root, "plain", "d.txt")
	if err := os.MkdirAll(filepath.Dir(other), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.handleEvent(fsnotify.Event{Name: other, Op: fsnotify.Create})

	if m.calls != 2 {
		t.Fatalf("new directory must trigger one lookup, got %d total", m.calls)
	}
	if !contains(fake.stagedPaths(), other) {
		t.Fatalf("unsuppressed event must stage, staged = %v", fake.stagedPaths())
	}
}

func TestShadowEntryPoisonsDirectoryVerdict(t *testing.T) {
	fake := &fakeStager{}
	m := &countingMatcher{matches: map[string]bool{}}
	s, root := newTestService(t, fake, Options{
		Suppressor: Suppressor{Matcher: m, ShadowSuffix: ".longname", FSType: "fuse.dlnfs"},
	})

	dir := filepath.Join(root, "share")
	s.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "x.txt.longname"), Op: fsnotify.Create})
	s.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "y.txt"), Op: fsnotify.Create})

	if m.calls != 0 {
		t.Fatalf("shadow run must never consult the mount table, got %d", m.calls)
	}
	if len(fake.stagedPaths()) != 0 {
		t.Fatalf("records after a shadow entry inherit its verdict, staged = %v", fake.stagedPaths())
	}
}

func TestEventsInsideIndexDirAreIgnored(t *testing.T) {
	fake := &fakeStager{}
	root := t.TempDir()
	idx := filepath.Join(root, "idx")
	s, err := NewService(fake, Options{Roots: []string{root}, IndexDir: idx})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer s.Close()

	s.handleEvent(fsnotify.Event{Name: filepath.Join(idx, "index.db"), Op: fsnotify.Write})
	s.handleEvent(fsnotify.Event{Name: filepath.Join(idx, "index.db"), Op: fsnotify.Remove})

	if len(fake.stagedPaths()) != 0 || len(fake.deletedPaths()) != 0 {
		t.Fatalf("index artifacts must never feed the index")
	}
}

func TestEventsOutsideRootsAreIgnored(t *testing.T) {
	fake := &fakeStager{}
	s, _ := newTestService(t, fake, Options{})

	elsewhere := filepath.Join(t.TempDir(), "stray.txt")
	if err := os.WriteFile(elsewhere, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.handleEvent(fsnotify.Event{Name: elsewhere, Op: fsnotify.Create})

	if len(fake.stagedPaths()) != 0 {
		t.Fatalf("out-of-root event must be dropped")
	}
}

func TestExcludeGlobsFilterEvents(t *testing.T) {
	fake := &fakeStager{}
	s, root := newTestService(t, fake, Options{ExcludeGlobs: []string{"*.log"}})

	path := filepath.Join(root, "trace.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})

	if len(fake.stagedPaths()) != 0 {
		t.Fatalf("excluded file must not stage")
	}
}

func TestChmodEventsAreIgnored(t *testing.T) {
	fake := &fakeStager{}
	s, root := newTestService(t, fake, Options{})

	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod})

	if len(fake.stagedPaths()) != 0 {
		t.Fatalf("chmod must not stage")
	}
}

func TestNewDirectoryStagesItsTree(t *testing.T) {
	fake := &fakeStager{}
	s, root := newTestService(t, fake, Options{})

	newDir := filepath.Join(root, "incoming")
	sub := filepath.Join(newDir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, rel := range []string{"a.txt", "sub/b.txt"} {
		p := filepath.Join(newDir, filepath.FromSlash(rel))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	s.handleEvent(fsnotify.Event{Name: newDir, Op: fsnotify.Create})

	got := fake.stagedPaths()
	for _, want := range []string{
		newDir,
		filepath.Join(newDir, "a.txt"),
		sub,
		filepath.Join(sub, "b.txt"),
	} {
		if !contains(got, want) {
			t.Fatalf("staged = %v, missing %s", got, want)
		}
	}
}

func TestRunDrainsOnTick(t *testing.T) {
	fake := &fakeStager{}
	s, _ := newTestService(t, fake, Options{DrainInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitUntil(t, 2*time.Second, func() bool { return fake.drainCount() >= 2 })

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunDeliversFilesystemEvents(t *testing.T) {
	fake := &fakeStager{}
	s, root := newTestService(t, fake, Options{DrainInterval: 20 * time.Millisecond})

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	path := filepath.Join(root, "hello.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		return contains(fake.stagedPaths(), path)
	})

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		return contains(fake.deletedPaths(), path)
	})

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
}
