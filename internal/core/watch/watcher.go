// Package watch turns kernel file-change notifications into change
// records for the batch scheduler. Events pass the mount suppression
// check before anything else; a periodic tick drains staged records
// toward the scheduler and refreshes the mount snapshot.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fsindex/internal/core/mounts"
	"fsindex/internal/core/records"
	"fsindex/internal/core/walk"
	"fsindex/internal/model"
)

// Stager is the scheduler surface the watcher feeds.
type Stager interface {
	StageIncoming(recs ...model.ChangeRecord) error
	EnqueueDeletion(term string) error
	DrainStaged() int
}

type Options struct {
	Roots    []string
	IndexDir string

	Suppressor Suppressor
	Mounts     *mounts.Manager

	DrainInterval   time.Duration
	RefreshInterval time.Duration

	IncludeGlobs []string
	ExcludeGlobs []string
	ScanAll      bool

	Log *slog.Logger
}

type Service struct {
	roots    []string
	indexDir string
	sup      Suppressor
	mounts   *mounts.Manager
	stager   Stager
	log      *slog.Logger

	wopts   walk.Options
	filters map[string]*walk.Filter

	drainInterval   time.Duration
	refreshInterval time.Duration

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closed    chan struct{}

	// Verdict for the last directory seen, inherited by records for
	// the same directory so the mount lookup runs once per run of
	// sibling events.
	lastDir string
	lastSup bool
}

func NewService(stager Stager, opts Options) (*Service, error) {
	if stager == nil {
		return nil, fmt.Errorf("stager is required")
	}

	roots := make([]string, 0, len(opts.Roots))
	seen := map[string]struct{}{}
	for _, root := range opts.Roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		abs = filepath.Clean(abs)
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		roots = append(roots, abs)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one watch root is required")
	}
	// Longest root first so nested roots resolve to the deepest owner.
	sort.Slice(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })

	indexDir := strings.TrimSpace(opts.IndexDir)
	if indexDir != "" {
		indexDir = filepath.Clean(indexDir)
	}

	wopts := walk.Options{
		IncludeGlobs: opts.IncludeGlobs,
		ExcludeGlobs: opts.ExcludeGlobs,
		ScanAll:      opts.ScanAll,
	}
	filters := make(map[string]*walk.Filter, len(roots))
	for _, root := range roots {
		f, err := walk.NewFilter(root, wopts)
		if err != nil {
			return nil, err
		}
		filters[root] = f
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	drain := opts.DrainInterval
	if drain <= 0 {
		drain = time.Second
	}
	refresh := opts.RefreshInterval
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		roots:           roots,
		indexDir:        indexDir,
		sup:             opts.Suppressor,
		mounts:          opts.Mounts,
		stager:          stager,
		log:             log,
		wopts:           wopts,
		filters:         filters,
		drainInterval:   drain,
		refreshInterval: refresh,
		watcher:         fsw,
		closed:          make(chan struct{}),
	}

	if err := s.watchExistingDirs(); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return s, nil
}

func (s *Service) Roots() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.roots...)
}

func (s *Service) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() { close(s.closed) })

	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *Service) Run(ctx context.Context) error {
	if s == nil || s.watcher == nil {
		return fmt.Errorf("watch service is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	drainTick := time.NewTicker(s.drainInterval)
	defer drainTick.Stop()

	var refreshC <-chan time.Time
	if s.mounts != nil {
		refreshTick := time.NewTicker(s.refreshInterval)
		defer refreshTick.Stop()
		refreshC = refreshTick.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		case <-drainTick.C:
			if n := s.stager.DrainStaged(); n > 0 {
				s.log.Debug("drained staged records", "count", n)
			}
		case <-refreshC:
			if err := s.mounts.Refresh(); err != nil {
				s.log.Warn("mount refresh failed", "error", err)
			}
		}
	}
}

func (s *Service) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if path == "" || path == "." {
		return
	}
	if s.underIndexDir(path) {
		return
	}

	dir := filepath.Dir(path)
	prior := dir == s.lastDir && s.lastSup
	sup := prior || s.sup.Suppressed(path, prior)
	s.lastDir, s.lastSup = dir, sup
	if sup {
		return
	}

	root, rel, ok := s.relFor(path)
	if !ok {
		return
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Deletions skip the include filter; deleting a document that
		// was never indexed is a no-op downstream.
		if err := s.stager.EnqueueDeletion(path); err != nil {
			s.log.Debug("deletion dropped", "path", path, "error", err)
		}
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if st, err := os.Lstat(path); err == nil && st.IsDir() {
			if !s.filters[root].ShouldInclude(rel, true) {
				return
			}
			s.addTree(root, path)
			return
		}
		if !s.filters[root].ShouldInclude(rel, false) {
			return
		}
		s.stage(path, kindFor(ev.Op))
	}
}

func (s *Service) stage(path string, kind model.EventKind) {
	rec, ok := records.Generate(path)
	if !ok {
		return
	}
	rec.Kind = kind
	if err := s.stager.StageIncoming(rec); err != nil {
		s.log.Debug("record dropped", "path", path, "error", err)
	}
}

// addTree registers watches for a directory created after startup and
// stages everything already inside it; files written before the watch
// was in place produce no events of their own.
func (s *Service) addTree(root string, absDir string) {
	f := s.filters[root]

	_ = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !f.ShouldInclude(rel, true) {
				return filepath.SkipDir
			}
			_ = s.watcher.Add(p)
			s.stage(p, model.KindCreate)
			return nil
		}

		if !f.ShouldInclude(rel, false) {
			return nil
		}
		if s.sup.Suppressed(p, false) {
			return nil
		}
		s.stage(p, model.KindCreate)
		return nil
	})
}

func (s *Service) watchExistingDirs() error {
	for _, root := range s.roots {
		if err := s.watcher.Add(root); err != nil {
			return err
		}
		err := walk.Walk(root, s.wopts, func(abs string, isDir bool) error {
			if !isDir {
				return nil
			}
			return s.watcher.Add(abs)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) relFor(path string) (string, string, bool) {
	for _, root := range s.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return root, filepath.ToSlash(rel), true
	}
	return "", "", false
}

func (s *Service) underIndexDir(path string) bool {
	if s.indexDir == "" {
		return false
	}
	if path == s.indexDir {
		return true
	}
	return strings.HasPrefix(path, s.indexDir+string(filepath.Separator))
}

func kindFor(op fsnotify.Op) model.EventKind {
	if op&fsnotify.Create != 0 {
		return model.KindCreate
	}
	return model.KindModify
}
