package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fsindex/internal/index/store"
	"fsindex/internal/model"
)

type Config struct {
	// A deletion batch is ready once it holds DeletionBatchSize terms
	// or its oldest term is DeletionMaxAge old, whichever comes first.
	DeletionBatchSize int
	DeletionMaxAge    time.Duration
}

func (c *Config) normalize() {
	if c.DeletionBatchSize <= 0 {
		c.DeletionBatchSize = 100
	}
	if c.DeletionMaxAge <= 0 {
		c.DeletionMaxAge = time.Second
	}
}

// Engine applies committed mutations to the document store. Additions
// arrive one record at a time from the batch worker; deletions are
// queued here and flushed as a batch. Every mutation bumps a generation
// counter that read caches key on.
type Engine struct {
	st  store.Store
	dir string
	cfg Config

	mu         sync.Mutex
	delQueue   []string
	delFirstAt time.Time
	filter     func(path string) bool
	generation uint64
}

func New(st store.Store, dir string, cfg Config) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	cfg.normalize()
	return &Engine{st: st, dir: dir, cfg: cfg}, nil
}

func (e *Engine) Close() error {
	if e == nil || e.st == nil {
		return nil
	}
	return e.st.Close()
}

func (e *Engine) Backend() string {
	if e == nil || e.st == nil {
		return ""
	}
	return e.st.Backend()
}

func (e *Engine) IndexDirectory() string {
	if e == nil {
		return ""
	}
	return e.dir
}

// SetChangeFilter installs a predicate consulted before committing an
// addition; paths it rejects are dropped without touching the store.
func (e *Engine) SetChangeFilter(pred func(path string) bool) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.filter = pred
	e.mu.Unlock()
}

// CommitAddition stats the path at commit time and upserts its
// document. A path that vanished since the event was recorded is a
// no-op: the matching remove event is already on its way.
func (e *Engine) CommitAddition(rec model.ChangeRecord) error {
	if e == nil || e.st == nil {
		return fmt.Errorf("engine is not open")
	}
	path := filepath.Clean(strings.TrimSpace(rec.Path))
	if path == "" || path == "." {
		return fmt.Errorf("record path is required")
	}

	e.mu.Lock()
	filter := e.filter
	e.mu.Unlock()
	if filter != nil && !filter(path) {
		return nil
	}

	st, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	kind := "file"
	if st.IsDir() {
		kind = "dir"
	}
	entry := store.Entry{
		Path:  path,
		Name:  filepath.Base(path),
		Dir:   filepath.Dir(path),
		Kind:  kind,
		Size:  st.Size(),
		MTime: st.ModTime().Unix(),
	}
	if err := e.st.Insert([]store.Entry{entry}); err != nil {
		return err
	}
	e.bumpGeneration()
	return nil
}

// ScheduleDeletion queues a path for the next deletion batch.
func (e *Engine) ScheduleDeletion(term string) {
	if e == nil {
		return
	}
	term = filepath.Clean(strings.TrimSpace(term))
	if term == "" || term == "." {
		return
	}

	e.mu.Lock()
	if len(e.delQueue) == 0 {
		e.delFirstAt = time.Now()
	}
	e.delQueue = append(e.delQueue, term)
	e.mu.Unlock()
}

func (e *Engine) DeletionBatchReady() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.delQueue) == 0 {
		return false
	}
	if len(e.delQueue) >= e.cfg.DeletionBatchSize {
		return true
	}
	return time.Since(e.delFirstAt) >= e.cfg.DeletionMaxAge
}

func (e *Engine) DeletionQueueLen() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.delQueue)
}

// ProcessDeletionBatch drains the whole deletion queue. Each term is
// removed along with its subtree, so a deleted directory takes its
// descendants with it.
func (e *Engine) ProcessDeletionBatch() error {
	if e == nil || e.st == nil {
		return fmt.Errorf("engine is not open")
	}

	e.mu.Lock()
	terms := e.delQueue
	e.delQueue = nil
	e.mu.Unlock()

	if len(terms) == 0 {
		return nil
	}

	if err := e.st.Delete(terms); err != nil {
		return err
	}
	for _, term := range terms {
		if _, err := e.st.DeletePrefix(term); err != nil {
			return err
		}
	}
	e.bumpGeneration()
	return nil
}

// RemoveDocument deletes a path and its subtree immediately, outside
// the batched deletion flow.
func (e *Engine) RemoveDocument(path string) error {
	if e == nil || e.st == nil {
		return fmt.Errorf("engine is not open")
	}
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return fmt.Errorf("path is required")
	}

	if err := e.st.Delete([]string{path}); err != nil {
		return err
	}
	if _, err := e.st.DeletePrefix(path); err != nil {
		return err
	}
	e.bumpGeneration()
	return nil
}

// DocumentExists reports committed state only; records still queued
// for addition are invisible here.
func (e *Engine) DocumentExists(path string) bool {
	if e == nil || e.st == nil {
		return false
	}
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return false
	}
	ok, err := e.st.Exists(path)
	if err != nil {
		return false
	}
	return ok
}

// Search rejects empty keywords and non-positive limits with an empty
// result rather than an error.
func (e *Engine) Search(q store.Query) ([]string, error) {
	if e == nil || e.st == nil {
		return nil, fmt.Errorf("engine is not open")
	}
	if strings.TrimSpace(q.Keywords) == "" {
		return nil, nil
	}
	if q.Limit <= 0 {
		return nil, nil
	}
	return e.st.Search(q)
}

func (e *Engine) Count() (int, error) {
	if e == nil || e.st == nil {
		return 0, fmt.Errorf("engine is not open")
	}
	return e.st.Count()
}

// Generation increases on every committed mutation batch.
func (e *Engine) Generation() uint64 {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *Engine) GetMeta(key string) (string, error) {
	if e == nil || e.st == nil {
		return "", fmt.Errorf("engine is not open")
	}
	return e.st.GetMeta(key)
}

func (e *Engine) SetMeta(key string, value string) error {
	if e == nil || e.st == nil {
		return fmt.Errorf("engine is not open")
	}
	return e.st.SetMeta(key, value)
}

// Store exposes the underlying store for optional capabilities such as
// bulk-load pragmas.
func (e *Engine) Store() store.Store {
	if e == nil {
		return nil
	}
	return e.st
}

func (e *Engine) bumpGeneration() {
	e.mu.Lock()
	e.generation++
	e.mu.Unlock()
}
