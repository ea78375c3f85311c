// Package batch moves change records from the watcher into the index
// engine. Incoming records collect in an unbounded staging queue, a
// periodic drain promotes them to the addition queue, and a single
// worker goroutine flushes ready batches into the engine.
package batch

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"fsindex/internal/core/records"
	"fsindex/internal/index/store"
	"fsindex/internal/model"
)

// ErrStopped is returned by ingestion calls made after Shutdown.
var ErrStopped = errors.New("batch scheduler is stopped")

// Engine is the mutation sink the scheduler drives. Implementations
// own the deletion queue; the scheduler only asks when it is ready.
type Engine interface {
	CommitAddition(rec model.ChangeRecord) error
	ScheduleDeletion(term string)
	DeletionBatchReady() bool
	ProcessDeletionBatch() error
	RemoveDocument(path string) error
	DocumentExists(path string) bool
	Search(q store.Query) ([]string, error)
	IndexDirectory() string
	SetChangeFilter(pred func(path string) bool)
}

type Config struct {
	// BatchSize is the most additions a single flush commits. A flush
	// becomes due early once the queue grows past this size.
	BatchSize int
	// BatchInterval is how long the addition queue may sit before a
	// flush is due regardless of its size.
	BatchInterval time.Duration
	// DrainCap bounds how many staged records one drain call promotes.
	DrainCap int
	// WaitTimeout bounds how long the worker sleeps without a signal.
	// Defaults to BatchInterval so due work waits at most one interval.
	WaitTimeout time.Duration
}

func (c *Config) normalize() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = time.Second
	}
	if c.DrainCap <= 0 {
		c.DrainCap = 500
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = c.BatchInterval
	}
}

// Scheduler serializes every engine mutation behind one lock. Flushes
// run under that lock too, so facade reads observe either the
// pre-flush or the post-flush state, never a half-applied batch.
type Scheduler struct {
	cfg    Config
	engine Engine
	log    *slog.Logger

	mu        sync.Mutex
	pending   []model.ChangeRecord
	additions []model.ChangeRecord
	lastFlush time.Time
	stopped   bool

	wake chan struct{}
	done chan struct{}
}

// New starts the worker goroutine; callers own a matching Shutdown.
func New(engine Engine, cfg Config, log *slog.Logger) *Scheduler {
	cfg.normalize()
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		cfg:       cfg,
		engine:    engine,
		log:       log,
		lastFlush: time.Now(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// StageIncoming appends records to the staging queue in arrival order.
// The queue is unbounded; only DrainStaged moves records toward the
// engine.
func (s *Scheduler) StageIncoming(recs ...model.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.pending = append(s.pending, recs...)
	return nil
}

// DrainStaged promotes at most DrainCap staged records, oldest first,
// to the addition queue and wakes the worker. Returns the number
// moved; leftovers wait for the next drain.
func (s *Scheduler) DrainStaged() int {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	n := len(s.pending)
	if n > s.cfg.DrainCap {
		n = s.cfg.DrainCap
	}
	if n > 0 {
		s.additions = append(s.additions, s.pending[:n]...)
		if n == len(s.pending) {
			s.pending = nil
		} else {
			s.pending = append([]model.ChangeRecord(nil), s.pending[n:]...)
		}
	}
	s.mu.Unlock()

	s.signal()
	return n
}

// EnqueueAddition bypasses the staging queue and appends straight to
// the addition queue, waking the worker once the queue is over the
// batch size.
func (s *Scheduler) EnqueueAddition(rec model.ChangeRecord) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.additions = append(s.additions, rec)
	ready := len(s.additions) > s.cfg.BatchSize
	s.mu.Unlock()

	if ready {
		s.signal()
	}
	return nil
}

// EnqueueDeletion hands a term to the engine's deletion queue, waking
// the worker if that made a deletion batch ready.
func (s *Scheduler) EnqueueDeletion(term string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.engine.ScheduleDeletion(term)
	ready := s.engine.DeletionBatchReady()
	s.mu.Unlock()

	if ready {
		s.signal()
	}
	return nil
}

func (s *Scheduler) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) AdditionLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.additions)
}

// Shutdown stops the worker and waits for it to exit. Records still
// queued are abandoned; there is no final flush. Safe to call more
// than once.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.signal()
	<-s.done
	s.log.Info("batch scheduler stopped",
		"pending", s.PendingLen(), "additions", s.AdditionLen())
}

// Search answers from committed state only. A negative offset is
// rejected before the engine or the lock is touched.
func (s *Scheduler) Search(q store.Query) ([]string, error) {
	if q.Offset < 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Search(q)
}

// AddPath records the path for addition and reports whether a document
// for it is already committed. A true return means the index is
// current for the path; false means the addition is still queued, the
// path could not be read, or the scheduler is stopped.
func (s *Scheduler) AddPath(path string) bool {
	rec, ok := records.Generate(path)
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.additions = append(s.additions, rec)
	ready := len(s.additions) > s.cfg.BatchSize
	exists := s.engine.DocumentExists(rec.Path)
	s.mu.Unlock()

	if ready {
		s.signal()
	}
	return exists
}

// RemovePath removes the path's document and reports whether it is
// absent afterwards, so removing a path that was never indexed
// returns true.
func (s *Scheduler) RemovePath(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if err := s.engine.RemoveDocument(path); err != nil {
		s.log.Error("remove document failed", "path", path, "error", err)
	}
	return !s.engine.DocumentExists(path)
}

// HasDocument reports committed state only; queued additions are
// invisible until their batch flushes.
func (s *Scheduler) HasDocument(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.DocumentExists(path)
}

func (s *Scheduler) SetChangeFilter(pred func(path string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetChangeFilter(pred)
}

func (s *Scheduler) IndexDirectory() string {
	return s.engine.IndexDirectory()
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(s.cfg.WaitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
		timer.Reset(s.cfg.WaitTimeout)

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if s.additionsDueLocked() {
			s.flushAdditionsLocked()
		}
		if s.engine.DeletionBatchReady() {
			if err := s.engine.ProcessDeletionBatch(); err != nil {
				s.log.Error("deletion batch failed", "error", err)
			}
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) additionsDueLocked() bool {
	if len(s.additions) > s.cfg.BatchSize {
		return true
	}
	return time.Since(s.lastFlush) >= s.cfg.BatchInterval
}

// flushAdditionsLocked commits at most BatchSize records, oldest
// first. Commit errors are logged and the record dropped; there are no
// retries. lastFlush moves on every flush pass, including one that
// found the queue empty.
func (s *Scheduler) flushAdditionsLocked() {
	n := len(s.additions)
	if n > s.cfg.BatchSize {
		n = s.cfg.BatchSize
	}
	batch := s.additions[:n]
	if n == len(s.additions) {
		s.additions = nil
	} else {
		s.additions = append([]model.ChangeRecord(nil), s.additions[n:]...)
	}

	for _, rec := range batch {
		if err := s.engine.CommitAddition(rec); err != nil {
			s.log.Error("commit addition failed", "path", rec.Path, "error", err)
		}
	}
	s.lastFlush = time.Now()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
