package fsidxd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"fsindex/internal/core/batch"
	"fsindex/internal/core/mounts"
	"fsindex/internal/core/records"
	"fsindex/internal/index/engine"
	"fsindex/internal/index/store"
	"fsindex/internal/model"
	"fsindex/internal/version"
)

// MetaLastScan is the store key holding the completion time of the
// last full scan.
const MetaLastScan = "last_scan"

type Handlers struct {
	sched  *batch.Scheduler
	eng    *engine.Engine
	mounts *mounts.Manager
	roots  []string

	cache      *searchCache
	instanceID string
}

func NewHandlers(sched *batch.Scheduler, eng *engine.Engine, mm *mounts.Manager, roots []string) *Handlers {
	return &Handlers{
		sched:      sched,
		eng:        eng,
		mounts:     mm,
		roots:      append([]string(nil), roots...),
		cache:      newSearchCache(128),
		instanceID: uuid.NewString(),
	}
}

func (h *Handlers) InstanceID() string {
	if h == nil {
		return ""
	}
	return h.instanceID
}

// Search answers from the cache when the engine generation has not
// moved since the result was stored. A negative offset short-circuits
// to an empty result without touching cache or engine.
func (h *Handlers) Search(p SearchParams) ([]string, error) {
	if h == nil || h.sched == nil {
		return nil, fmt.Errorf("handlers is not initialized")
	}
	if p.Offset < 0 {
		return nil, nil
	}

	q := store.Query{
		Keywords:        strings.TrimSpace(p.Keywords),
		Dir:             strings.TrimSpace(p.Dir),
		Offset:          p.Offset,
		Limit:           p.MaxCount,
		CaseInsensitive: !p.CaseSensitive,
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	gen := h.eng.Generation()
	key := searchCacheKey(gen, q)
	if paths, ok := h.cache.get(key); ok {
		return paths, nil
	}

	paths, err := h.sched.Search(q)
	if err != nil {
		return nil, err
	}
	h.cache.put(key, paths)
	return paths, nil
}

func (h *Handlers) PathAdd(p PathParams) (bool, error) {
	if h == nil || h.sched == nil {
		return false, fmt.Errorf("handlers is not initialized")
	}
	return h.sched.AddPath(filepath.Clean(p.Path)), nil
}

func (h *Handlers) PathRemove(p PathParams) (bool, error) {
	if h == nil || h.sched == nil {
		return false, fmt.Errorf("handlers is not initialized")
	}
	return h.sched.RemovePath(filepath.Clean(p.Path)), nil
}

func (h *Handlers) PathExists(p PathParams) (bool, error) {
	if h == nil || h.sched == nil {
		return false, fmt.Errorf("handlers is not initialized")
	}
	return h.sched.HasDocument(filepath.Clean(p.Path)), nil
}

func (h *Handlers) Status() (StatusResult, error) {
	if h == nil || h.sched == nil || h.eng == nil {
		return StatusResult{}, fmt.Errorf("handlers is not initialized")
	}

	count, err := h.eng.Count()
	if err != nil {
		return StatusResult{}, err
	}

	res := StatusResult{
		Version:   version.Version,
		Instance:  h.instanceID,
		Backend:   h.eng.Backend(),
		IndexDir:  h.eng.IndexDirectory(),
		DocCount:  count,
		Pending:   h.sched.PendingLen(),
		Additions: h.sched.AdditionLen(),
		Deletions: h.eng.DeletionQueueLen(),
		Roots:     append([]string(nil), h.roots...),
	}
	if last, err := h.eng.GetMeta(MetaLastScan); err == nil && last != "" {
		res.LastScan = last
	}
	if h.mounts != nil {
		for _, root := range h.roots {
			rec, ok := records.Generate(root)
			if !ok {
				continue
			}
			e, ok := h.mounts.EntryForDevice(rec.Device)
			if !ok {
				continue
			}
			res.Mounts = append(res.Mounts, model.MountInfo{
				Root:       root,
				Device:     e.Device,
				MountPoint: e.MountPoint,
				FSType:     e.FSType,
				Source:     e.Source,
			})
		}
	}
	return res, nil
}
