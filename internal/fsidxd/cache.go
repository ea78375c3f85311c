package fsidxd

import (
	"container/list"
	"fmt"
	"strings"
	"sync"

	"fsindex/internal/index/store"
)

// searchCache memoizes search results keyed on the engine generation,
// so any committed mutation makes every older entry unreachable. Stale
// keys age out of the LRU on their own.
type searchCache struct {
	mu  sync.Mutex
	cap int
	ll  *list.List
	m   map[string]*list.Element
}

type cacheEntry struct {
	key   string
	paths []string
}

func newSearchCache(capacity int) *searchCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &searchCache{
		cap: capacity,
		ll:  list.New(),
		m:   map[string]*list.Element{},
	}
}

func (c *searchCache) get(key string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.m[key]; ok {
		c.ll.MoveToFront(el)
		return clonePaths(el.Value.(*cacheEntry).paths), true
	}
	return nil, false
}

func (c *searchCache) put(key string, paths []string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.m[key]; ok {
		el.Value.(*cacheEntry).paths = clonePaths(paths)
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, paths: clonePaths(paths)})
	c.m[key] = el

	for c.ll.Len() > c.cap {
		last := c.ll.Back()
		if last == nil {
			break
		}
		ent := last.Value.(*cacheEntry)
		delete(c.m, ent.key)
		c.ll.Remove(last)
	}
}

func (c *searchCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func searchCacheKey(generation uint64, q store.Query) string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "gen=%d|kw=%s", generation, strings.TrimSpace(q.Keywords))
	if dir := strings.TrimSpace(q.Dir); dir != "" {
		_, _ = fmt.Fprintf(&b, "|dir=%s", dir)
	}
	_, _ = fmt.Fprintf(&b, "|i=%t|limit=%d|offset=%d", q.CaseInsensitive, q.Limit, q.Offset)
	return b.String()
}

func clonePaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	return append([]string(nil), paths...)
}
