package bleve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	"go.etcd.io/bbolt"

	"fsindex/internal/index/store"
)

const deletePageSize = 500

type Store struct {
	idx  bleve.Index
	meta *bbolt.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	var idx bleve.Index
	if _, err := os.Stat(filepath.Join(path, "index_meta.json")); err == nil {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, err
		}
	}

	meta, err := bbolt.Open(filepath.Join(path, "fsidx-meta.db"), 0o600, nil)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	s := &Store{idx: idx, meta: meta}
	if err := s.ensureBuckets(); err != nil {
		_ = meta.Close()
		_ = idx.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.idx != nil {
		_ = s.idx.Close()
	}
	if s.meta != nil {
		_ = s.meta.Close()
	}
	return nil
}

func (s *Store) Backend() string { return "bleve" }

func (s *Store) Insert(entries []store.Entry) error {
	if s == nil || s.idx == nil {
		return fmt.Errorf("store is not open")
	}
	if len(entries) == 0 {
		return nil
	}

	batch := s.idx.NewBatch()
	for _, e := range entries {
		path := filepath.Clean(strings.TrimSpace(e.Path))
		if path == "" || path == "." {
			return fmt.Errorf("path is required")
		}
		name := e.Name
		if name == "" {
			name = filepath.Base(path)
		}
		dir := e.Dir
		if dir == "" {
			dir = filepath.Dir(path)
		}
		kind := strings.TrimSpace(e.Kind)
		if kind == "" {
			kind = "file"
		}
		doc := map[string]any{
			"path":    path,
			"dir":     dir,
			"name":    name,
			"name_lc": strings.ToLower(name),
			"kind":    kind,
			"size":    e.Size,
			"mtime":   e.MTime,
		}
		batch.Index(path, doc)
	}
	return s.idx.Batch(batch)
}

func (s *Store) Delete(paths []string) error {
	if s == nil || s.idx == nil {
		return fmt.Errorf("store is not open")
	}
	if len(paths) == 0 {
		return nil
	}

	batch := s.idx.NewBatch()
	for _, p := range paths {
		p = filepath.Clean(strings.TrimSpace(p))
		if p == "" || p == "." {
			continue
		}
		batch.Delete(p)
	}
	return s.idx.Batch(batch)
}

func (s *Store) DeletePrefix(dir string) (int, error) {
	if s == nil || s.idx == nil {
		return 0, fmt.Errorf("store is not open")
	}
	dir = filepath.Clean(strings.TrimSpace(dir))
	if dir == "" || dir == "." || dir == "/" {
		return 0, fmt.Errorf("prefix dir is required")
	}

	prefix := dir + "/"
	total := 0
	for {
		pq := bleve.NewPrefixQuery(prefix)
		pq.SetField("path")
		req := bleve.NewSearchRequestOptions(pq, deletePageSize, 0, false)
		res, err := s.idx.Search(req)
		if err != nil {
			return total, err
		}
		if len(res.Hits) == 0 {
			return total, nil
		}

		batch := s.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := s.idx.Batch(batch); err != nil {
			return total, err
		}
		total += len(res.Hits)
	}
}

func (s *Store) Exists(path string) (bool, error) {
	if s == nil || s.idx == nil {
		return false, fmt.Errorf("store is not open")
	}
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return false, fmt.Errorf("path is required")
	}

	q := bleve.NewDocIDQuery([]string{path})
	req := bleve.NewSearchRequestOptions(q, 0, 0, false)
	res, err := s.idx.Search(req)
	if err != nil {
		return false, err
	}
	return res.Total > 0, nil
}

func (s *Store) Search(q store.Query) ([]string, error) {
	if s == nil || s.idx == nil {
		return nil, fmt.Errorf("store is not open")
	}
	keywords := strings.Fields(q.Keywords)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keywords are required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var clauses []bquery.Query
	for _, kw := range keywords {
		field := "name"
		if q.CaseInsensitive {
			field = "name_lc"
			kw = strings.ToLower(kw)
		}
		wq := bleve.NewWildcardQuery("*" + kw + "*")
		wq.SetField(field)
		clauses = append(clauses, wq)
	}
	if dir := cleanDir(q.Dir); dir != "" {
		pq := bleve.NewPrefixQuery(dir + "/")
		pq.SetField("path")
		clauses = append(clauses, pq)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(clauses...), limit, offset, false)
	req.SortBy([]string{"_id"})

	res, err := s.idx.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

func (s *Store) Count() (int, error) {
	if s == nil || s.idx == nil {
		return 0, fmt.Errorf("store is not open")
	}
	n, err := s.idx.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func cleanDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	dir = filepath.Clean(dir)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func buildMapping() mapping.IndexMapping {
	idxMapping := bleve.NewIndexMapping()
	idxMapping.DefaultAnalyzer = "keyword"

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = true
	keyword.Index = true
	keyword.DocValues = true

	num := bleve.NewNumericFieldMapping()
	num.Store = true
	num.Index = true
	num.DocValues = true

	doc.AddFieldMappingsAt("path", keyword)
	doc.AddFieldMappingsAt("dir", keyword)
	doc.AddFieldMappingsAt("name", keyword)
	doc.AddFieldMappingsAt("name_lc", keyword)
	doc.AddFieldMappingsAt("kind", keyword)
	doc.AddFieldMappingsAt("size", num)
	doc.AddFieldMappingsAt("mtime", num)

	idxMapping.DefaultMapping = doc
	return idxMapping
}
