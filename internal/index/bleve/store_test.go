package bleve

import (
	"path/filepath"
	"testing"

	"fsindex/internal/index/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.bleve"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEntries(t *testing.T, s *Store) {
	t.Helper()
	err := s.Insert([]store.Entry{
		{Path: "/home/user/docs/Report-2024.pdf", Size: 10, MTime: 1},
		{Path: "/home/user/docs/notes.txt", Size: 5, MTime: 2},
		{Path: "/home/user/music/report-old.txt", Size: 7, MTime: 3},
		{Path: "/srv/data/report.csv", Size: 9, MTime: 4},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestInsertExistsCount(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	ok, err := s.Exists("/home/user/docs/notes.txt")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}
	ok, err = s.Exists("/home/user/docs/missing.txt")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v; want false", ok, err)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Fatalf("Count = %d, want 4", n)
	}
}

func TestSearchSubstringCaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	got, err := s.Search(store.Query{Keywords: "report", Limit: 10, CaseInsensitive: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{
		"/home/user/docs/Report-2024.pdf",
		"/home/user/music/report-old.txt",
		"/srv/data/report.csv",
	}
	assertPaths(t, got, want)
}

func TestSearchCaseSensitive(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	got, err := s.Search(store.Query{Keywords: "Report", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	assertPaths(t, got, []string{"/home/user/docs/Report-2024.pdf"})

	got, err = s.Search(store.Query{Keywords: "REPORT", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("case-sensitive search matched %v", got)
	}
}

func TestSearchMultipleTokens(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	got, err := s.Search(store.Query{Keywords: "report old", Limit: 10, CaseInsensitive: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	assertPaths(t, got, []string{"/home/user/music/report-old.txt"})
}

func TestSearchDirScope(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	got, err := s.Search(store.Query{Dir: "/home/user/docs", Keywords: "report", Limit: 10, CaseInsensitive: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	assertPaths(t, got, []string{"/home/user/docs/Report-2024.pdf"})
}

func TestSearchPaging(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	first, err := s.Search(store.Query{Keywords: "report", Limit: 2, CaseInsensitive: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	rest, err := s.Search(store.Query{Keywords: "report", Offset: 2, Limit: 2, CaseInsensitive: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	all := append(append([]string{}, first...), rest...)
	assertPaths(t, all, []string{
		"/home/user/docs/Report-2024.pdf",
		"/home/user/music/report-old.txt",
		"/srv/data/report.csv",
	})
}

func TestSearchRequiresKeywords(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Search(store.Query{Keywords: "   "}); err == nil {
		t.Fatalf("expected error for empty keywords")
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	if err := s.Delete([]string{"/home/user/docs/notes.txt"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err := s.Exists("/home/user/docs/notes.txt")
	if err != nil || ok {
		t.Fatalf("deleted path still exists (%v, %v)", ok, err)
	}
}

func TestDeletePrefix(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	n, err := s.DeletePrefix("/home/user/docs")
	if err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if n != 2 {
		t.Fatalf("DeletePrefix removed %d, want 2", n)
	}
	if ok, _ := s.Exists("/home/user/music/report-old.txt"); !ok {
		t.Fatalf("sibling subtree should survive DeletePrefix")
	}
	count, _ := s.Count()
	if count != 2 {
		t.Fatalf("Count after DeletePrefix = %d, want 2", count)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)

	v, err := s.GetMeta("last_scan:/home")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "" {
		t.Fatalf("absent key should be empty, got %q", v)
	}

	if err := s.SetMeta("last_scan:/home", "12345"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	v, err = s.GetMeta("last_scan:/home")
	if err != nil || v != "12345" {
		t.Fatalf("GetMeta = %q, %v", v, err)
	}
}

func TestReopenKeepsDocuments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index.bleve")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Insert([]store.Entry{{Path: "/a/b.txt"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SetMeta("k", "v"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if ok, err := s2.Exists("/a/b.txt"); err != nil || !ok {
		t.Fatalf("document lost across reopen (%v, %v)", ok, err)
	}
	if v, _ := s2.GetMeta("k"); v != "v" {
		t.Fatalf("meta lost across reopen, got %q", v)
	}
}

func assertPaths(t *testing.T, got []string, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d paths %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths[%d] = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}
