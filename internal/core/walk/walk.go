package walk

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

type Options struct {
	IncludeGlobs []string
	ExcludeGlobs []string
	ScanAll      bool
}

// Walk visits every included path under root, parents before children,
// and reports each to fn as an absolute path. Unreadable entries below
// the root are skipped rather than aborting the walk; only a root that
// cannot be opened fails. The root itself is not reported.
func Walk(root string, opts Options, fn func(abs string, isDir bool) error) error {
	root = filepath.Clean(root)
	ig, err := loadIgnoreMatcher(root, opts.ScanAll)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		name := d.Name()
		if d.IsDir() {
			if !opts.ScanAll && (isHidden(name) || isDefaultSkippedDir(name)) {
				return filepath.SkipDir
			}
			if !opts.ScanAll && ig.isIgnored(rel, true) {
				return filepath.SkipDir
			}
			return fn(p, true)
		}

		if !opts.ScanAll && isHidden(name) {
			return nil
		}
		if !opts.ScanAll && ig.isIgnored(rel, false) {
			return nil
		}
		if len(opts.IncludeGlobs) > 0 && !anyGlobMatch(opts.IncludeGlobs, rel) {
			return nil
		}
		if anyGlobMatch(opts.ExcludeGlobs, rel) {
			return nil
		}

		return fn(p, false)
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isDefaultSkippedDir(name string) bool {
	switch name {
	case ".git", "node_modules", "__pycache__", "lost+found":
		return true
	default:
		return false
	}
}

func anyGlobMatch(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if matchesGlob(pat, rel) {
			return true
		}
	}
	return false
}

func matchesGlob(pattern string, rel string) bool {
	pat := strings.TrimSpace(pattern)
	if pat == "" {
		return false
	}
	pat = strings.ReplaceAll(pat, "\\", "/")
	rel = filepath.ToSlash(rel)

	// A single list entry may carry several comma-separated patterns.
	if strings.Contains(pat, ",") {
		for _, piece := range strings.Split(pat, ",") {
			if matchesGlob(strings.TrimSpace(piece), rel) {
				return true
			}
		}
		return false
	}

	// Treat patterns without path separators as basename patterns.
	if !strings.Contains(pat, "/") {
		ok, _ := path.Match(pat, path.Base(rel))
		return ok
	}

	ok, _ := path.Match(pat, rel)
	return ok
}
