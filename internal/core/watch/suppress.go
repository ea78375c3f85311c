package watch

import "strings"

// TypeMatcher resolves a path to its mount and reports whether that
// mount's filesystem type matches. Lookup failures report false, so a
// broken mount table never suppresses events.
type TypeMatcher interface {
	PathMatchesType(path string, fstype string) bool
}

// Suppressor drops events from overlay mounts that shadow every file
// with a long-filename companion entry.
type Suppressor struct {
	Matcher TypeMatcher
	// ShadowSuffix marks the companion entries themselves.
	ShadowSuffix string
	// FSType is the overlay filesystem type whose mounts are ignored
	// entirely.
	FSType string
}

// Suppressed reports whether events for path should be dropped. prior
// is the verdict for the previous record in the same directory: when
// it is true the mount table is not consulted at all, the caller keeps
// the inherited verdict instead. Shadow-suffix paths are suppressed
// regardless of mount state.
func (s Suppressor) Suppressed(path string, prior bool) bool {
	if s.ShadowSuffix != "" && strings.HasSuffix(path, s.ShadowSuffix) {
		return true
	}
	if !prior && s.Matcher != nil && s.FSType != "" && s.Matcher.PathMatchesType(path, s.FSType) {
		return true
	}
	return false
}
