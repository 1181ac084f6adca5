package cacheitem

import (
	"path/filepath"
	"strings"

	"github.com/forgerepo/forge/internal/turbopath"
)

// cachedDirTree remembers the deepest directory we've already created (and
// lstat-verified symlink-free) along the current restore path, so repeated
// restoreEntry calls for files that share a parent directory don't redo
// the same lstat walk from the anchor every time. It assumes entries in
// the tar are enumerated depth-first, which tar writers produced by
// CacheItem.AddFile satisfy; if that assumption is ever violated the
// cache just produces more cache misses, not incorrect restores.
type cachedDirTree struct {
	// anchorAtDepth[i] is the AbsoluteSystemPath that prefix[:i] resolves to.
	// anchorAtDepth[0] is always the restore anchor itself.
	anchorAtDepth []turbopath.AbsoluteSystemPath
	// prefix is the path segments (relative to the restore anchor) that
	// have already been validated and created.
	prefix []turbopath.RelativeSystemPath
}

// newCachedDirTree builds a tree seeded with just the restore anchor.
func newCachedDirTree(anchor turbopath.AbsoluteSystemPath) *cachedDirTree {
	return &cachedDirTree{
		anchorAtDepth: []turbopath.AbsoluteSystemPath{anchor},
		prefix:        nil,
	}
}

// getStartingPoint finds the longest prefix this cache shares with path,
// returning the already-resolved anchor for that prefix and the remaining
// segments of path that still need to be validated/created.
func (c *cachedDirTree) getStartingPoint(path turbopath.AnchoredSystemPath) (turbopath.AbsoluteSystemPath, []turbopath.RelativeSystemPath) {
	segments := splitPathSegments(path.ToString())

	common := 0
	for common < len(c.prefix) && common < len(segments) && c.prefix[common] == turbopath.RelativeSystemPath(segments[common]) {
		common++
	}

	anchor := c.anchorAtDepth[common]
	remaining := make([]turbopath.RelativeSystemPath, len(segments)-common)
	for i, s := range segments[common:] {
		remaining[i] = turbopath.RelativeSystemPath(s)
	}

	// Drop any cached depth beyond the shared prefix: the caller is about
	// to walk `remaining` fresh and will re-grow the cache as it goes.
	c.truncate(common)

	return anchor, remaining
}

// grow records that walking one more segment past the current cached
// prefix landed at childAnchor. Callers walk remaining segments one at a
// time, calling grow after each successful MkdirAll/Lstat, so the cache
// always covers a contiguous prefix of whatever path was walked last.
func (c *cachedDirTree) grow(segment turbopath.RelativeSystemPath, childAnchor turbopath.AbsoluteSystemPath) {
	c.prefix = append(c.prefix, segment)
	c.anchorAtDepth = append(c.anchorAtDepth, childAnchor)
}

// truncate drops cached depth beyond the given number of segments, used
// when a walk diverges from the previously cached prefix partway through.
func (c *cachedDirTree) truncate(depth int) {
	c.prefix = c.prefix[:depth]
	c.anchorAtDepth = c.anchorAtDepth[:depth+1]
}

func splitPathSegments(p string) []turbopath.RelativeSystemPath {
	slashed := filepath.ToSlash(p)
	if slashed == "" || slashed == "." {
		return nil
	}
	parts := strings.Split(slashed, "/")
	out := make([]turbopath.RelativeSystemPath, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, turbopath.RelativeSystemPath(part))
		}
	}
	return out
}
