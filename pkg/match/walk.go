package match

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Files walks the tree under dir and returns every file whose
// dir-relative path (slash-separated) passes Match, sorted. Instead of
// visiting the whole tree and filtering, the walk starts at each
// include pattern's static root, so subtrees no pattern can reach are
// never touched; hidden directories are additionally pruned unless
// IncludeHidden is set.
func (m *Matcher) Files(dir string) ([]string, error) {
	var files []string

	for _, root := range m.roots {
		start := dir
		if root != "" {
			start = filepath.Join(dir, filepath.FromSlash(root))
		}

		err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// A root derived from a pattern need not exist on disk;
				// an include for data/2024/** over a tree without that
				// year simply matches nothing.
				if path == start && errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}

			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return relErr
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if rel != "." && !m.includeHidden && IsHidden(rel) {
					return fs.SkipDir
				}
				return nil
			}
			if m.Match(rel) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

// staticRoot returns the longest directory path every match of pattern
// must live under: the pattern text up to the last '/' before its
// first unescaped glob metacharacter, with escape backslashes removed.
// A pattern with no metacharacters is its own root (an exact path);
// "" means the pattern can match anywhere.
func staticRoot(pattern string) string {
	if pattern == "" {
		return ""
	}
	pattern = NormalizePattern(pattern)

	var b strings.Builder
	b.Grow(len(pattern))
	lastSlash := -1 // index in b of the last '/' written

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]

		// After NormalizePattern, a backslash only ever precedes a glob
		// metacharacter it escapes; drop the backslash and keep the
		// literal, since filesystem paths carry no escape syntax.
		if c == '\\' && i+1 < len(pattern) {
			b.WriteByte(pattern[i+1])
			i++
			continue
		}

		if c == '*' || c == '?' || c == '[' || c == '{' {
			// The glob begins here; only complete path segments before
			// it are static.
			if lastSlash < 0 {
				return ""
			}
			return b.String()[:lastSlash+1]
		}

		b.WriteByte(c)
		if c == '/' {
			lastSlash = b.Len() - 1
		}
	}

	return b.String()
}

// walkRoots derives the static root of every pattern and collapses the
// set: a root already covered by a shorter one is dropped. Sorting
// first makes the collapse a single adjacent-prefix sweep, since a
// root and everything under it sort contiguously.
func walkRoots(patterns []string) []string {
	roots := make([]string, 0, len(patterns))
	for _, p := range patterns {
		r := staticRoot(p)
		if r == "" {
			// One unanchored pattern puts the whole tree in play.
			return []string{""}
		}
		roots = append(roots, r)
	}

	sort.Strings(roots)
	kept := roots[:0]
	for _, r := range roots {
		if len(kept) > 0 && rootCovers(kept[len(kept)-1], r) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// rootCovers reports whether walking base also visits everything under
// r. The prefix check is segment-aware so an exact-path root like
// "data" does not swallow the unrelated "data2/".
func rootCovers(base, r string) bool {
	if !strings.HasPrefix(r, base) {
		return false
	}
	return len(r) == len(base) || strings.HasSuffix(base, "/") || r[len(base)] == '/'
}
