// Package match selects input files for the CLI's --glob batch-input
// mode: include/exclude glob matching over slash-separated relative
// paths, and a recursive directory walk confined to each pattern's
// static root so subtrees no pattern can reach are never visited.
package match

import (
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Normalization rules:
//   - Unescaped backslashes converted to forward slashes (Windows compat)
//   - Escaped backslashes and glob metacharacters preserved (\*, \?, \[, etc.)
//   - Leading slash, trailing slash, and // sequences preserved
//
// This lets Windows users write directory separators as backslashes
// ("data\2024/*.parquet") while preserving escape semantics for literal
// matching. A backslash directly before a glob metacharacter or another
// backslash is an escape and is kept, so a separator that precedes a glob
// must be written as a forward slash.
//
// Examples:
//
//	"data/2024/**"        → "data/2024/**"       (unchanged)
//	"data\2024/**"        → "data/2024/**"       (backslash → slash)
//	"data\2024\**"        → "data/2024\**"       (\* before ** is an escape)
//	"data/file\*.txt"     → "data/file\*.txt"    (escape preserved)
//	"data\\backup"        → "data\\backup"       (escaped \ preserved)
//	"/data/2024/**"       → "/data/2024/**"      (leading slash preserved)
//	"data//2024/**"       → "data//2024/**"      (// preserved)
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\\' && i+1 < len(runes) {
			next := runes[i+1]
			// Check if this is an escape sequence for a glob metacharacter
			if strings.ContainsRune(globEscapable, next) {
				// Preserve the escape sequence
				result.WriteRune('\\')
				result.WriteRune(next)
				i++ // Skip the next character
				continue
			}
			// Unescaped backslash - convert to forward slash
			result.WriteRune('/')
			continue
		}

		if r == '\\' {
			// Trailing backslash - convert to forward slash
			result.WriteRune('/')
			continue
		}

		result.WriteRune(r)
	}

	return result.String()
}

// IsHidden returns true if any path segment starts with a dot.
//
// Hidden segments follow Unix convention where files/directories
// starting with '.' are considered hidden.
//
// Examples:
//
//	"path/to/file.txt"      → false
//	".hidden/file.txt"      → true
//	"path/.hidden/file.txt" → true
//	"path/to/.gitignore"    → true
//	"path/to/file.txt."     → false (dot at end is not hidden)
func IsHidden(path string) bool {
	if path == "" {
		return false
	}

	segments := strings.Split(path, "/")
	for _, seg := range segments {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}

	return false
}
