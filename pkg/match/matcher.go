package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher selects input files for the CLI's --glob batch mode: it
// evaluates include/exclude glob patterns against slash-separated,
// root-relative file paths, and walks a directory tree collecting the
// files that match (see Files).
//
// A path is selected when it matches at least one include pattern,
// matches no exclude pattern, and is not hidden (unless IncludeHidden
// is set). The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes      []string
	excludes      []string
	roots         []string
	includeHidden bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns that input files must match (at least one).
	// Required: at least one include pattern must be specified.
	Includes []string

	// Excludes are glob patterns that input files must not match (any).
	// Optional: if empty, no excludes are applied.
	Excludes []string

	// IncludeHidden controls whether hidden files are matched.
	// Hidden files have path segments starting with '.'.
	// Default: false (hidden files are excluded).
	IncludeHidden bool
}

// Errors returned by Matcher operations.
var (
	// ErrNoIncludes is returned when no include patterns are provided.
	ErrNoIncludes = errors.New("at least one include pattern is required")

	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher from the given configuration, normalizing
// Windows-style backslash separators while preserving escape sequences
// for literal glob metacharacters.
//
// Returns ErrNoIncludes when no include patterns are provided, or a
// PatternError when any pattern fails to compile.
func New(cfg Config) (*Matcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, ErrNoIncludes
	}

	includes, err := normalizeAll(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := normalizeAll(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	return &Matcher{
		includes:      includes,
		excludes:      excludes,
		roots:         walkRoots(includes),
		includeHidden: cfg.IncludeHidden,
	}, nil
}

func normalizeAll(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, raw := range patterns {
		p := NormalizePattern(raw)
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether a slash-separated, root-relative path passes
// the include/exclude patterns and the hidden-file rule.
func (m *Matcher) Match(path string) bool {
	if !m.includeHidden && IsHidden(path) {
		return false
	}
	if !matchAny(m.includes, path) {
		return false
	}
	return !matchAny(m.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		// Patterns were validated at construction, so Match cannot fail.
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// WalkRoots returns the static directory roots the include patterns
// confine matches to: every match lives under one of them, so Files
// only walks these subtrees. A single empty string means at least one
// pattern can match anywhere and the whole tree must be walked.
func (m *Matcher) WalkRoots() []string {
	out := make([]string, len(m.roots))
	copy(out, m.roots)
	return out
}
