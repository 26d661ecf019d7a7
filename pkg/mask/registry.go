// Package mask implements the process-lifetime store of confirmed
// sensitive substrings discovered during a scan, and the equal-length
// masking that keeps the original coordinate system valid.
package mask

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Registry is the mask registry: add() inserts a confirmed keyword,
// apply() returns a masked view of text with every registered keyword
// replaced by an equal-length run of '*'.
//
// Registry is safe for concurrent use: apply() (read) may run
// concurrently with other apply() calls, and add() (write) is
// linearizable against them via a single mutex. A copy-on-write
// snapshot of the keyword slice is rebuilt on add so that apply()
// never observes a partially-added keyword.
type Registry struct {
	mu       sync.RWMutex
	keywords []string // sorted longest-first, deduplicated
	seen     map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]struct{})}
}

// Add inserts keyword into the registry. A no-op on an empty string or a
// duplicate. Safe for concurrent callers.
func (r *Registry) Add(keyword string) {
	if keyword == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[keyword]; ok {
		return
	}
	r.seen[keyword] = struct{}{}

	next := make([]string, len(r.keywords), len(r.keywords)+1)
	copy(next, r.keywords)
	next = append(next, keyword)
	sort.SliceStable(next, func(i, j int) bool { return len(next[i]) > len(next[j]) })
	r.keywords = next
}

// Len reports how many distinct keywords are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keywords)
}

// Keywords returns a snapshot of the registered keywords, longest-first.
func (r *Registry) Keywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.keywords))
	copy(out, r.keywords)
	return out
}

// Apply replaces every non-overlapping occurrence of every registered
// keyword in text with '*' repeated to the keyword's length. Matches are
// found leftmost-longest: keywords are tried longest-first at each
// position so a long match always wins over a shorter one starting at
// the same offset, and once a span is masked it is never reconsidered.
//
// Equal-length substitution is mandatory: len(Apply(text)) == len(text)
// always, which is what lets downstream offsets stay valid against the
// original input.
func (r *Registry) Apply(text string) string {
	keywords := r.Keywords()
	if len(keywords) == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		matched := false
		for _, kw := range keywords {
			n := len(kw)
			if n == 0 || i+n > len(text) {
				continue
			}
			if text[i:i+n] == kw {
				b.WriteString(strings.Repeat("*", n))
				i += n
				matched = true
				break
			}
		}
		if !matched {
			// Advance by one rune, not one byte, so multi-byte UTF-8
			// sequences are copied whole; the byte offsets this produces
			// are what downstream positions are expressed in, so they
			// stay valid against the original input either way.
			_, size := utf8.DecodeRuneInString(text[i:])
			b.WriteString(text[i : i+size])
			i += size
		}
	}
	return b.String()
}
