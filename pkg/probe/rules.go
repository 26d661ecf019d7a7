package probe

import (
	"strconv"
	"strings"
	"sync"
)

// RuleSet is the preset ruleset loaded at scan start. It is immutable
// once built; RuleEvaluator only reads it.
//
// RuleSet is polymorphic over two capabilities, classify-by-status and
// match-body-keyword, modeled here as a tagged struct carrying three
// rule tables rather than a class hierarchy.
type RuleSet struct {
	// BlockStatusCodes are HTTP statuses that always mean BLOCKED.
	BlockStatusCodes map[int]struct{}
	// RetryStatusCodes are HTTP statuses that mean RETRY (429, 502-504 typically).
	RetryStatusCodes map[int]struct{}
	// BlockKeywords are body substrings that mean BLOCKED regardless of status.
	// Matched longest-first so evidence reporting is deterministic.
	BlockKeywords []string
}

// DefaultRuleSet returns the conventional rule table for OpenAI-compatible
// gateways fronting an LLM relay: 403/451 as hard blocks, 429/502/503/504
// as transient, and a small set of body phrases gateways commonly emit.
func DefaultRuleSet() RuleSet {
	rs := RuleSet{
		BlockStatusCodes: map[int]struct{}{403: {}, 451: {}},
		RetryStatusCodes: map[int]struct{}{429: {}, 502: {}, 503: {}, 504: {}},
		BlockKeywords: []string{
			"content_filter",
			"content policy",
			"sensitive word",
			"敏感词",
		},
	}
	return rs.sorted()
}

// NewRuleSet builds a RuleSet from explicit tables, sorting BlockKeywords
// longest-first.
func NewRuleSet(blockStatus, retryStatus []int, blockKeywords []string) RuleSet {
	rs := RuleSet{
		BlockStatusCodes: toSet(blockStatus),
		RetryStatusCodes: toSet(retryStatus),
		BlockKeywords:    append([]string(nil), blockKeywords...),
	}
	return rs.sorted()
}

func toSet(codes []int) map[int]struct{} {
	m := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

func (rs RuleSet) sorted() RuleSet {
	kws := append([]string(nil), rs.BlockKeywords...)
	// Longest-first so that when several keywords appear in the body the
	// longest one is reported, keeping evidence reporting deterministic.
	for i := 1; i < len(kws); i++ {
		for j := i; j > 0 && len(kws[j]) > len(kws[j-1]); j-- {
			kws[j], kws[j-1] = kws[j-1], kws[j]
		}
	}
	rs.BlockKeywords = kws
	return rs
}

// unknownSnippetLen bounds how much response body travels with an
// unknown_status_code notification.
const unknownSnippetLen = 120

// RuleEvaluator maps a raw HTTP response to an Outcome using a preset
// RuleSet and tracks counts of responses that matched no rule at all.
type RuleEvaluator struct {
	rules     RuleSet
	onUnknown func(status int, snippet string)

	mu            sync.Mutex
	unknownCounts map[int]int
}

// NewRuleEvaluator constructs an evaluator over the given rule set.
func NewRuleEvaluator(rules RuleSet) *RuleEvaluator {
	return &RuleEvaluator{
		rules:         rules,
		unknownCounts: make(map[int]int),
	}
}

// SetUnknownHandler registers fn to be called once per response that
// matches no rule, with the status code and a bounded body snippet.
// Must be set before the first Evaluate call; fn may be invoked from
// concurrent probe goroutines.
func (e *RuleEvaluator) SetUnknownHandler(fn func(status int, snippet string)) {
	e.onUnknown = fn
}

// Evaluate resolves {status, body} into a Result.
//
// Resolution order:
//  1. status indicates RETRY -> RETRY
//  2. status in block set OR body contains a block keyword -> BLOCKED
//  3. status is 2xx -> SAFE
//  4. otherwise -> UNKNOWN, status recorded in the per-scan counter
func (e *RuleEvaluator) Evaluate(status int, body string) Result {
	if _, ok := e.rules.RetryStatusCodes[status]; ok {
		return Result{Outcome: RETRY, StatusCode: status}
	}

	if _, ok := e.rules.BlockStatusCodes[status]; ok {
		return Result{
			Outcome:    BLOCKED,
			StatusCode: status,
			Evidence:   Evidence{Kind: "status_code", Value: strconv.Itoa(status)},
		}
	}

	for _, kw := range e.rules.BlockKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(body, kw) {
			return Result{
				Outcome:    BLOCKED,
				StatusCode: status,
				Evidence:   Evidence{Kind: "keyword", Value: kw},
			}
		}
	}

	if status >= 200 && status < 300 {
		return Result{Outcome: SAFE, StatusCode: status}
	}

	e.recordUnknown(status, body)
	return Result{Outcome: UNKNOWN, StatusCode: status}
}

func (e *RuleEvaluator) recordUnknown(status int, body string) {
	e.mu.Lock()
	e.unknownCounts[status]++
	e.mu.Unlock()

	if e.onUnknown != nil {
		snippet := body
		if len(snippet) > unknownSnippetLen {
			snippet = snippet[:unknownSnippetLen]
		}
		e.onUnknown(status, snippet)
	}
}

// UnknownStatusCodeCounts returns a snapshot of unrecognized status codes
// seen so far, for the scan_complete.unknown_status_code_counts payload.
func (e *RuleEvaluator) UnknownStatusCodeCounts() map[int]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]int, len(e.unknownCounts))
	for k, v := range e.unknownCounts {
		out[k] = v
	}
	return out
}
