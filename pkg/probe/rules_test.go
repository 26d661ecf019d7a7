package probe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRuleSet_KeywordsSortedLongestFirst(t *testing.T) {
	rs := DefaultRuleSet()
	for i := 1; i < len(rs.BlockKeywords); i++ {
		assert.GreaterOrEqual(t, len(rs.BlockKeywords[i-1]), len(rs.BlockKeywords[i]))
	}
}

func TestRuleEvaluator_Evaluate(t *testing.T) {
	rs := NewRuleSet([]int{403}, []int{429, 503}, []string{"content_filter", "blocked"})
	e := NewRuleEvaluator(rs)

	tests := []struct {
		name      string
		status    int
		body      string
		wantOut   Outcome
		wantKind  string
		wantValue string
	}{
		{"retry status wins first", 429, `{"error":"blocked"}`, RETRY, "", ""},
		{"block status with no keyword", 403, "", BLOCKED, "status_code", "403"},
		{"2xx with block keyword still blocked", 200, `content_filter triggered`, BLOCKED, "keyword", "content_filter"},
		{"plain 2xx is safe", 200, `{"choices":[]}`, SAFE, "", ""},
		{"unrecognized status is unknown", 418, "teapot", UNKNOWN, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(tt.status, tt.body)
			assert.Equal(t, tt.wantOut, result.Outcome)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, result.Evidence.Kind)
				assert.Equal(t, tt.wantValue, result.Evidence.Value)
			}
		})
	}
}

func TestRuleEvaluator_LongestKeywordWinsWhenBothPresent(t *testing.T) {
	rs := NewRuleSet(nil, nil, []string{"content policy", "content policy violation"})
	e := NewRuleEvaluator(rs)

	result := e.Evaluate(200, "rejected: content policy violation detected")
	assert.Equal(t, "content policy violation", result.Evidence.Value)
}

func TestRuleEvaluator_UnknownStatusCodeCounts(t *testing.T) {
	e := NewRuleEvaluator(DefaultRuleSet())

	e.Evaluate(418, "teapot")
	e.Evaluate(418, "teapot again")
	e.Evaluate(422, "unprocessable")

	counts := e.UnknownStatusCodeCounts()
	assert.Equal(t, 2, counts[418])
	assert.Equal(t, 1, counts[422])
}

func TestRuleEvaluator_UnknownHandlerGetsBoundedSnippet(t *testing.T) {
	e := NewRuleEvaluator(DefaultRuleSet())

	var gotStatus int
	var gotSnippet string
	e.SetUnknownHandler(func(status int, snippet string) {
		gotStatus = status
		gotSnippet = snippet
	})

	long := strings.Repeat("x", unknownSnippetLen+50)
	e.Evaluate(418, long)

	assert.Equal(t, 418, gotStatus)
	assert.Len(t, gotSnippet, unknownSnippetLen)
}

func TestRuleEvaluator_UnknownStatusCodeCountsIsSnapshot(t *testing.T) {
	e := NewRuleEvaluator(DefaultRuleSet())
	e.Evaluate(418, "teapot")

	snapshot := e.UnknownStatusCodeCounts()
	snapshot[418] = 999

	assert.Equal(t, 1, e.UnknownStatusCodeCounts()[418])
}
