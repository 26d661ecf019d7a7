package scan

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/sensiscan/pkg/probe"
)

// scriptedClassifier classifies any text containing needle as BLOCKED and
// everything else SAFE, counting how many times Classify was called.
type scriptedClassifier struct {
	needle string

	mu    sync.Mutex
	calls int
}

func (s *scriptedClassifier) Classify(_ context.Context, text string) (probe.Outcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if strings.Contains(text, s.needle) {
		return probe.BLOCKED, nil
	}
	return probe.SAFE, nil
}

func (s *scriptedClassifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func echoMicroScan(_ context.Context, f Fragment) ([]Candidate, error) {
	return []Candidate{{Text: f.Text, Start: f.OrigStart, End: f.OrigStart + len(f.Text)}}, nil
}

func TestBinaryParams_ValidateRejectsTooSmallThreshold(t *testing.T) {
	p := BinaryParams{SwitchThreshold: 10, OverlapSize: 5}
	assert.Error(t, p.Validate())

	p.SwitchThreshold = 11
	assert.NoError(t, p.Validate())
}

func TestBinarySearcher_ShortFragmentGoesStraightToMicro(t *testing.T) {
	classifier := &scriptedClassifier{needle: "bomb"}
	var microCalls int
	micro := func(_ context.Context, f Fragment) ([]Candidate, error) {
		microCalls++
		return echoMicroScan(context.Background(), f)
	}

	params := BinaryParams{SwitchThreshold: 100, OverlapSize: 2, MaxRecursionDepth: 5}
	searcher := NewBinarySearcher(classifier, params, micro, nil)

	cands, err := searcher.Search(context.Background(), Fragment{Text: "a bomb here"}, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 1, microCalls)
	assert.Equal(t, 0, classifier.callCount())
}

func TestBinarySearcher_RecursesIntoBlockedHalf(t *testing.T) {
	text := strings.Repeat("x", 40) + "bomb" + strings.Repeat("y", 40)
	classifier := &scriptedClassifier{needle: "bomb"}

	params := BinaryParams{SwitchThreshold: 20, OverlapSize: 2, MaxRecursionDepth: 10}
	searcher := NewBinarySearcher(classifier, params, echoMicroScan, nil)

	cands, err := searcher.Search(context.Background(), Fragment{Text: text}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Contains(t, c.Text, "bomb")
	}
}

func TestBinarySearcher_StraddlingKeywordFallsBackToMicro(t *testing.T) {
	// "split" sits exactly at the keyword; with zero overlap neither half
	// contains the whole needle, so recursion must fall back to microScan
	// on the parent fragment itself.
	text := strings.Repeat("a", 10) + "keyword" + strings.Repeat("b", 10)
	classifier := &scriptedClassifier{needle: "keyword"}

	var microTexts []string
	micro := func(_ context.Context, f Fragment) ([]Candidate, error) {
		microTexts = append(microTexts, f.Text)
		return nil, nil
	}

	params := BinaryParams{SwitchThreshold: 5, OverlapSize: 0, MaxRecursionDepth: 1}
	searcher := NewBinarySearcher(classifier, params, micro, nil)

	_, err := searcher.Search(context.Background(), Fragment{Text: text}, 0)
	require.NoError(t, err)
	require.Len(t, microTexts, 1)
	assert.Equal(t, text, microTexts[0])
}

func TestBinarySearcher_MaxRecursionDepthStopsAndDelegates(t *testing.T) {
	text := strings.Repeat("z", 200) + "bomb"
	classifier := &scriptedClassifier{needle: "bomb"}

	var microCalls int
	micro := func(_ context.Context, f Fragment) ([]Candidate, error) {
		microCalls++
		return nil, nil
	}

	params := BinaryParams{SwitchThreshold: 4, OverlapSize: 1, MaxRecursionDepth: 0}
	searcher := NewBinarySearcher(classifier, params, micro, nil)

	_, err := searcher.Search(context.Background(), Fragment{Text: text}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, microCalls)
}

func TestBinarySearcher_TripleProbeSafeFullFragmentShortCircuits(t *testing.T) {
	// Everything classifies SAFE, as happens once masking of keywords
	// found earlier in the scan has neutralized the fragment. With the
	// triple probe on, the full-fragment re-check settles it and the
	// parent must not fall back to the micro phase.
	classifier := &scriptedClassifier{needle: "never-present"}

	var microCalls int
	micro := func(_ context.Context, f Fragment) ([]Candidate, error) {
		microCalls++
		return nil, nil
	}

	params := BinaryParams{SwitchThreshold: 10, OverlapSize: 2, MaxRecursionDepth: 10, EnableTripleProbe: true}
	searcher := NewBinarySearcher(classifier, params, micro, nil)

	cands, err := searcher.Search(context.Background(), Fragment{Text: strings.Repeat("x", 80)}, 0)
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.Equal(t, 0, microCalls)
}

func TestBinarySearcher_TripleProbeDoesNotDuplicateCandidates(t *testing.T) {
	text := strings.Repeat("x", 40) + "bomb" + strings.Repeat("y", 40)
	classifier := &scriptedClassifier{needle: "bomb"}

	params := BinaryParams{SwitchThreshold: 20, OverlapSize: 2, MaxRecursionDepth: 10, EnableTripleProbe: true}
	searcher := NewBinarySearcher(classifier, params, echoMicroScan, nil)

	// The keyword sits in the overlap region, so each half localizes it
	// once; the triple probe must not add a third copy by recursing into
	// the full fragment as well.
	cands, err := searcher.Search(context.Background(), Fragment{Text: text}, 0)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	for _, c := range cands {
		assert.Contains(t, c.Text, "bomb")
	}
}

func TestBinarySearcher_MiddleChunkProbeAddsThirdPiece(t *testing.T) {
	classifier := &scriptedClassifier{needle: "bomb"}
	params := BinaryParams{SwitchThreshold: 10, OverlapSize: 4, MaxRecursionDepth: 10, EnableMiddleChunkProbe: true}
	searcher := NewBinarySearcher(classifier, params, echoMicroScan, nil)

	pieces := searcher.split(Fragment{Text: strings.Repeat("x", 40) + "bomb" + strings.Repeat("y", 40)})
	assert.Len(t, pieces, 3)
}

func TestBinarySearcher_ClassifyAllPropagatesError(t *testing.T) {
	errClassifier := errorClassifier{}
	params := BinaryParams{SwitchThreshold: 10, OverlapSize: 2, MaxRecursionDepth: 10}
	searcher := NewBinarySearcher(errClassifier, params, echoMicroScan, nil)

	_, err := searcher.Search(context.Background(), Fragment{Text: strings.Repeat("x", 100)}, 0)
	assert.Error(t, err)
}

type errorClassifier struct{}

func (errorClassifier) Classify(context.Context, string) (probe.Outcome, error) {
	return probe.UNKNOWN, assert.AnError
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-5, 0, 10))
	assert.Equal(t, 10, clamp(15, 0, 10))
	assert.Equal(t, 5, clamp(5, 0, 10))
}

func TestCeilInt(t *testing.T) {
	assert.Equal(t, 3, ceilInt(2.1))
	assert.Equal(t, 2, ceilInt(2.0))
}
