package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/sensiscan/pkg/probe"
)

func TestVerifier_S1_SingleKeyword(t *testing.T) {
	classifier := needleClassifier{needles: []string{"foo"}}
	v := NewVerifier(classifier)

	original := "hello foo world"
	candidates := []Candidate{{Text: "foo", Start: 6, End: 9}}

	findings, err := v.Verify(context.Background(), candidates, original)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "foo", findings[0].Keyword)
	assert.Equal(t, []Range{{Start: 6, End: 9}}, findings[0].Locations)
}

func TestVerifier_S2_TwoOccurrencesNoOverlap(t *testing.T) {
	classifier := needleClassifier{needles: []string{"ab"}}
	v := NewVerifier(classifier)

	original := "ab cd ab"
	candidates := []Candidate{{Text: "ab", Start: 0, End: 2}}

	findings, err := v.Verify(context.Background(), candidates, original)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, []Range{{Start: 0, End: 2}, {Start: 6, End: 8}}, findings[0].Locations)
}

func TestVerifier_S4_HallucinationSuppressed(t *testing.T) {
	// oracle rejects the full benign sentence only; "X" in isolation is
	// accepted, so stage 1 must drop the candidate.
	classifier := exactPhraseClassifier{blocked: "long benign sentence containing X"}
	v := NewVerifier(classifier)

	candidates := []Candidate{{Text: "X", Start: 32, End: 33}}
	findings, err := v.Verify(context.Background(), candidates, "long benign sentence containing X")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

type exactPhraseClassifier struct {
	blocked string
}

func (e exactPhraseClassifier) Classify(_ context.Context, text string) (probe.Outcome, error) {
	if text == e.blocked {
		return probe.BLOCKED, nil
	}
	return probe.SAFE, nil
}

func TestVerifier_S5_ContainmentReducesToShortest(t *testing.T) {
	// oracle rejects "cat" alone and "black cat" compositely; containment
	// reduction must keep only "cat".
	classifier := needleClassifier{needles: []string{"cat"}}
	v := NewVerifier(classifier)

	candidates := []Candidate{
		{Text: "black cat", Start: 0, End: 9},
		{Text: "cat", Start: 6, End: 9},
	}
	findings, err := v.Verify(context.Background(), candidates, "black cat")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "cat", findings[0].Keyword)
}

func TestVerifier_RecountClaimsLongestFirst(t *testing.T) {
	// "black cat" and "cat and" both survive verification independently
	// (each is blocked alone and neither contains the other), but they
	// overlap in the original input. Recount claims the longer one first,
	// so "cat and" finds no unclaimed occurrence and yields no finding.
	classifier := needleClassifier{needles: []string{"black cat", "cat and"}}
	v := NewVerifier(classifier)

	original := "a black cat and a bear"
	candidates := []Candidate{
		{Text: "cat and", Start: 8, End: 15},
		{Text: "black cat", Start: 2, End: 11},
	}
	findings, err := v.Verify(context.Background(), candidates, original)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, []Range{{Start: 2, End: 11}}, findings[0].Locations)
}

func TestVerifier_EmptyCandidatesYieldsEmptyFindings(t *testing.T) {
	classifier := needleClassifier{needles: []string{"x"}}
	v := NewVerifier(classifier)

	findings, err := v.Verify(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestVerifier_PropagatesClassifierError(t *testing.T) {
	v := NewVerifier(errorClassifier{})
	_, err := v.Verify(context.Background(), []Candidate{{Text: "x"}}, "x")
	assert.Error(t, err)
}

func TestDedupeByText(t *testing.T) {
	in := []Candidate{
		{Text: "a", Start: 0},
		{Text: "a", Start: 5},
		{Text: "b", Start: 1},
	}
	out := dedupeByText(in)
	assert.Len(t, out, 2)
}
