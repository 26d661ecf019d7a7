package scan

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/sensiscan/pkg/mask"
	"github.com/3leaps/sensiscan/pkg/probe"
)

// needleClassifier is BLOCKED iff text contains any of needles.
type needleClassifier struct {
	needles []string
}

func (n needleClassifier) Classify(_ context.Context, text string) (probe.Outcome, error) {
	for _, needle := range n.needles {
		if strings.Contains(text, needle) {
			return probe.BLOCKED, nil
		}
	}
	return probe.SAFE, nil
}

func (n needleClassifier) ClassifyWithEvidence(ctx context.Context, text string) (probe.Outcome, probe.Evidence, error) {
	o, err := n.Classify(ctx, text)
	if o == probe.BLOCKED {
		for _, needle := range n.needles {
			if strings.Contains(text, needle) {
				return o, probe.Evidence{Kind: "keyword", Value: needle}, err
			}
		}
	}
	return o, probe.Evidence{}, err
}

func TestPrecisionScanner_FindsSingleKeyword(t *testing.T) {
	classifier := needleClassifier{needles: []string{"bomb"}}
	registry := mask.NewRegistry()
	scanner := NewPrecisionScanner(classifier, registry, PrecisionParams{MinGranularity: 1}, nil)

	cands, err := scanner.Scan(context.Background(), Fragment{Text: "build a bomb today", OrigStart: 0})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "bomb", cands[0].Text)
	assert.Equal(t, "build a bomb today"[cands[0].Start:cands[0].End], "bomb")
	assert.Equal(t, "keyword", cands[0].Evidence.Kind)
	assert.Equal(t, 1, registry.Len())
}

func TestPrecisionScanner_FindsMultipleKeywordsInSequence(t *testing.T) {
	classifier := needleClassifier{needles: []string{"cat", "dog"}}
	registry := mask.NewRegistry()
	scanner := NewPrecisionScanner(classifier, registry, PrecisionParams{MinGranularity: 1}, nil)

	text := "a cat and a dog"
	cands, err := scanner.Scan(context.Background(), Fragment{Text: text, OrigStart: 100})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	for _, c := range cands {
		assert.Equal(t, text[c.Start-100:c.End-100], c.Text)
	}
	assert.Equal(t, 2, registry.Len())
}

func TestPrecisionScanner_NoKeywordReturnsEmpty(t *testing.T) {
	classifier := needleClassifier{needles: []string{"zzz"}}
	registry := mask.NewRegistry()
	scanner := NewPrecisionScanner(classifier, registry, PrecisionParams{MinGranularity: 1}, nil)

	cands, err := scanner.Scan(context.Background(), Fragment{Text: "nothing to see here", OrigStart: 0})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestPrecisionScanner_OrigStartOffsetsAreAbsolute(t *testing.T) {
	classifier := needleClassifier{needles: []string{"secret"}}
	registry := mask.NewRegistry()
	scanner := NewPrecisionScanner(classifier, registry, PrecisionParams{MinGranularity: 1}, nil)

	text := "prefix secret suffix"
	cands, err := scanner.Scan(context.Background(), Fragment{Text: text, OrigStart: 1000})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 1000+strings.Index(text, "secret"), cands[0].Start)
}

func TestPrecisionScanner_GranularityFloorWarns(t *testing.T) {
	classifier := needleClassifier{needles: []string{"ab"}}
	registry := mask.NewRegistry()

	var warnings []string
	scanner := NewPrecisionScanner(classifier, registry, PrecisionParams{MinGranularity: 6}, func(msg string) {
		warnings = append(warnings, msg)
	})

	cands, err := scanner.Scan(context.Background(), Fragment{Text: "xx ab yy", OrigStart: 0})
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.NotEmpty(t, warnings)
}

func TestPrecisionScanner_PropagatesClassifierError(t *testing.T) {
	registry := mask.NewRegistry()
	scanner := NewPrecisionScanner(errorClassifier{}, registry, PrecisionParams{MinGranularity: 1}, nil)

	_, err := scanner.Scan(context.Background(), Fragment{Text: "anything", OrigStart: 0})
	assert.Error(t, err)
}
