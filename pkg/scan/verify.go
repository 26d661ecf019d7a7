package scan

import (
	"context"
	"sort"
	"strings"

	"github.com/3leaps/sensiscan/pkg/probe"
)

// Verifier implements the three-stage refinement: isolate, reduce
// containment, then recount against the original input.
type Verifier struct {
	classifier Classifier
}

// NewVerifier builds a Verifier.
func NewVerifier(classifier Classifier) *Verifier {
	return &Verifier{classifier: classifier}
}

// Verify turns a raw candidate list into the final Finding set, with
// absolute locations recounted by substring search over original.
func (v *Verifier) Verify(ctx context.Context, candidates []Candidate, original string) ([]Finding, error) {
	confirmed, err := v.isolate(ctx, candidates)
	if err != nil {
		return nil, err
	}

	reduced, err := v.reduceContainment(ctx, confirmed)
	if err != nil {
		return nil, err
	}

	return v.recount(reduced, original), nil
}

// isolate is stage 1: re-probe each candidate's text alone and drop any
// that now return SAFE. This catches hallucinated long-phrase artifacts
// that were only BLOCKED because of surrounding context.
func (v *Verifier) isolate(ctx context.Context, candidates []Candidate) ([]Candidate, error) {
	var out []Candidate
	for _, c := range candidates {
		outcome, err := v.classifier.Classify(ctx, c.Text)
		if err != nil {
			return nil, err
		}
		if outcome == probe.BLOCKED {
			out = append(out, c)
		}
	}
	return out, nil
}

// reduceContainment is stage 2: for every pair where one candidate's text
// is a strict substring of another's, probe the shorter one alone; if it
// is itself BLOCKED, the longer is redundant and is dropped. Applied to a
// fixed point since dropping one candidate can expose new containment
// relations among the survivors. Pairs of equal length are never
// compared: once dedupeByText has removed identical texts, neither can be
// a strict substring of the other.
func (v *Verifier) reduceContainment(ctx context.Context, candidates []Candidate) ([]Candidate, error) {
	survivors := dedupeByText(candidates)

	for {
		dropped := false

		for i := 0; i < len(survivors) && !dropped; i++ {
			for j := 0; j < len(survivors); j++ {
				if i == j {
					continue
				}
				a, b := survivors[i], survivors[j]
				if len(a.Text) >= len(b.Text) {
					continue
				}
				if !strings.Contains(b.Text, a.Text) {
					continue
				}

				outcome, err := v.classifier.Classify(ctx, a.Text)
				if err != nil {
					return nil, err
				}
				if outcome != probe.BLOCKED {
					continue
				}

				survivors = append(survivors[:j], survivors[j+1:]...)
				dropped = true
				break
			}
		}

		if !dropped {
			break
		}
	}

	return survivors, nil
}

// dedupeByText keeps the first candidate seen for each distinct text, in
// first-seen order.
func dedupeByText(candidates []Candidate) []Candidate {
	best := make(map[string]Candidate, len(candidates))
	var order []string
	for _, c := range candidates {
		if _, ok := best[c.Text]; !ok {
			order = append(order, c.Text)
			best[c.Text] = c
		}
	}
	out := make([]Candidate, 0, len(order))
	for _, text := range order {
		out = append(out, best[text])
	}
	return out
}

// recount is stage 3: for each surviving keyword, find every
// non-overlapping leftmost-longest occurrence in the original input and
// build the final Finding, deduplicating identical keyword text across
// candidates.
func (v *Verifier) recount(candidates []Candidate, original string) []Finding {
	byKeyword := make(map[string]probe.Evidence)
	var order []string
	for _, c := range candidates {
		if _, ok := byKeyword[c.Text]; !ok {
			order = append(order, c.Text)
		}
		byKeyword[c.Text] = c.Evidence
	}

	// Longest-first so that a longer surviving keyword claims a span
	// before a shorter one that happens to be its substring.
	sort.SliceStable(order, func(i, j int) bool { return len(order[i]) > len(order[j]) })

	claimed := make([]bool, len(original))
	findings := make([]Finding, 0, len(order))

	for _, kw := range order {
		if kw == "" {
			continue
		}
		var locations []Range
		i := 0
		for i+len(kw) <= len(original) {
			if original[i:i+len(kw)] == kw && !anyClaimed(claimed, i, i+len(kw)) {
				locations = append(locations, Range{Start: i, End: i + len(kw)})
				for k := i; k < i+len(kw); k++ {
					claimed[k] = true
				}
				i += len(kw)
				continue
			}
			i++
		}
		if len(locations) == 0 {
			continue
		}
		findings = append(findings, Finding{
			Keyword:   kw,
			Locations: locations,
			Evidence:  byKeyword[kw],
		})
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Locations[0].Start < findings[j].Locations[0].Start
	})

	return findings
}

func anyClaimed(claimed []bool, start, end int) bool {
	for k := start; k < end; k++ {
		if claimed[k] {
			return true
		}
	}
	return false
}
