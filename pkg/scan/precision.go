package scan

import (
	"context"

	"github.com/3leaps/sensiscan/pkg/mask"
	"github.com/3leaps/sensiscan/pkg/probe"
)

// PrecisionParams are the micro-phase tunables from ConfigView.
type PrecisionParams struct {
	MinGranularity int
}

// WarnFunc receives a human-readable warning, e.g. "granularity floor
// reached" or "recursion cap reached".
type WarnFunc func(message string)

// PrecisionScanner implements the micro phase: forward-scan to find the
// minimal blocking prefix, then left-squeeze to contract it down to the
// exact keyword, repeating across the remainder of a short BLOCKED
// fragment.
type PrecisionScanner struct {
	classifier Classifier
	registry   *mask.Registry
	params     PrecisionParams
	warn       WarnFunc
}

// NewPrecisionScanner builds a PrecisionScanner. warn may be nil.
func NewPrecisionScanner(classifier Classifier, registry *mask.Registry, params PrecisionParams, warn WarnFunc) *PrecisionScanner {
	if warn == nil {
		warn = func(string) {}
	}
	if params.MinGranularity <= 0 {
		params.MinGranularity = 1
	}
	return &PrecisionScanner{classifier: classifier, registry: registry, params: params, warn: warn}
}

// Scan locates every keyword occurrence in a short BLOCKED fragment,
// advancing past each one found until no blocking prefix remains in the
// tail.
func (p *PrecisionScanner) Scan(ctx context.Context, f Fragment) ([]Candidate, error) {
	var candidates []Candidate

	text := f.Text
	base := f.OrigStart
	pos := 0 // local offset into the original f.Text, advanced as keywords are found

	for pos < len(text) {
		tail := text[pos:]

		end, found, err := p.forwardScan(ctx, tail)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		if end < p.params.MinGranularity {
			p.warn("granularity floor reached: blocking prefix shorter than min_granularity")
			break
		}

		s, ev, err := p.leftSqueeze(ctx, tail, end)
		if err != nil {
			return nil, err
		}
		if end-s < p.params.MinGranularity {
			p.warn("granularity floor reached: squeezed keyword shorter than min_granularity")
			break
		}

		kw := tail[s:end]
		cand := Candidate{
			Text:     kw,
			Start:    base + pos + s,
			End:      base + pos + end,
			Evidence: ev,
		}
		candidates = append(candidates, cand)
		p.registry.Add(kw)

		pos += end
	}

	return candidates, nil
}

// forwardScan finds the smallest prefix length k (1, 2, ...) whose probe
// is BLOCKED, using exponential-then-binary search.
func (p *PrecisionScanner) forwardScan(ctx context.Context, text string) (int, bool, error) {
	if text == "" {
		return 0, false, nil
	}

	// Exponential phase: 1, 2, 4, 8, ... until BLOCKED or we exhaust text.
	prev := 0
	k := 1
	for {
		if k > len(text) {
			k = len(text)
		}
		outcome, err := p.classifier.Classify(ctx, text[:k])
		if err != nil {
			return 0, false, err
		}
		if outcome == probe.BLOCKED {
			break
		}
		if k == len(text) {
			return 0, false, nil
		}
		prev = k
		k *= 2
	}

	// Binary phase: minimal blocking length is in (prev, k].
	lo, hi := prev, k
	for lo+1 < hi {
		mid := (lo + hi) / 2
		outcome, err := p.classifier.Classify(ctx, text[:mid])
		if err != nil {
			return 0, false, err
		}
		if outcome == probe.BLOCKED {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, true, nil
}

// leftSqueeze holds end fixed and finds the greatest s such that
// text[s:end] is still BLOCKED while text[s+1:end] is SAFE. It also
// re-probes the final candidate to capture the evidence that classified
// it BLOCKED.
func (p *PrecisionScanner) leftSqueeze(ctx context.Context, text string, end int) (int, probe.Evidence, error) {
	maxS := end - p.params.MinGranularity
	if maxS < 0 {
		maxS = 0
	}

	// Exponential phase growing s from 0: 1, 2, 4, ... until SAFE or the
	// ceiling is reached.
	prev := 0
	step := 1
	safeAt := -1
	for prev <= maxS {
		s := prev + step
		if s > maxS {
			s = maxS
		}
		outcome, err := p.classifier.Classify(ctx, text[s:end])
		if err != nil {
			return 0, probe.Evidence{}, err
		}
		if outcome != probe.BLOCKED {
			safeAt = s
			break
		}
		if s == maxS {
			prev = s
			break
		}
		prev = s
		step *= 2
	}

	lo, hi := prev, safeAt
	if hi == -1 {
		// Never went SAFE within [0, maxS]: every probed start up to the
		// granularity ceiling still blocks, so the greatest BLOCKED s is
		// the ceiling itself.
		ev, err := p.evidenceFor(ctx, text[prev:end])
		return prev, ev, err
	}

	// Binary phase: greatest BLOCKED s is in [lo, hi).
	for lo+1 < hi {
		mid := (lo + hi) / 2
		outcome, err := p.classifier.Classify(ctx, text[mid:end])
		if err != nil {
			return 0, probe.Evidence{}, err
		}
		if outcome == probe.BLOCKED {
			lo = mid
		} else {
			hi = mid
		}
	}
	ev, err := p.evidenceFor(ctx, text[lo:end])
	return lo, ev, err
}

// evidenceFor re-probes text and returns the evidence that classified it
// as BLOCKED, when the Classifier also exposes evidence.
func (p *PrecisionScanner) evidenceFor(ctx context.Context, text string) (probe.Evidence, error) {
	if ec, ok := p.classifier.(EvidenceClassifier); ok {
		_, ev, err := ec.ClassifyWithEvidence(ctx, text)
		return ev, err
	}
	return probe.Evidence{}, nil
}
