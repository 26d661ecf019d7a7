package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/3leaps/sensiscan/pkg/probe"
)

// BinaryParams are the macro-phase tunables from ConfigView.
type BinaryParams struct {
	SwitchThreshold          int
	OverlapSize              int
	MaxRecursionDepth        int
	EnableTripleProbe        bool
	EnableMiddleChunkProbe   bool
	MiddleChunkOverlapFactor float64
}

// Validate enforces the configuration invariant that recursion must
// strictly shrink the fragment on every split.
func (p BinaryParams) Validate() error {
	if p.SwitchThreshold <= 2*p.OverlapSize {
		return fmt.Errorf("scan: switch_threshold (%d) must be > 2*overlap_size (%d)", p.SwitchThreshold, p.OverlapSize)
	}
	return nil
}

// BinarySearcher implements the macro phase: it recursively narrows a
// BLOCKED fragment into pieces no longer than SwitchThreshold, each
// individually confirmed BLOCKED, then hands each off to the micro phase.
type BinarySearcher struct {
	classifier Classifier
	params     BinaryParams
	// microScan is invoked once a fragment is short enough (or the
	// recursion cap is hit); it is PrecisionScanner.Scan in production
	// and a scripted fake in tests.
	microScan func(ctx context.Context, f Fragment) ([]Candidate, error)
	warn      WarnFunc
}

// NewBinarySearcher builds a BinarySearcher. params must already have
// passed Validate(); warn may be nil.
func NewBinarySearcher(classifier Classifier, params BinaryParams, microScan func(context.Context, Fragment) ([]Candidate, error), warn WarnFunc) *BinarySearcher {
	if warn == nil {
		warn = func(string) {}
	}
	return &BinarySearcher{classifier: classifier, params: params, microScan: microScan, warn: warn}
}

// Search narrows a known-BLOCKED fragment down to candidates. depth is
// the current recursion depth; callers start at 0.
func (b *BinarySearcher) Search(ctx context.Context, f Fragment, depth int) ([]Candidate, error) {
	if len(f.Text) <= b.params.SwitchThreshold {
		return b.microScan(ctx, f)
	}
	if depth >= b.params.MaxRecursionDepth {
		b.warn(fmt.Sprintf("recursion cap reached at depth %d, handing %d-char fragment to precision scan", depth, len(f.Text)))
		return b.microScan(ctx, f)
	}

	pieces := b.split(f)

	// On first entry the triple probe re-classifies the full fragment
	// alongside its pieces: masking of keywords found earlier in the scan
	// may have rendered the whole fragment safe by now, in which case
	// there is nothing left to localize here. The full fragment is only
	// probed, never recursed into; deeper levels already know their
	// parent was BLOCKED.
	fullIdx := -1
	probeSet := pieces
	if b.params.EnableTripleProbe && depth == 0 {
		fullIdx = len(probeSet)
		probeSet = append(probeSet[:len(probeSet):len(probeSet)], f)
	}

	outcomes, err := b.classifyAll(ctx, probeSet)
	if err != nil {
		return nil, err
	}
	if fullIdx >= 0 && outcomes[fullIdx] != probe.BLOCKED {
		return nil, nil
	}

	var anyBlocked bool
	var candidates []Candidate
	for i, piece := range pieces {
		if outcomes[i] != probe.BLOCKED {
			continue
		}
		anyBlocked = true
		cs, err := b.Search(ctx, piece, depth+1)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cs...)
	}

	if !anyBlocked {
		// A keyword straddled both halves and the overlap didn't cover
		// it; the parent itself was BLOCKED so hand it directly to the
		// micro phase.
		return b.microScan(ctx, f)
	}

	return candidates, nil
}

// split forms the left/right (and, optionally, middle) pieces for one
// binary contraction step.
func (b *BinarySearcher) split(f Fragment) []Fragment {
	text := f.Text
	m := len(text) / 2
	overlap := b.params.OverlapSize

	leftEnd := clamp(m+overlap, 0, len(text))
	left := Fragment{Text: text[:leftEnd], OrigStart: f.OrigStart}

	rightStart := clamp(m-overlap, 0, len(text))
	right := Fragment{Text: text[rightStart:], OrigStart: f.OrigStart + rightStart}

	pieces := []Fragment{left, right}

	if b.params.EnableMiddleChunkProbe {
		mf := b.params.MiddleChunkOverlapFactor
		if mf <= 0 {
			mf = 1.0
		}
		half := ceilInt(mf * float64(overlap))
		midStart := clamp(m-half, 0, len(text))
		midEnd := clamp(m+half, 0, len(text))
		if midEnd > midStart {
			pieces = append(pieces, Fragment{Text: text[midStart:midEnd], OrigStart: f.OrigStart + midStart})
		}
	}

	return pieces
}

// classifyAll probes every piece concurrently and joins on the results;
// order in the returned slice matches pieces. The pieces may complete
// their probes in any order.
func (b *BinarySearcher) classifyAll(ctx context.Context, pieces []Fragment) ([]probe.Outcome, error) {
	outcomes := make([]probe.Outcome, len(pieces))
	errs := make([]error, len(pieces))

	var wg sync.WaitGroup
	for i, piece := range pieces {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			o, err := b.classifier.Classify(ctx, text)
			outcomes[i] = o
			errs[i] = err
		}(i, piece.Text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ceilInt(f float64) int {
	i := int(f)
	if float64(i) < f {
		i++
	}
	return i
}
