// Package scan implements the macro/micro scanning algorithm: recursive
// binary contraction of a blocked fragment (BinarySearcher), bidirectional
// squeezing to isolate one keyword in a short fragment (PrecisionScanner),
// and the three-stage verification refinement (Verifier).
package scan

import (
	"context"

	"github.com/3leaps/sensiscan/pkg/probe"
)

// Classifier is the subset of probe.Client the scan algorithms depend on.
// probe.Client satisfies it; tests substitute a scripted fake.
type Classifier interface {
	Classify(ctx context.Context, text string) (probe.Outcome, error)
}

// EvidenceClassifier is optionally implemented by Classifiers that can
// also report which rule produced a BLOCKED outcome. probe.Client
// implements it; the micro phase uses it to attach evidence to each
// candidate it emits.
type EvidenceClassifier interface {
	ClassifyWithEvidence(ctx context.Context, text string) (probe.Outcome, probe.Evidence, error)
}

// Fragment is a view over the input carrying its absolute base offset so
// child fragments can translate local positions to global ones.
//
// Invariant: Text == original[OrigStart : OrigStart+len(Text)] (modulo
// masking applied on top for probing).
type Fragment struct {
	Text      string
	OrigStart int
}

// Range is a half-open [Start, End) span of character offsets into the
// original input.
type Range struct {
	Start int
	End   int
}

// Candidate is produced by the micro phase and is non-authoritative until
// the Verifier confirms it.
//
// Invariant at creation: End-Start <= switchThreshold and
// original[Start:End] == Text (modulo mask).
type Candidate struct {
	Text     string
	Start    int
	End      int
	Evidence probe.Evidence
}

// Finding is the final, verified output of a scan.
type Finding struct {
	Keyword   string
	Locations []Range
	Evidence  probe.Evidence
}
