// Package coordinator implements the top-level scan driver: it chunks
// long input, runs the macro binary-contraction phase into the micro
// precision-scan phase over each chunk, deduplicates near-duplicate
// candidates across chunk boundaries, verifies the survivors, and emits
// progress events throughout.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/3leaps/sensiscan/pkg/events"
	"github.com/3leaps/sensiscan/pkg/mask"
	"github.com/3leaps/sensiscan/pkg/probe"
	"github.com/3leaps/sensiscan/pkg/scan"
)

// Params configures the parts of ConfigView the coordinator itself
// consumes; macro/micro algorithm tunables are baked into the
// BinarySearcher/PrecisionScanner built in New.
type Params struct {
	ChunkSize   int
	OverlapSize int

	EnableDeduplication   bool
	DedupOverlapThreshold float64
	DedupAdjacentDistance int
}

// NewScanID generates a fresh scan correlation ID.
func NewScanID() string {
	return uuid.NewString()
}

// Result is the final outcome of one scan, the payload of scan_complete.
type Result struct {
	ScanID                  string
	SensitiveCount          int
	TotalRequests           int
	Findings                []scan.Finding
	UnknownStatusCodeCounts map[int]int
	Cancelled               bool
}

// Coordinator drives one scan at a time. Create a new Coordinator for
// each scan; it is not reusable across scans.
type Coordinator struct {
	classifier   scan.Classifier
	registry     *mask.Registry
	binary       *scan.BinarySearcher
	binaryParams scan.BinaryParams
	precision    *scan.PrecisionScanner
	verifier     *scan.Verifier
	sink         events.Sink
	params       Params

	unknownCounts func() map[int]int
	requests      func() int

	cancelled atomic.Bool
}

// New builds a Coordinator. unknownCounts, typically
// (*probe.RuleEvaluator).UnknownStatusCodeCounts, supplies the final
// scan_complete.unknown_status_code_counts payload; it may be nil.
func New(classifier scan.Classifier, registry *mask.Registry, binaryParams scan.BinaryParams, precisionParams scan.PrecisionParams, sink events.Sink, params Params, unknownCounts func() map[int]int) *Coordinator {
	if params.ChunkSize <= 0 {
		params.ChunkSize = 30000
	}
	if unknownCounts == nil {
		unknownCounts = func() map[int]int { return nil }
	}

	// total_requests must include every retry attempt, which only the
	// probe client itself can see; fall back to counting Classify calls
	// for classifiers (test fakes) that don't track network round-trips.
	requestCount := &atomic.Int64{}
	requests := func() int { return int(requestCount.Load()) }
	if rc, ok := classifier.(interface{ Requests() int }); ok {
		requests = rc.Requests
	}

	c := &Coordinator{
		classifier:    countingClassifier{inner: classifier, count: requestCount},
		registry:      registry,
		binaryParams:  binaryParams,
		sink:          sink,
		params:        params,
		unknownCounts: unknownCounts,
		requests:      requests,
	}

	c.precision = scan.NewPrecisionScanner(c.classifier, registry, precisionParams, c.warn)
	c.binary = scan.NewBinarySearcher(c.classifier, binaryParams, c.precision.Scan, c.warn)
	c.verifier = scan.NewVerifier(c.classifier)

	return c
}

// Cancel requests cooperative cancellation: no new chunk probes are
// launched after the call, but in-flight ones run to completion.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)
}

func (c *Coordinator) warn(message string) {
	_ = c.sink.WriteWarning(context.Background(), events.WarningPayload{Message: message})
}

// Run scans text and returns the final Result. It blocks until every
// chunk has been processed (or cancellation was requested) and, unless
// cancelled, until verification completes.
//
// scanID correlates this run's events; callers that also construct the
// Sink (e.g. events.NewJSONLSink) must use the same ID there so every
// record carries it. NewScanID generates one.
func (c *Coordinator) Run(ctx context.Context, scanID string, text string) (*Result, error) {
	// A configuration that lets recursion stop shrinking is refused
	// outright: no scan_start, no partial results.
	if err := c.binaryParams.Validate(); err != nil {
		_ = c.sink.WriteError(ctx, events.ErrorPayload{Message: err.Error()})
		return nil, err
	}

	total := len(text)

	if err := c.sink.WriteScanStart(ctx, events.ScanStartPayload{TotalLength: total}); err != nil {
		return nil, err
	}

	if total == 0 {
		return c.finish(ctx, scanID, nil, false, text)
	}

	chunks := chunkText(text, c.params.ChunkSize, c.params.OverlapSize)

	// mu guards candidates, scanned, and the ordering of progress
	// emissions: holding it across the sink write keeps successive
	// progress events monotone even when chunks finish out of order.
	var mu sync.Mutex
	var candidates []scan.Candidate
	scanned := 0

	var wg sync.WaitGroup
	for _, ch := range chunks {
		if c.cancelled.Load() || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(ch textChunk) {
			defer wg.Done()

			if c.cancelled.Load() || ctx.Err() != nil {
				return
			}

			outcome, err := c.classifier.Classify(ctx, ch.text)
			if err != nil {
				_ = c.sink.WriteError(ctx, events.ErrorPayload{Message: err.Error()})
				c.cancelled.Store(true)
				return
			}

			if outcome == probe.BLOCKED {
				_ = c.sink.WriteLog(ctx, events.LogPayload{Level: events.LogInfo, Message: fmt.Sprintf("chunk at offset %d blocked, narrowing", ch.start)})
				found, err := c.binary.Search(ctx, scan.Fragment{Text: ch.text, OrigStart: ch.start}, 0)
				if err != nil {
					_ = c.sink.WriteError(ctx, events.ErrorPayload{Message: err.Error()})
					c.cancelled.Store(true)
					return
				}
				mu.Lock()
				candidates = append(candidates, found...)
				mu.Unlock()
			}

			mu.Lock()
			scanned += ch.fresh
			results := partialResults(candidates)
			_ = c.sink.WriteProgress(ctx, events.ProgressPayload{
				Scanned:        scanned,
				Total:          total,
				SensitiveCount: len(results),
				Results:        results,
			})
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	cancelled := c.cancelled.Load()
	return c.finish(ctx, scanID, candidates, cancelled, text)
}

// partialResults builds the additive-merge snapshot carried by progress
// events; the later scan_complete is the authoritative replace.
func partialResults(candidates []scan.Candidate) map[string][]scan.Range {
	out := make(map[string][]scan.Range)
	for _, c := range candidates {
		out[c.Text] = append(out[c.Text], scan.Range{Start: c.Start, End: c.End})
	}
	return out
}

// finish deduplicates, verifies (unless the scan was cancelled), and
// emits scan_complete.
func (c *Coordinator) finish(ctx context.Context, scanID string, candidates []scan.Candidate, cancelled bool, original string) (*Result, error) {
	var findings []scan.Finding

	if !cancelled {
		deduped := candidates
		if c.params.EnableDeduplication {
			deduped = dedupe(candidates, c.params.DedupOverlapThreshold, c.params.DedupAdjacentDistance)
		}

		if len(deduped) > 0 {
			_ = c.sink.WriteLog(ctx, events.LogPayload{Level: events.LogInfo, Message: fmt.Sprintf("verifying %d candidates", len(deduped))})
		}

		verified, err := c.verifier.Verify(ctx, deduped, original)
		if err != nil {
			// Verification failed mid-flight: surface the unverified
			// candidates rather than losing everything found so far.
			_ = c.sink.WriteError(ctx, events.ErrorPayload{Message: err.Error()})
			findings = candidatesToFindings(deduped)
			cancelled = true
		} else {
			findings = verified
		}
	} else {
		findings = candidatesToFindings(candidates)
	}

	result := &Result{
		ScanID:                  scanID,
		SensitiveCount:          len(findings),
		TotalRequests:           c.requests(),
		Findings:                findings,
		UnknownStatusCodeCounts: c.unknownCounts(),
		Cancelled:               cancelled,
	}

	evidence := make(map[string]events.EvidencePayload, len(findings))
	results := make(map[string][]scan.Range, len(findings))
	for _, f := range findings {
		results[f.Keyword] = f.Locations
		evidence[f.Keyword] = events.EvidencePayload{Type: f.Evidence.Kind, Value: f.Evidence.Value, Context: f.Evidence.Context}
	}

	// scan_complete must never be dropped; ignore the sink error only
	// insofar as it cannot change the Result already computed.
	_ = c.sink.WriteScanComplete(context.Background(), events.ScanCompletePayload{
		SensitiveCount:          result.SensitiveCount,
		TotalRequests:           result.TotalRequests,
		Results:                 results,
		UnknownStatusCodeCounts: result.UnknownStatusCodeCounts,
		SensitiveWordEvidence:   evidence,
		Cancelled:               result.Cancelled,
	})

	return result, nil
}

// candidatesToFindings degrades raw (unverified) candidates into
// Findings for the cancelled/partial-result path, one location per
// candidate rather than a full recount.
func candidatesToFindings(candidates []scan.Candidate) []scan.Finding {
	byText := make(map[string]*scan.Finding)
	var order []string
	for _, c := range candidates {
		f, ok := byText[c.Text]
		if !ok {
			f = &scan.Finding{Keyword: c.Text, Evidence: c.Evidence}
			byText[c.Text] = f
			order = append(order, c.Text)
		}
		f.Locations = append(f.Locations, scan.Range{Start: c.Start, End: c.End})
	}
	out := make([]scan.Finding, 0, len(order))
	for _, text := range order {
		out = append(out, *byText[text])
	}
	return out
}

// textChunk is one consecutive slice of the original input. fresh is
// how many of its characters are not already covered by the previous
// chunk's overlap; summing fresh over all chunks gives exactly the
// input length, which keeps progress accounting bounded by total.
type textChunk struct {
	text  string
	start int
	fresh int
}

// chunkText splits text into consecutive chunks of at most chunkSize
// characters, each overlapping the next by overlapSize characters. A
// single chunk is returned when text already fits.
func chunkText(text string, chunkSize, overlapSize int) []textChunk {
	if len(text) <= chunkSize {
		return []textChunk{{text: text, start: 0, fresh: len(text)}}
	}

	step := chunkSize - overlapSize
	if step < 1 {
		step = 1
	}

	var chunks []textChunk
	start, prevEnd := 0, 0
	for start < len(text) {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, textChunk{text: text[start:end], start: start, fresh: end - prevEnd})
		if end == len(text) {
			break
		}
		prevEnd = end
		start += step
	}
	return chunks
}

// dedupe merges candidates whose overlap_ratio meets overlapThreshold or
// whose edge distance is within adjacentDistance, preferring the shorter
// text. Applied as repeated passes over the start-sorted list until no
// further merge occurs.
func dedupe(candidates []scan.Candidate, overlapThreshold float64, adjacentDistance int) []scan.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	cur := append([]scan.Candidate(nil), candidates...)
	sort.SliceStable(cur, func(i, j int) bool { return cur[i].Start < cur[j].Start })

	for {
		merged, changed := mergePass(cur, overlapThreshold, adjacentDistance)
		cur = merged
		if !changed {
			return cur
		}
	}
}

func mergePass(sorted []scan.Candidate, overlapThreshold float64, adjacentDistance int) ([]scan.Candidate, bool) {
	var out []scan.Candidate
	changed := false

	i := 0
	for i < len(sorted) {
		cur := sorted[i]
		if i+1 < len(sorted) && shouldMerge(cur, sorted[i+1], overlapThreshold, adjacentDistance) {
			out = append(out, preferShorter(cur, sorted[i+1]))
			i += 2
			changed = true
			continue
		}
		out = append(out, cur)
		i++
	}
	return out, changed
}

func shouldMerge(a, b scan.Candidate, overlapThreshold float64, adjacentDistance int) bool {
	overlapLen := min(a.End, b.End) - max(a.Start, b.Start)

	// Overlapping pairs merge on ratio alone. The edge-distance rule is
	// reserved for disjoint candidates: an overlapping pair always has a
	// non-positive gap, so letting it fall through here would merge two
	// distinct keywords that merely brush edges.
	if overlapLen > 0 {
		shorter := a.End - a.Start
		if bLen := b.End - b.Start; bLen < shorter {
			shorter = bLen
		}
		return shorter > 0 && float64(overlapLen)/float64(shorter) >= overlapThreshold
	}

	return -overlapLen <= adjacentDistance
}

func preferShorter(a, b scan.Candidate) scan.Candidate {
	if (a.End - a.Start) <= (b.End - b.Start) {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// countingClassifier counts every Classify call so Coordinator can
// report total_requests in scan_complete when the underlying classifier
// does not track its own network attempts.
type countingClassifier struct {
	inner scan.Classifier
	count *atomic.Int64
}

func (c countingClassifier) Classify(ctx context.Context, text string) (probe.Outcome, error) {
	c.count.Add(1)
	return c.inner.Classify(ctx, text)
}

// ClassifyWithEvidence keeps the inner classifier's evidence reporting
// visible through the wrapper so the micro phase can attach the rule
// that matched to each candidate.
func (c countingClassifier) ClassifyWithEvidence(ctx context.Context, text string) (probe.Outcome, probe.Evidence, error) {
	c.count.Add(1)
	if ec, ok := c.inner.(scan.EvidenceClassifier); ok {
		return ec.ClassifyWithEvidence(ctx, text)
	}
	o, err := c.inner.Classify(ctx, text)
	return o, probe.Evidence{}, err
}
