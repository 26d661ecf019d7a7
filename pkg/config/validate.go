package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single out-of-bounds or malformed field.
type ValidationError struct {
	// Path names the offending field, e.g. "scan.switch_threshold".
	Path string

	// Message describes the validation failure.
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("config validation failed with %d errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// bound describes an inclusive [min,max] range check for an int field.
type bound struct {
	path     string
	value    int
	min, max int
}

// fbound is bound for a float64 field.
type fbound struct {
	path     string
	value    float64
	min, max float64
}

// Validate checks every ScanConfig field against its configured bounds.
// Call after ApplyDefaults. This is a deliberate plain-Go bounds check,
// not schema-driven: ConfigView has a small, fixed, flat field set and a
// JSON Schema compiler is unjustified machinery for it (see DESIGN.md).
func Validate(c *Config) error {
	var errs ValidationErrors

	if strings.TrimSpace(c.Probe.Endpoint) == "" {
		errs = append(errs, ValidationError{Path: "probe.endpoint", Message: "must not be empty"})
	}

	overlapSize := intOr(c.Scan.OverlapSize, DefaultOverlapSize)

	ibounds := []bound{
		{"scan.concurrency", c.Scan.Concurrency, 1, 50},
		{"scan.timeout_seconds", c.Scan.TimeoutSeconds, 1, 120},
		{"scan.max_retries", c.Scan.MaxRetries, 1, 10},
		{"scan.chunk_size", c.Scan.ChunkSize, 100, 1_000_000},
		{"scan.overlap_size", overlapSize, 0, 1000},
		{"scan.min_granularity", c.Scan.MinGranularity, 1, 10},
		{"scan.switch_threshold", c.Scan.SwitchThreshold, 20, 100},
		{"scan.max_recursion_depth", c.Scan.MaxRecursionDepth, 1, 100},
		{"scan.dedup_adjacent_distance", intOr(c.Scan.DedupAdjacentDistance, DefaultDedupAdjacentDistance), 0, 1 << 30},
	}
	for _, b := range ibounds {
		if b.value < b.min || b.value > b.max {
			errs = append(errs, ValidationError{
				Path:    b.path,
				Message: fmt.Sprintf("%d out of range [%d,%d]", b.value, b.min, b.max),
			})
		}
	}

	fbounds := []fbound{
		{"scan.middle_chunk_overlap_factor", c.Scan.MiddleChunkOverlapFactor, 0.5, 2.0},
		{"scan.dedup_overlap_threshold", floatOr(c.Scan.DedupOverlapThreshold, DefaultDedupOverlapThreshold), 0, 1},
		{"scan.jitter", floatOr(c.Scan.Jitter, DefaultJitter), 0, 1},
	}
	for _, b := range fbounds {
		if b.value < b.min || b.value > b.max {
			errs = append(errs, ValidationError{
				Path:    b.path,
				Message: fmt.Sprintf("%g out of range [%g,%g]", b.value, b.min, b.max),
			})
		}
	}

	// Recursion-shrink invariant: must hold at config time, not be
	// discovered mid-scan.
	if c.Scan.SwitchThreshold <= 2*overlapSize {
		errs = append(errs, ValidationError{
			Path:    "scan.switch_threshold",
			Message: fmt.Sprintf("must be > 2*overlap_size (%d <= 2*%d)", c.Scan.SwitchThreshold, overlapSize),
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
