package config

import (
	"time"

	"github.com/3leaps/sensiscan/pkg/coordinator"
	"github.com/3leaps/sensiscan/pkg/probe"
	"github.com/3leaps/sensiscan/pkg/scan"
)

// ToProbeConfig translates the loaded config into a probe.Config, the
// immutable snapshot ProbeClient is constructed from.
func (c *Config) ToProbeConfig() probe.Config {
	return probe.Config{
		Endpoint:        c.Probe.Endpoint,
		APIKey:          c.Probe.APIKey,
		Model:           c.Probe.Model,
		Concurrency:     c.Scan.Concurrency,
		TimeoutSeconds:  c.Scan.TimeoutSeconds,
		MaxRetries:      c.Scan.MaxRetries,
		Backoff:         probe.Backoff{Base: 2 * time.Second, Cap: 10 * time.Second, Jitter: floatOr(c.Scan.Jitter, DefaultJitter)},
		RateLimitPerSec: c.Probe.RateLimitPerSec,
	}
}

// ToRuleSet builds the RuleEvaluator ruleset, falling back to
// probe.DefaultRuleSet for any field left unset in the config.
func (c *Config) ToRuleSet() probe.RuleSet {
	def := probe.DefaultRuleSet()
	block := c.Rules.BlockStatusCodes
	retry := c.Rules.RetryStatusCodes
	keywords := c.Rules.BlockKeywords
	if len(block) == 0 && len(retry) == 0 && len(keywords) == 0 {
		return def
	}
	if len(block) == 0 {
		block = intKeys(def.BlockStatusCodes)
	}
	if len(retry) == 0 {
		retry = intKeys(def.RetryStatusCodes)
	}
	if len(keywords) == 0 {
		keywords = def.BlockKeywords
	}
	return probe.NewRuleSet(block, retry, keywords)
}

func intKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ToBinaryParams builds the macro-phase tunables.
func (c *Config) ToBinaryParams() scan.BinaryParams {
	return scan.BinaryParams{
		SwitchThreshold:          c.Scan.SwitchThreshold,
		OverlapSize:              intOr(c.Scan.OverlapSize, DefaultOverlapSize),
		MaxRecursionDepth:        c.Scan.MaxRecursionDepth,
		EnableTripleProbe:        boolOr(c.Scan.EnableTripleProbe, DefaultEnableTripleProbe),
		EnableMiddleChunkProbe:   boolOr(c.Scan.EnableMiddleChunkProbe, DefaultEnableMiddleChunkProbe),
		MiddleChunkOverlapFactor: c.Scan.MiddleChunkOverlapFactor,
	}
}

// ToPrecisionParams builds the micro-phase tunables.
func (c *Config) ToPrecisionParams() scan.PrecisionParams {
	return scan.PrecisionParams{MinGranularity: c.Scan.MinGranularity}
}

// ToCoordinatorParams builds the chunking and dedup tunables.
func (c *Config) ToCoordinatorParams() coordinator.Params {
	return coordinator.Params{
		ChunkSize:             c.Scan.ChunkSize,
		OverlapSize:           intOr(c.Scan.OverlapSize, DefaultOverlapSize),
		EnableDeduplication:   boolOr(c.Scan.EnableDeduplication, DefaultEnableDeduplication),
		DedupOverlapThreshold: floatOr(c.Scan.DedupOverlapThreshold, DefaultDedupOverlapThreshold),
		DedupAdjacentDistance: intOr(c.Scan.DedupAdjacentDistance, DefaultDedupAdjacentDistance),
	}
}
