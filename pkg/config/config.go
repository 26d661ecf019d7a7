// Package config provides loading, defaulting, and validation of the
// immutable ConfigView snapshot taken at the start of every scan.
//
// A config file is YAML or JSON and configures every tunable of the
// scanning engine: the upstream probe endpoint, the macro/micro/dedup
// algorithm parameters, and retry/backoff behavior. Nothing in ConfigView
// changes once a scan has started; a new scan takes a fresh snapshot.
//
// Example config (YAML):
//
//	probe:
//	  endpoint: https://gateway.example.com/v1
//	  api_key: sk-...
//	  model: gpt-4
//	scan:
//	  concurrency: 15
//	  switch_threshold: 35
//	  overlap_size: 12
package config

// Config is the on-disk (or in-memory) representation of a scan
// configuration, before defaults are applied and bounds are validated.
type Config struct {
	// Schema is an optional reference for editor support, carried through
	// but otherwise unused.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	Probe ProbeConfig `json:"probe" yaml:"probe"`
	Scan  ScanConfig  `json:"scan,omitempty" yaml:"scan,omitempty"`
	Rules RulesConfig `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// ProbeConfig configures the upstream chat-completion gateway ProbeClient
// submits classify() requests against.
type ProbeConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`

	// RateLimitPerSec optionally paces outgoing probes client-side, on
	// top of the concurrency semaphore. 0 disables pacing.
	RateLimitPerSec float64 `json:"rate_limit_per_sec,omitempty" yaml:"rate_limit_per_sec,omitempty"`
}

// ScanConfig tunes the macro/micro/dedup scanning algorithms.
//
// Fields whose valid range includes the Go zero value (overlap_size,
// dedup_overlap_threshold, dedup_adjacent_distance, jitter, and the
// enable_* toggles) are pointers so an explicit 0/false in the file is
// distinguishable from the key being absent; ApplyDefaults only fills
// in the latter.
type ScanConfig struct {
	Concurrency    int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MaxRetries     int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	ChunkSize      int  `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	OverlapSize    *int `json:"overlap_size,omitempty" yaml:"overlap_size,omitempty"`
	MinGranularity int  `json:"min_granularity,omitempty" yaml:"min_granularity,omitempty"`

	SwitchThreshold   int `json:"switch_threshold,omitempty" yaml:"switch_threshold,omitempty"`
	MaxRecursionDepth int `json:"max_recursion_depth,omitempty" yaml:"max_recursion_depth,omitempty"`

	EnableTripleProbe        *bool   `json:"enable_triple_probe,omitempty" yaml:"enable_triple_probe,omitempty"`
	EnableMiddleChunkProbe   *bool   `json:"enable_middle_chunk_probe,omitempty" yaml:"enable_middle_chunk_probe,omitempty"`
	MiddleChunkOverlapFactor float64 `json:"middle_chunk_overlap_factor,omitempty" yaml:"middle_chunk_overlap_factor,omitempty"`

	EnableDeduplication   *bool    `json:"enable_deduplication,omitempty" yaml:"enable_deduplication,omitempty"`
	DedupOverlapThreshold *float64 `json:"dedup_overlap_threshold,omitempty" yaml:"dedup_overlap_threshold,omitempty"`
	DedupAdjacentDistance *int     `json:"dedup_adjacent_distance,omitempty" yaml:"dedup_adjacent_distance,omitempty"`

	Jitter *float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
}

// RulesConfig optionally overrides probe.DefaultRuleSet. Any unset slice
// falls back to the built-in default for that field.
type RulesConfig struct {
	BlockStatusCodes []int    `json:"block_status_codes,omitempty" yaml:"block_status_codes,omitempty"`
	RetryStatusCodes []int    `json:"retry_status_codes,omitempty" yaml:"retry_status_codes,omitempty"`
	BlockKeywords    []string `json:"block_keywords,omitempty" yaml:"block_keywords,omitempty"`
}

// Defaults for every ScanConfig field.
const (
	DefaultConcurrency    = 15
	DefaultTimeoutSeconds = 30
	DefaultMaxRetries     = 3

	DefaultChunkSize      = 30000
	DefaultOverlapSize    = 12
	DefaultMinGranularity = 1

	DefaultSwitchThreshold   = 35
	DefaultMaxRecursionDepth = 30

	DefaultEnableTripleProbe        = true
	DefaultEnableMiddleChunkProbe   = true
	DefaultMiddleChunkOverlapFactor = 1.0

	DefaultEnableDeduplication   = true
	DefaultDedupOverlapThreshold = 0.5
	DefaultDedupAdjacentDistance = 30

	DefaultJitter = 0.5
)

// ApplyDefaults fills in every unset ScanConfig field with its default
// value. Call after loading and before Validate.
func (c *Config) ApplyDefaults() {
	s := &c.Scan
	if s.Concurrency == 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.ChunkSize == 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.OverlapSize == nil {
		v := DefaultOverlapSize
		s.OverlapSize = &v
	}
	if s.MinGranularity == 0 {
		s.MinGranularity = DefaultMinGranularity
	}
	if s.SwitchThreshold == 0 {
		s.SwitchThreshold = DefaultSwitchThreshold
	}
	if s.MaxRecursionDepth == 0 {
		s.MaxRecursionDepth = DefaultMaxRecursionDepth
	}
	if s.EnableTripleProbe == nil {
		v := DefaultEnableTripleProbe
		s.EnableTripleProbe = &v
	}
	if s.EnableMiddleChunkProbe == nil {
		v := DefaultEnableMiddleChunkProbe
		s.EnableMiddleChunkProbe = &v
	}
	if s.MiddleChunkOverlapFactor == 0 {
		s.MiddleChunkOverlapFactor = DefaultMiddleChunkOverlapFactor
	}
	if s.EnableDeduplication == nil {
		v := DefaultEnableDeduplication
		s.EnableDeduplication = &v
	}
	if s.DedupOverlapThreshold == nil {
		v := DefaultDedupOverlapThreshold
		s.DedupOverlapThreshold = &v
	}
	if s.DedupAdjacentDistance == nil {
		v := DefaultDedupAdjacentDistance
		s.DedupAdjacentDistance = &v
	}
	if s.Jitter == nil {
		v := DefaultJitter
		s.Jitter = &v
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
