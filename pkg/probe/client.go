package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Masker produces a masked view of text, replacing every known sensitive
// substring with an equal-length run of mask characters. pkg/mask.Registry
// satisfies this interface; it is named here (rather than imported) to
// keep pkg/probe free of a dependency on pkg/mask.
type Masker interface {
	Apply(text string) string
}

// Backoff controls the retry delay schedule: delay_n = min(cap, base*2^n)
// * (1 + uniform(-jitter, +jitter)).
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

// DefaultBackoff is the conventional retry schedule: base=2s, cap=10s,
// jitter=0.5.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Cap: 10 * time.Second, Jitter: 0.5}
}

func (b Backoff) delay(attempt int) time.Duration {
	raw := float64(b.Base) * math.Pow(2, float64(attempt))
	if cap := float64(b.Cap); raw > cap {
		raw = cap
	}
	jitter := 1 + (rand.Float64()*2-1)*b.Jitter
	d := time.Duration(raw * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// Config configures a Client. Zero values are replaced with a sensible
// default where one exists.
type Config struct {
	Endpoint        string // chat-completion base URL, "/chat/completions" is appended
	APIKey          string
	Model           string
	Concurrency     int
	TimeoutSeconds  int
	MaxRetries      int
	Backoff         Backoff
	RateLimitPerSec float64 // 0 disables client-side pacing
}

// Client issues classify(text) decisions against an upstream gateway,
// masking known sensitive substrings before every network call and
// retrying transient failures with backoff. Client is safe for
// concurrent use; concurrency is bounded by a counting semaphore.
type Client struct {
	http       *http.Client
	endpoint   string
	apiKey     string
	model      string
	timeout    time.Duration
	maxRetries int
	backoff    Backoff

	sem     chan struct{}
	limiter *rate.Limiter

	evaluator *RuleEvaluator
	masker    Masker

	requests atomic.Int64
}

// Requests reports how many network round-trips this client has issued,
// counting every retry attempt. Probes short-circuited by full masking
// never reach the network and are not counted.
func (c *Client) Requests() int {
	return int(c.requests.Load())
}

// FatalProbeError is returned when retries are exhausted, aborting the
// coordinator's scan.
type FatalProbeError struct {
	Attempts int
	Err      error
}

func (e *FatalProbeError) Error() string {
	return fmt.Sprintf("probe: exhausted %d attempts: %v", e.Attempts, e.Err)
}

func (e *FatalProbeError) Unwrap() error { return e.Err }

// New builds a Client. masker and evaluator must be non-nil.
func New(cfg Config, masker Masker, evaluator *RuleEvaluator) *Client {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 15
	}
	timeoutSec := cfg.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := cfg.Backoff
	if backoff.Base == 0 && backoff.Cap == 0 {
		backoff = DefaultBackoff()
	}

	c := &Client{
		http:       &http.Client{},
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    time.Duration(timeoutSec) * time.Second,
		maxRetries: maxRetries,
		backoff:    backoff,
		sem:        make(chan struct{}, concurrency),
		evaluator:  evaluator,
		masker:     masker,
	}
	if cfg.RateLimitPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1)
	}
	return c
}

// Classify issues a single classify(text) decision.
//
// The concurrency semaphore is acquired before masking and the network
// call and released on every return path. If the fully-masked text
// contains no non-mask characters, SAFE is returned without a network
// call.
func (c *Client) Classify(ctx context.Context, text string) (Outcome, error) {
	o, _, err := c.ClassifyWithEvidence(ctx, text)
	return o, err
}

// ClassifyWithEvidence is Classify plus the Evidence that produced a
// BLOCKED outcome, used by the micro phase and the verifier to report
// what matched.
func (c *Client) ClassifyWithEvidence(ctx context.Context, text string) (Outcome, Evidence, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return UNKNOWN, Evidence{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	masked := c.masker.Apply(text)
	if isAllMask(masked) {
		return SAFE, Evidence{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return UNKNOWN, Evidence{}, err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			d := c.backoff.delay(attempt - 1)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return UNKNOWN, Evidence{}, ctx.Err()
			}
		}

		result, err := c.attempt(ctx, masked)
		if err == nil && result.Outcome != RETRY {
			return result.Outcome, result.Evidence, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("gateway returned retry (status %d)", result.StatusCode)
		}
	}

	return UNKNOWN, Evidence{}, &FatalProbeError{Attempts: c.maxRetries + 1, Err: lastErr}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// attempt performs a single network round-trip and classifies the result.
// Network/timeout errors are treated the same as an RETRY outcome by the
// retry loop in Classify.
func (c *Client) attempt(ctx context.Context, maskedText string) (Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: maskedText}},
	})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.requests.Add(1)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are transient: surface as RETRY so
		// the caller's retry loop backs off and tries again, rather than
		// aborting the scan on the first dropped connection.
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{Outcome: RETRY}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	return c.evaluator.Evaluate(resp.StatusCode, string(body)), nil
}

func isAllMask(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r != '*' {
			return false
		}
	}
	return true
}
