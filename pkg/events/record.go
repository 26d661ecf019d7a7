// Package events provides the outbound event stream between the scan
// core and an external progress consumer: scan_start, progress, log,
// warning, error, unknown_status_code, and scan_complete records.
//
// Output is structured as typed record envelopes, one per line of JSONL,
// so each line can be parsed independently without buffering the whole
// stream.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/sensiscan/pkg/scan"
)

// Record type constants, following the pattern sensiscan.<kind>.v<version>.
const (
	TypeScanStart         = "sensiscan.scan_start.v1"
	TypeProgress          = "sensiscan.progress.v1"
	TypeLog               = "sensiscan.log.v1"
	TypeWarning           = "sensiscan.warning.v1"
	TypeError             = "sensiscan.error.v1"
	TypeUnknownStatusCode = "sensiscan.unknown_status_code.v1"
	TypeScanComplete      = "sensiscan.scan_complete.v1"
)

// Record is the envelope for every emitted event.
type Record struct {
	Type   string          `json:"type"`
	TS     time.Time       `json:"ts"`
	ScanID string          `json:"scan_id"`
	Data   json.RawMessage `json:"data"`
}

// ScanStartPayload accompanies TypeScanStart.
type ScanStartPayload struct {
	TotalLength int `json:"total_length"`
}

// ProgressPayload accompanies TypeProgress. Results is additive-merge
// across successive progress events.
type ProgressPayload struct {
	Scanned        int                    `json:"scanned"`
	Total          int                    `json:"total"`
	SensitiveCount int                    `json:"sensitive_count"`
	Results        map[string][]scan.Range `json:"results"`
}

// LogLevel enumerates LogPayload.Level values.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogPayload accompanies TypeLog. Log events are best-effort and may be
// dropped under backpressure.
type LogPayload struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// WarningPayload accompanies TypeWarning.
type WarningPayload struct {
	Message string `json:"message"`
}

// ErrorPayload accompanies TypeError.
type ErrorPayload struct {
	Message string `json:"message"`
}

// UnknownStatusCodePayload accompanies TypeUnknownStatusCode.
type UnknownStatusCodePayload struct {
	StatusCode      int    `json:"status_code"`
	ResponseSnippet string `json:"response_snippet"`
}

// EvidencePayload is the wire shape of probe.Evidence: Kind is renamed
// Type to match the external event schema.
type EvidencePayload struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Context string `json:"context,omitempty"`
}

// ScanCompletePayload accompanies TypeScanComplete. Results here is
// authoritative replace, not additive-merge.
type ScanCompletePayload struct {
	SensitiveCount          int                        `json:"sensitive_count"`
	TotalRequests           int                        `json:"total_requests"`
	Results                 map[string][]scan.Range    `json:"results"`
	UnknownStatusCodeCounts map[int]int                `json:"unknown_status_code_counts"`
	SensitiveWordEvidence   map[string]EvidencePayload `json:"sensitive_word_evidence"`
	Cancelled               bool                       `json:"cancelled,omitempty"`
}

// ErrSinkClosed is returned when emitting to a closed Sink.
var ErrSinkClosed = errors.New("events: sink is closed")
