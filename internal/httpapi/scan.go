package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/3leaps/sensiscan/internal/observability"
	"github.com/3leaps/sensiscan/pkg/coordinator"
	"github.com/3leaps/sensiscan/pkg/events"
	"github.com/3leaps/sensiscan/pkg/mask"
	"github.com/3leaps/sensiscan/pkg/probe"

	"github.com/go-chi/chi/v5"
)

type startScanRequest struct {
	Text string `json:"text"`
}

// handleStartScan runs one scan to completion in the request goroutine,
// streaming the same JSONL event schema the CLI writes as chunked NDJSON.
// The handler blocks until the scan finishes or the client disconnects;
// there is no multi-client fan-out or session persistence here.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	scanID := coordinator.NewScanID()

	registry := mask.NewRegistry()
	evaluator := probe.NewRuleEvaluator(s.cfg.ToRuleSet())
	client := probe.New(s.cfg.ToProbeConfig(), registry, evaluator)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Scan-Id", scanID)
	w.WriteHeader(http.StatusOK)

	fw := &flushWriter{w: bufio.NewWriter(w), f: flusher}
	sink := events.NewJSONLSink(fw, scanID)
	defer func() {
		_ = sink.Close()
		fw.flush()
	}()

	evaluator.SetUnknownHandler(func(status int, snippet string) {
		_ = sink.WriteUnknownStatusCode(r.Context(), events.UnknownStatusCodePayload{StatusCode: status, ResponseSnippet: snippet})
	})

	c := coordinator.New(client, registry, s.cfg.ToBinaryParams(), s.cfg.ToPrecisionParams(), sink, s.cfg.ToCoordinatorParams(), evaluator.UnknownStatusCodeCounts)

	unregister := s.register(scanID, c)
	defer unregister()

	observability.CLILogger.Info("http scan started", zap.String("scan_id", scanID), zap.Int("input_length", len(req.Text)))
	if _, err := c.Run(r.Context(), scanID, req.Text); err != nil {
		observability.CLILogger.Error("http scan failed", zap.String("scan_id", scanID), zap.Error(err))
	}
}

// handleCancelScan raises the cancel signal on an in-flight scan. It
// does not wait for the scan to observe the signal; the streaming
// response on the original request carries the eventual scan_complete
// with cancelled=true.
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "id")

	c, ok := s.lookup(scanID)
	if !ok {
		http.Error(w, "unknown scan id", http.StatusNotFound)
		return
	}

	c.Cancel()
	w.WriteHeader(http.StatusAccepted)
}

// flushWriter buffers writes and flushes the underlying ResponseWriter
// after every record so NDJSON lines reach the client as they are
// produced rather than waiting for the response to close.
type flushWriter struct {
	w *bufio.Writer
	f http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err != nil {
		return n, err
	}
	fw.flush()
	return n, nil
}

func (fw *flushWriter) flush() {
	_ = fw.w.Flush()
	fw.f.Flush()
}
