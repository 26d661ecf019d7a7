package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/sensiscan/pkg/config"
	"github.com/3leaps/sensiscan/pkg/events"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Probe: config.ProbeConfig{Endpoint: "http://127.0.0.1:0", Model: "test-model"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestHealthz(t *testing.T) {
	s := NewServer(testConfig(), "1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestCancelScan_UnknownID(t *testing.T) {
	s := NewServer(testConfig(), "dev")

	req := httptest.NewRequest(http.MethodPost, "/v1/scans/does-not-exist/cancel", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartScan_EmptyTextStreamsScanComplete(t *testing.T) {
	s := NewServer(testConfig(), "dev")

	body := strings.NewReader(`{"text": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Scan-Id"))

	scanner := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	var sawComplete bool
	for scanner.Scan() {
		var rec struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		if rec.Type == events.TypeScanComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)
}

func TestStartScan_InvalidBody(t *testing.T) {
	s := NewServer(testConfig(), "dev")

	req := httptest.NewRequest(http.MethodPost, "/v1/scans", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
