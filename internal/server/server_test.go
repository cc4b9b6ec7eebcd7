package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Onesoul0606/WhisperSTT/internal/config"
	"github.com/Onesoul0606/WhisperSTT/internal/engine"
	"github.com/Onesoul0606/WhisperSTT/internal/stream"
	"github.com/Onesoul0606/WhisperSTT/internal/transcript"
)

type stubEngine struct{}

func (stubEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, prompt string) (*engine.Result, error) {
	return &engine.Result{Text: "stub"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.Endpoint = "http://localhost:8000/transcribe"
	return cfg
}

func TestStreamConfigMapping(t *testing.T) {
	cfg := testAppConfig()
	cfg.Audio.SampleRate = 8000
	cfg.Reconcile.AgreementN = 3
	cfg.Commit.PendingTimeout = 12.0
	cfg.Engine.Serialize = false

	sc := streamConfig(cfg)

	if sc.SampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", sc.SampleRate)
	}
	if sc.AgreementN != 3 {
		t.Errorf("Expected agreement window 3, got %d", sc.AgreementN)
	}
	if sc.Timers.PendingTimeout != 12*time.Second {
		t.Errorf("Expected 12s pending timeout, got %v", sc.Timers.PendingTimeout)
	}
	if sc.SerializeEngine {
		t.Errorf("Expected engine serialization disabled")
	}
	if sc.Timers.TempFlush != cfg.Commit.TempSilence {
		t.Errorf("Expected temp flush %f, got %f", cfg.Commit.TempSilence, sc.Timers.TempFlush)
	}
}

func TestEventToMessage(t *testing.T) {
	tests := []struct {
		name     string
		event    stream.Event
		expected transcriptMessage
	}{
		{
			name:     "temporary",
			event:    stream.Temporary{Text: "draft", Confidence: 0.8},
			expected: transcriptMessage{Type: "temporary", Text: "draft", Confidence: 0.8},
		},
		{
			name:  "confirmed with tokens",
			event: stream.Confirmed{Text: "hello", Tokens: []transcript.Token{{Start: 0, End: 1, Text: "hello"}}},
			expected: transcriptMessage{
				Type:   "confirmed",
				Text:   "hello",
				Tokens: []tokenMessage{{Start: 0, End: 1, Text: "hello"}},
			},
		},
		{
			name:     "final",
			event:    stream.Final{},
			expected: transcriptMessage{Type: "final"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventToMessage(tt.event)
			if got.Type != tt.expected.Type || got.Text != tt.expected.Text || got.Confidence != tt.expected.Confidence {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
			if len(got.Tokens) != len(tt.expected.Tokens) {
				t.Errorf("Expected %d tokens, got %d", len(tt.expected.Tokens), len(got.Tokens))
			}
		})
	}
}

func newTestHTTPServer(t *testing.T) *HTTPServer {
	t.Helper()
	cfg := testAppConfig()
	ws := NewWSServer(cfg, testLogger(), stubEngine{}, nil)
	return NewHTTPServer(cfg.HTTP, testLogger(), cfg, ws, nil)
}

func TestHandleHealth(t *testing.T) {
	h := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestHandleHealthMethodNotAllowed(t *testing.T) {
	h := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestHandleSessionsEmpty(t *testing.T) {
	h := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body["total_sessions"] != float64(0) {
		t.Errorf("Expected 0 sessions, got %v", body["total_sessions"])
	}
}

func TestHandleSessionDetailNotFound(t *testing.T) {
	h := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/no-such-session", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestHandleConfigOmitsAPIKey(t *testing.T) {
	h := newTestHTTPServer(t)
	h.config.Engine.APIKey = "secret"

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}

	engineSection, ok := body["engine"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected engine section in config response")
	}
	if _, leaked := engineSection["api_key"]; leaked {
		t.Errorf("API key leaked in config response")
	}
	if engineSection["endpoint"] != h.config.Engine.Endpoint {
		t.Errorf("Expected endpoint in config response")
	}
}

func TestHandleRoot(t *testing.T) {
	h := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec = httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rec.Code)
	}
}
