package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming transcription
// service. A nil *Metrics is valid: all record methods become no-ops, so
// components can run without a registry in tests.
type Metrics struct {
	// Ingest metrics
	SamplesIngested prometheus.Counter
	AudioSeconds    prometheus.Counter
	BufferDuration  prometheus.Gauge

	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter
	SessionDuration  prometheus.Histogram

	// Engine call metrics
	EngineCalls        *prometheus.CounterVec
	EngineErrors       *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec

	// Reconciliation metrics
	TokensCommitted  prometheus.Counter
	ForcedCommits    *prometheus.CounterVec
	Hallucinations   prometheus.Counter
	RollbackTokens   prometheus.Counter
	DegenerateResult prometheus.Counter

	// Event metrics
	EventsEmitted *prometheus.CounterVec
	EventsDropped prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SamplesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_samples_ingested_total",
			Help: "Total number of audio samples ingested",
		}),
		AudioSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_audio_seconds_total",
			Help: "Total seconds of audio ingested",
		}),
		BufferDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stt_buffer_duration_seconds",
			Help: "Seconds of audio currently buffered",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stt_active_sessions",
			Help: "Current number of active streaming sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_sessions_started_total",
			Help: "Total number of streaming sessions started",
		}),
		SessionsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_sessions_finished_total",
			Help: "Total number of streaming sessions finished",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		EngineCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_engine_calls_total",
			Help: "Total number of engine transcription calls",
		}, []string{"cadence"}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_engine_errors_total",
			Help: "Total number of failed engine transcription calls",
		}, []string{"cadence"}),
		EngineCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_engine_call_duration_seconds",
			Help:    "Duration of engine transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"cadence"}),

		TokensCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_tokens_committed_total",
			Help: "Total number of tokens committed by agreement",
		}),
		ForcedCommits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_forced_commits_total",
			Help: "Total number of forced commits, by trigger",
		}, []string{"reason"}),
		Hallucinations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_hallucinations_detected_total",
			Help: "Total number of transcription results discarded as hallucinations",
		}),
		RollbackTokens: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_rollback_tokens_total",
			Help: "Total number of committed tokens rolled back on hallucination recovery",
		}),
		DegenerateResult: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_degenerate_results_total",
			Help: "Total number of empty or below-minimum transcription results discarded",
		}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_events_emitted_total",
			Help: "Total number of transcript events emitted, by kind",
		}, []string{"kind"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_events_dropped_total",
			Help: "Total number of transcript events dropped on a full consumer channel",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordIngest records an ingested sample block.
func (m *Metrics) RecordIngest(samples int, seconds float64) {
	if m == nil {
		return
	}
	m.SamplesIngested.Add(float64(samples))
	m.AudioSeconds.Add(seconds)
}

// SetBufferDuration sets the currently buffered audio duration.
func (m *Metrics) SetBufferDuration(seconds float64) {
	if m == nil {
		return
	}
	m.BufferDuration.Set(seconds)
}

// RecordSessionStarted increments session counters.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionFinished records a finished session and its duration.
func (m *Metrics) RecordSessionFinished(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsFinished.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordEngineCall records an engine call outcome for the given cadence.
func (m *Metrics) RecordEngineCall(cadence string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.EngineCalls.WithLabelValues(cadence).Inc()
	m.EngineCallDuration.WithLabelValues(cadence).Observe(durationSeconds)
	if err != nil {
		m.EngineErrors.WithLabelValues(cadence).Inc()
	}
}

// RecordTokensCommitted adds to the committed token counter.
func (m *Metrics) RecordTokensCommitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensCommitted.Add(float64(n))
}

// RecordForcedCommit records a forced commit with its trigger reason.
func (m *Metrics) RecordForcedCommit(reason string) {
	if m == nil {
		return
	}
	m.ForcedCommits.WithLabelValues(reason).Inc()
}

// RecordHallucination records a discarded result and any rollback size.
func (m *Metrics) RecordHallucination(rolledBack int) {
	if m == nil {
		return
	}
	m.Hallucinations.Inc()
	if rolledBack > 0 {
		m.RollbackTokens.Add(float64(rolledBack))
	}
}

// RecordDegenerateResult counts an empty or below-minimum result.
func (m *Metrics) RecordDegenerateResult() {
	if m == nil {
		return
	}
	m.DegenerateResult.Inc()
}

// RecordEvent counts an emitted transcript event.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(kind).Inc()
}

// RecordEventDropped counts an event dropped on a full consumer channel.
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// RecordHTTPRequest records an HTTP API request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
