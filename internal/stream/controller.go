package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Onesoul0606/WhisperSTT/internal/audio"
	"github.com/Onesoul0606/WhisperSTT/internal/engine"
	"github.com/Onesoul0606/WhisperSTT/internal/metrics"
	"github.com/Onesoul0606/WhisperSTT/internal/transcript"
	"github.com/Onesoul0606/WhisperSTT/internal/vad"
)

// State represents the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// promptRetention is how many seconds of committed history behind the
// buffered window are kept for prompt construction before being purged.
const promptRetention = 30.0

// eventChannelSize bounds the consumer event channel. The capture path
// must never block on a slow consumer, so emits into a full channel drop
// the event instead of waiting.
const eventChannelSize = 256

// Config contains streaming controller configuration.
type Config struct {
	SampleRate        int
	MaxBufferDuration float64 // seconds of audio retained

	VADThreshold float64
	VADDebounce  float64 // seconds

	FastMinChunk      float64 // seconds of audio before a fast call
	FastMinInterval   time.Duration
	FastMinConfidence float64

	ReconcileChunk    float64 // seconds of new audio per reconciliation round
	ReconcileMaxChunk float64 // buffered-audio ceiling forcing a round
	AgreementN        int

	Timers         SilenceTimers
	RollbackTokens int

	PromptCharBudget int
	GuardMaxTokens   int
	GuardRepeats     int
	GuardDenylist    []string

	EngineTimeout   time.Duration
	SerializeEngine bool
	StopGrace       time.Duration

	// TickInterval is the cadence poll interval. Zero means 100ms.
	TickInterval time.Duration
}

// Controller orchestrates incremental transcription for one stream: it
// ingests audio, decides when to call the engine on buffer snapshots,
// reconciles successive hypotheses, and emits transcript events.
//
// All mutation of the hypothesis state is funneled through one mutex; the
// two cadences run as independent tasks, each serialized against itself by
// an in-flight guard.
type Controller struct {
	ID string

	cfg     Config
	logger  *slog.Logger
	eng     engine.Engine
	metrics *metrics.Metrics

	buffer  *audio.SampleBuffer
	gate    *vad.Gate
	hyp     *transcript.Hypothesis
	prompts *transcript.PromptBuilder
	guard   *transcript.Guard

	events chan Event
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	engineMu sync.Mutex // serializes engine calls when cfg.SerializeEngine

	fastInFlight  atomic.Bool
	reconInFlight atomic.Bool

	mu              sync.Mutex // guards everything below plus hyp and guard
	state           State
	startTime       time.Time
	lastFastCall    time.Time
	lastReconEnd    float64 // stream time covered by the last reconciliation
	pendingSince    time.Time
	lastTempFlushAt float64 // gate clock of the last silence temp flush
}

// NewController creates a controller in the Idle state.
func NewController(cfg Config, logger *slog.Logger, eng engine.Engine, m *metrics.Metrics) (*Controller, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}

	buffer, err := audio.NewSampleBuffer(cfg.SampleRate, cfg.MaxBufferDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create sample buffer: %w", err)
	}

	gate, err := vad.NewGate(cfg.VADThreshold, cfg.VADDebounce, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity gate: %w", err)
	}

	hyp, err := transcript.NewHypothesis(cfg.AgreementN)
	if err != nil {
		return nil, fmt.Errorf("failed to create hypothesis buffer: %w", err)
	}

	denylist := cfg.GuardDenylist
	if len(denylist) == 0 {
		denylist = transcript.DefaultDenylist
	}

	id := uuid.NewString()
	return &Controller{
		ID:      id,
		cfg:     cfg,
		logger:  logger.With(slog.String("session_id", id)),
		eng:     eng,
		metrics: m,
		buffer:  buffer,
		gate:    gate,
		hyp:     hyp,
		prompts: transcript.NewPromptBuilder(cfg.PromptCharBudget, denylist),
		guard:   transcript.NewGuard(cfg.GuardMaxTokens, cfg.GuardRepeats, denylist),
		events:  make(chan Event, eventChannelSize),
		done:    make(chan struct{}),
	}, nil
}

// Start transitions Idle -> Running and launches the cadence loops. A
// stopped controller can be started again; transcript state from the
// previous session is discarded so the new stream begins at time zero.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("cannot start controller in state %s", c.state)
	}
	c.state = StateRunning
	c.startTime = time.Now()
	c.hyp.Reset()
	c.guard.Reset()
	c.pendingSince = time.Time{}
	c.lastFastCall = time.Time{}
	c.lastReconEnd = 0
	c.lastTempFlushAt = 0
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(2)
	go c.cadenceLoop("fast", c.maybeFastRound)
	go c.cadenceLoop("reconcile", c.maybeReconcileRound)

	c.metrics.RecordSessionStarted()
	c.logger.Info("Streaming session started",
		slog.Int("sample_rate", c.cfg.SampleRate),
		slog.Float64("max_buffer_duration", c.cfg.MaxBufferDuration),
		slog.Int("agreement_n", c.cfg.AgreementN),
	)
	return nil
}

// Events returns the transcript event stream. The channel is never closed;
// consumers should also select on Done.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Done returns a channel closed once the session begun by the most recent
// Start has returned to Idle. Each Start replaces the channel, so callers
// must grab it after Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AppendAudio is the data-plane entry point. It never blocks on
// transcription: samples go into the buffer, the activity gate classifies
// them, and the silence/staleness forcing conditions are evaluated.
func (c *Controller) AppendAudio(samples []float32, sampleRate int) error {
	if sampleRate != c.cfg.SampleRate {
		return fmt.Errorf("sample rate mismatch: stream is %d Hz, got %d Hz", c.cfg.SampleRate, sampleRate)
	}

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return fmt.Errorf("controller is %s, not running", c.state)
	}
	c.mu.Unlock()

	advanced := c.buffer.Append(samples)
	if advanced > 0 {
		c.mu.Lock()
		c.hyp.PurgeCommittedBefore(c.buffer.TimeOffset() - promptRetention)
		c.mu.Unlock()
	}

	c.gate.Classify(samples)

	c.metrics.RecordIngest(len(samples), float64(len(samples))/float64(c.cfg.SampleRate))
	c.metrics.SetBufferDuration(c.buffer.Duration())

	c.checkForcedCommits()
	return nil
}

// Stop transitions Running -> Stopping -> Idle: stops issuing engine calls,
// waits up to the grace period for in-flight calls, flushes any remaining
// pending tokens as a final confirmed result, and releases the buffers.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	started := c.startTime
	c.mu.Unlock()

	c.logger.Info("Stopping streaming session")
	c.cancel()

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(c.cfg.StopGrace):
		c.logger.Warn("Grace period expired, detaching in-flight engine calls",
			slog.Duration("grace", c.cfg.StopGrace),
		)
	}

	c.mu.Lock()
	flushed := c.hyp.ForceCommit()
	c.pendingSince = time.Time{}
	c.mu.Unlock()

	if len(flushed) > 0 {
		c.metrics.RecordForcedCommit("stop")
		c.metrics.RecordTokensCommitted(len(flushed))
		c.emit(Confirmed{Text: transcript.JoinTokens(flushed), Tokens: flushed})
	}
	c.emit(Final{})

	c.buffer.Reset()
	c.gate.Reset()

	c.mu.Lock()
	c.state = StateIdle
	done := c.done
	c.mu.Unlock()
	close(done)

	c.metrics.RecordSessionFinished(time.Since(started).Seconds())
	c.logger.Info("Streaming session stopped",
		slog.Duration("duration", time.Since(started)),
	)
}

// cadenceLoop polls one cadence until the controller stops.
func (c *Controller) cadenceLoop(name string, round func()) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.logger.Debug("Cadence loop started", slog.String("cadence", name))

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Cadence loop stopping", slog.String("cadence", name))
			return
		case <-ticker.C:
			round()
		}
	}
}

// maybeFastRound fires the low-latency cadence when enough audio is
// buffered and the minimum inter-call interval has elapsed. A round still
// outstanding causes a skip, never a queue.
func (c *Controller) maybeFastRound() {
	if c.buffer.Duration() < c.cfg.FastMinChunk {
		return
	}

	c.mu.Lock()
	due := time.Since(c.lastFastCall) >= c.cfg.FastMinInterval
	c.mu.Unlock()
	if !due {
		return
	}

	if !c.fastInFlight.CompareAndSwap(false, true) {
		return
	}
	defer c.fastInFlight.Store(false)

	c.fastRound()
}

// fastRound calls the engine without a prompt and emits a Temporary event
// gated by a lightweight confidence heuristic. Nothing is committed.
func (c *Controller) fastRound() {
	snapshot, _ := c.buffer.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	seconds := float64(len(snapshot)) / float64(c.cfg.SampleRate)

	c.mu.Lock()
	c.lastFastCall = time.Now()
	c.mu.Unlock()

	start := time.Now()
	result, err := c.transcribe(snapshot, "")
	c.metrics.RecordEngineCall("fast", time.Since(start).Seconds(), err)
	if err != nil {
		c.logger.Debug("Fast transcription skipped",
			slog.String("error", err.Error()),
		)
		return
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		c.metrics.RecordDegenerateResult()
		return
	}

	confidence := temporaryConfidence(text, seconds)
	if confidence < c.cfg.FastMinConfidence {
		return
	}

	c.mu.Lock()
	if c.ctx.Err() != nil || c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.emitLocked(Temporary{Text: text, Confidence: confidence})
	c.mu.Unlock()
}

// maybeReconcileRound fires the agreement cadence when enough new audio has
// accumulated since the last round, or when the buffered window hits the
// max-chunk ceiling that bounds hallucination risk.
func (c *Controller) maybeReconcileRound() {
	c.mu.Lock()
	covered := c.lastReconEnd
	c.mu.Unlock()

	fresh := c.buffer.EndTime() - covered
	if fresh < c.cfg.ReconcileChunk && c.buffer.Duration() < c.cfg.ReconcileMaxChunk {
		return
	}

	if !c.reconInFlight.CompareAndSwap(false, true) {
		return
	}
	defer c.reconInFlight.Store(false)

	c.reconcileRound()
}

// reconcileRound calls the engine with the context prompt, screens the
// result, and feeds it through hypothesis insert/flush to produce
// Confirmed events.
func (c *Controller) reconcileRound() {
	snapshot, offset := c.buffer.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	seconds := float64(len(snapshot)) / float64(c.cfg.SampleRate)

	c.mu.Lock()
	prompt := c.prompts.Build(c.hyp.Committed())
	c.mu.Unlock()

	start := time.Now()
	result, err := c.transcribe(snapshot, prompt)
	c.metrics.RecordEngineCall("reconcile", time.Since(start).Seconds(), err)
	if err != nil {
		// No result this round: keep state, next tick retries naturally.
		c.logger.Warn("Reconciliation transcription failed",
			slog.String("error", err.Error()),
			slog.Float64("chunk_seconds", seconds),
		)
		return
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		c.metrics.RecordDegenerateResult()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil || c.state != StateRunning {
		// Detached during stop; discard the result.
		return
	}

	c.lastReconEnd = offset + seconds

	if verdict := c.guard.Check(text); verdict.Hallucination {
		rolled := c.hyp.Rollback(c.cfg.RollbackTokens)
		c.hyp.ClearPending()
		c.guard.Reset()
		c.pendingSince = time.Time{}
		c.metrics.RecordHallucination(rolled)
		c.logger.Warn("Hallucination detected, result discarded",
			slog.String("reason", verdict.Reason),
			slog.Int("rolled_back_tokens", rolled),
			slog.String("text", text),
		)
		return
	}

	var tokens []transcript.Token
	if len(result.Segments) > 0 {
		tokens = transcript.FromSegments(toTranscriptSegments(result.Segments), offset)
	} else {
		tokens = transcript.Interpolate(text, offset, offset+seconds)
	}

	c.hyp.Insert(tokens)
	committed := c.hyp.Flush()
	c.trackPendingLocked()

	if len(committed) == 0 {
		return
	}

	c.metrics.RecordTokensCommitted(len(committed))
	c.emitLocked(Confirmed{Text: transcript.JoinTokens(committed), Tokens: committed})

	// Audio behind the committed frontier is no longer needed for
	// reconciliation; the overlap dedup absorbs boundary re-emission.
	c.buffer.TrimBefore(c.hyp.LastCommittedTime())
	c.hyp.PurgeCommittedBefore(c.buffer.TimeOffset() - promptRetention)
}

// checkForcedCommits evaluates the silence and staleness forcing
// conditions. Called on every audio append.
func (c *Controller) checkForcedCommits() {
	silence := c.gate.TimeSinceLastActivity()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}

	pending := c.hyp.Pending()

	// Silence is itself evidence of stability: commit everything and
	// close the utterance. A single pending token is too weak a signal
	// for finalization; the staleness ceiling handles it instead.
	if c.cfg.Timers.FinalDue(silence) && len(pending) >= 2 {
		out := c.hyp.ForceCommit()
		c.pendingSince = time.Time{}
		c.metrics.RecordForcedCommit("silence")
		c.metrics.RecordTokensCommitted(len(out))
		c.emitLocked(Confirmed{Text: transcript.JoinTokens(out), Tokens: out})
		c.emitLocked(Final{})
		c.logger.Info("Silence-forced commit",
			slog.Float64("silence_seconds", silence),
			slog.Int("tokens", len(out)),
		)
		return
	}

	// Absolute staleness ceiling, independent of voice activity.
	if len(pending) > 0 && c.cfg.Timers.PendingExpired(c.pendingSince, now) {
		out := c.hyp.ForceCommit()
		c.pendingSince = time.Time{}
		c.metrics.RecordForcedCommit("timeout")
		c.metrics.RecordTokensCommitted(len(out))
		c.emitLocked(Confirmed{Text: transcript.JoinTokens(out), Tokens: out})
		c.logger.Info("Timeout-forced commit", slog.Int("tokens", len(out)))
		return
	}

	// Short silence: surface the pending hypothesis as a revisable
	// preview without committing it.
	if c.cfg.Timers.TempDue(silence) && len(pending) > 0 &&
		c.gate.Clock()-c.lastTempFlushAt >= c.cfg.Timers.TempFlush {
		c.lastTempFlushAt = c.gate.Clock()
		c.emitLocked(Temporary{Text: transcript.JoinTokens(pending), Confidence: 0.5})
	}
}

// trackPendingLocked maintains the staleness clock for the pending
// hypothesis. Caller holds c.mu.
func (c *Controller) trackPendingLocked() {
	if len(c.hyp.Pending()) == 0 {
		c.pendingSince = time.Time{}
	} else if c.pendingSince.IsZero() {
		c.pendingSince = time.Now()
	}
}

// transcribe runs one engine call bounded by the engine timeout,
// optionally serialized behind a single mutex for engines that are not
// reentrant.
func (c *Controller) transcribe(samples []float32, prompt string) (*engine.Result, error) {
	if c.cfg.SerializeEngine {
		c.engineMu.Lock()
		defer c.engineMu.Unlock()
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.EngineTimeout)
	defer cancel()

	return c.eng.Transcribe(ctx, samples, c.cfg.SampleRate, prompt)
}

// emitLocked delivers an event without blocking the pipeline. Caller holds
// c.mu, which orders events with the commits that produced them.
func (c *Controller) emitLocked(ev Event) {
	select {
	case c.events <- ev:
		c.metrics.RecordEvent(ev.Kind().String())
	default:
		c.metrics.RecordEventDropped()
		c.logger.Warn("Event dropped on full consumer channel",
			slog.String("kind", ev.Kind().String()),
		)
	}
}

// emit delivers an event from outside the pipeline critical section.
func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(ev)
}

// Stats aggregates component statistics for the monitoring API.
type Stats struct {
	SessionID  string                     `json:"session_id"`
	State      string                     `json:"state"`
	Buffer     audio.BufferStats          `json:"buffer"`
	Gate       vad.GateStats              `json:"gate"`
	Hypothesis transcript.HypothesisStats `json:"hypothesis"`
	Guard      transcript.GuardStats      `json:"guard"`
}

// GetStats returns a snapshot of controller statistics.
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		SessionID:  c.ID,
		State:      c.state.String(),
		Buffer:     c.buffer.GetStats(),
		Gate:       c.gate.GetStats(),
		Hypothesis: c.hyp.GetStats(),
		Guard:      c.guard.GetStats(),
	}
}

// temporaryConfidence is the lightweight per-result heuristic gating
// Temporary events: plausible speech runs at roughly 0.5-4 words/second;
// results far outside that band are likely noise.
func temporaryConfidence(text string, audioSeconds float64) float64 {
	words := strings.Fields(text)
	if len(words) == 0 || audioSeconds <= 0 {
		return 0
	}

	rate := float64(len(words)) / audioSeconds
	confidence := 1.0
	switch {
	case rate > 6:
		confidence = 0.2
	case rate > 4:
		confidence = 0.6
	case rate < 0.2:
		confidence = 0.4
	}
	if len(words) == 1 {
		confidence *= 0.6
	}
	return confidence
}

// toTranscriptSegments converts engine segments to transcript segments.
func toTranscriptSegments(in []engine.Segment) []transcript.Segment {
	out := make([]transcript.Segment, len(in))
	for i, s := range in {
		out[i] = transcript.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return out
}
