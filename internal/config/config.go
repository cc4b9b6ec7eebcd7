package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Fast      FastConfig      `yaml:"fast"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Commit    CommitConfig    `yaml:"commit"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Guard     GuardConfig     `yaml:"guard"`
	Engine    EngineConfig    `yaml:"engine"`
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AudioConfig contains sample buffer parameters.
type AudioConfig struct {
	SampleRate        int     `yaml:"sample_rate"`
	MaxBufferDuration float64 `yaml:"max_buffer_duration"` // seconds retained for reconciliation
}

// VADConfig contains voice activity detection configuration.
type VADConfig struct {
	Threshold float64 `yaml:"threshold"` // RMS level
	Debounce  float64 `yaml:"debounce"`  // seconds a state flip must persist
}

// FastConfig tunes the low-latency temporary-result cadence.
type FastConfig struct {
	MinChunk      float64 `yaml:"min_chunk"`      // seconds of audio before a call
	MinInterval   float64 `yaml:"min_interval"`   // seconds between calls
	MinConfidence float64 `yaml:"min_confidence"` // gate on the result heuristic
}

// ReconcileConfig tunes the agreement cadence.
type ReconcileConfig struct {
	Chunk      float64 `yaml:"chunk"`       // seconds of new audio per round
	MaxChunk   float64 `yaml:"max_chunk"`   // buffered-audio ceiling forcing a round
	AgreementN int     `yaml:"agreement_n"` // consecutive agreeing passes to commit
}

// CommitConfig contains the silence and staleness deadlines.
type CommitConfig struct {
	TempSilence    float64 `yaml:"temp_silence"`    // seconds of silence before a temporary flush
	FinalSilence   float64 `yaml:"final_silence"`   // seconds of silence before a forced final commit
	PendingTimeout float64 `yaml:"pending_timeout"` // absolute ceiling on unflushed pending age
	RollbackTokens int     `yaml:"rollback_tokens"` // committed tokens revoked on hallucination
	StopGrace      float64 `yaml:"stop_grace"`      // seconds to wait for in-flight calls on stop
}

// PromptConfig contains context prompt construction parameters.
type PromptConfig struct {
	CharBudget int `yaml:"char_budget"`
}

// GuardConfig contains hallucination detection parameters.
type GuardConfig struct {
	MaxTokens       int      `yaml:"max_tokens"`
	RepeatThreshold int      `yaml:"repeat_threshold"`
	Denylist        []string `yaml:"denylist"`
}

// EngineConfig contains transcription engine client configuration.
type EngineConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Timeout       float64 `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	Serialize     bool    `yaml:"serialize"` // one engine call at a time
	Language      string  `yaml:"language"`
}

// ServerConfig contains websocket ingest server configuration.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// HTTPConfig contains the monitoring API server configuration.
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration defaults. Load starts from these, so a
// config file only needs the keys it overrides.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:        16000,
			MaxBufferDuration: 15.0,
		},
		VAD: VADConfig{
			Threshold: 0.02,
			Debounce:  0.3,
		},
		Fast: FastConfig{
			MinChunk:      1.0,
			MinInterval:   1.0,
			MinConfidence: 0.3,
		},
		Reconcile: ReconcileConfig{
			Chunk:      3.0,
			MaxChunk:   10.0,
			AgreementN: 2,
		},
		Commit: CommitConfig{
			TempSilence:    1.5,
			FinalSilence:   3.5,
			PendingTimeout: 8.0,
			RollbackTokens: 5,
			StopGrace:      5.0,
		},
		Prompt: PromptConfig{
			CharBudget: 160,
		},
		Guard: GuardConfig{
			MaxTokens:       50,
			RepeatThreshold: 3,
		},
		Engine: EngineConfig{
			Timeout:       30.0,
			MaxRetries:    2,
			MaxConcurrent: 4,
			Serialize:     true,
		},
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    8090,
		},
		HTTP: HTTPConfig{
			Address: "0.0.0.0",
			Port:    8091,
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the complete configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}
	if err := c.Fast.Validate(); err != nil {
		return fmt.Errorf("fast config: %w", err)
	}
	if err := c.Reconcile.Validate(); err != nil {
		return fmt.Errorf("reconcile config: %w", err)
	}
	if err := c.Commit.Validate(); err != nil {
		return fmt.Errorf("commit config: %w", err)
	}
	if err := c.Prompt.Validate(); err != nil {
		return fmt.Errorf("prompt config: %w", err)
	}
	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("guard config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.MaxBufferDuration <= 0 {
		return fmt.Errorf("max_buffer_duration must be positive, got %f", a.MaxBufferDuration)
	}

	return nil
}

// Validate validates VAD configuration.
func (v *VADConfig) Validate() error {
	if v.Threshold <= 0 || v.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %f", v.Threshold)
	}

	if v.Debounce < 0 {
		return fmt.Errorf("debounce must be non-negative, got %f", v.Debounce)
	}

	return nil
}

// Validate validates fast cadence configuration.
func (f *FastConfig) Validate() error {
	if f.MinChunk <= 0 {
		return fmt.Errorf("min_chunk must be positive, got %f", f.MinChunk)
	}

	if f.MinInterval <= 0 {
		return fmt.Errorf("min_interval must be positive, got %f", f.MinInterval)
	}

	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", f.MinConfidence)
	}

	return nil
}

// Validate validates reconciliation cadence configuration.
func (r *ReconcileConfig) Validate() error {
	if r.Chunk <= 0 {
		return fmt.Errorf("chunk must be positive, got %f", r.Chunk)
	}

	if r.MaxChunk <= r.Chunk {
		return fmt.Errorf("max_chunk (%f) must be greater than chunk (%f)", r.MaxChunk, r.Chunk)
	}

	if r.AgreementN < 2 {
		return fmt.Errorf("agreement_n must be at least 2, got %d", r.AgreementN)
	}

	return nil
}

// Validate validates commit deadline configuration.
func (c *CommitConfig) Validate() error {
	if c.TempSilence <= 0 {
		return fmt.Errorf("temp_silence must be positive, got %f", c.TempSilence)
	}

	if c.FinalSilence <= c.TempSilence {
		return fmt.Errorf("final_silence (%f) must be greater than temp_silence (%f)",
			c.FinalSilence, c.TempSilence)
	}

	if c.PendingTimeout <= 0 {
		return fmt.Errorf("pending_timeout must be positive, got %f", c.PendingTimeout)
	}

	if c.RollbackTokens < 0 {
		return fmt.Errorf("rollback_tokens cannot be negative, got %d", c.RollbackTokens)
	}

	if c.StopGrace <= 0 {
		return fmt.Errorf("stop_grace must be positive, got %f", c.StopGrace)
	}

	return nil
}

// Validate validates prompt configuration.
func (p *PromptConfig) Validate() error {
	if p.CharBudget < 0 {
		return fmt.Errorf("char_budget cannot be negative, got %d", p.CharBudget)
	}

	return nil
}

// Validate validates guard configuration.
func (g *GuardConfig) Validate() error {
	if g.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", g.MaxTokens)
	}

	if g.RepeatThreshold < 2 {
		return fmt.Errorf("repeat_threshold must be at least 2, got %d", g.RepeatThreshold)
	}

	return nil
}

// Validate validates engine configuration.
func (e *EngineConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if e.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %f", e.Timeout)
	}

	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", e.MaxRetries)
	}

	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
	}

	return nil
}

// Validate validates ingest server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetDebounceDuration returns the VAD debounce as a time.Duration.
func (v *VADConfig) GetDebounceDuration() time.Duration {
	return time.Duration(v.Debounce * float64(time.Second))
}

// GetTimeoutDuration returns the engine timeout as a time.Duration.
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout * float64(time.Second))
}

// GetPendingTimeoutDuration returns the pending-age ceiling as a
// time.Duration.
func (c *CommitConfig) GetPendingTimeoutDuration() time.Duration {
	return time.Duration(c.PendingTimeout * float64(time.Second))
}

// GetStopGraceDuration returns the stop grace period as a time.Duration.
func (c *CommitConfig) GetStopGraceDuration() time.Duration {
	return time.Duration(c.StopGrace * float64(time.Second))
}
