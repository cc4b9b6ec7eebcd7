package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Onesoul0606/WhisperSTT/internal/audio"
	"github.com/Onesoul0606/WhisperSTT/internal/config"
	"github.com/Onesoul0606/WhisperSTT/internal/engine"
	"github.com/Onesoul0606/WhisperSTT/internal/metrics"
	"github.com/Onesoul0606/WhisperSTT/internal/stream"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB of PCM per frame
)

// WSServer accepts websocket connections carrying raw PCM16LE audio and
// streams transcript events back as JSON messages. Each connection owns
// one streaming controller.
type WSServer struct {
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger
	config   *config.Config
	engine   engine.Engine
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*stream.Controller
}

// transcriptMessage is the outbound JSON envelope for transcript events.
type transcriptMessage struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Tokens     []tokenMessage `json:"tokens,omitempty"`
}

type tokenMessage struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// NewWSServer creates a websocket ingest server.
func NewWSServer(cfg *config.Config, logger *slog.Logger, eng engine.Engine, m *metrics.Metrics) *WSServer {
	s := &WSServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The service sits behind trusted infrastructure; origin
			// policy is enforced upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   logger,
		config:   cfg,
		engine:   eng,
		metrics:  m,
		sessions: make(map[string]*stream.Controller),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", s.handleStream)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:     mux,
		ReadTimeout: 0, // websocket connections are long-lived
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Start begins accepting websocket connections.
func (s *WSServer) Start() error {
	s.logger.Info("Starting websocket ingest server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Websocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop shuts the listener down and stops every live session.
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping websocket ingest server...")

	s.mu.Lock()
	controllers := make([]*stream.Controller, 0, len(s.sessions))
	for _, c := range s.sessions {
		controllers = append(controllers, c)
	}
	s.mu.Unlock()

	for _, c := range controllers {
		c.Stop()
	}

	return s.server.Shutdown(ctx)
}

// SessionStats returns a stats snapshot for every live session.
func (s *WSServer) SessionStats() []stream.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]stream.Stats, 0, len(s.sessions))
	for _, c := range s.sessions {
		out = append(out, c.GetStats())
	}
	return out
}

// SessionStatsByID returns the stats snapshot for one session.
func (s *WSServer) SessionStatsByID(id string) (stream.Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sessions[id]
	if !ok {
		return stream.Stats{}, false
	}
	return c.GetStats(), true
}

// ActiveSessionCount returns the number of live sessions.
func (s *WSServer) ActiveSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// handleStream upgrades the connection and runs one streaming session on
// it until the client disconnects or sends a stop command.
func (s *WSServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	controller, err := stream.NewController(streamConfig(s.config), s.logger, s.engine, s.metrics)
	if err != nil {
		s.logger.Error("Failed to create streaming controller",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := controller.Start(); err != nil {
		s.logger.Error("Failed to start streaming controller",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.sessions[controller.ID] = controller
	s.mu.Unlock()

	s.logger.Info("Websocket session opened",
		slog.String("session_id", controller.ID),
		slog.String("remote", r.RemoteAddr),
	)

	defer func() {
		controller.Stop()
		s.mu.Lock()
		delete(s.sessions, controller.ID)
		s.mu.Unlock()
		s.logger.Info("Websocket session closed",
			slog.String("session_id", controller.ID),
		)
	}()

	// Writer: transcript events out, pings for liveness.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeEvents(conn, controller)
	}()

	s.readAudio(conn, controller)

	// Stop flushes the final events; let the writer drain them.
	controller.Stop()
	select {
	case <-writerDone:
	case <-time.After(writeWait):
	}
}

// readAudio pumps inbound frames into the controller until the
// connection closes. Binary frames carry PCM16LE samples at the
// configured rate; a text frame "stop" ends the session.
func (s *WSServer) readAudio(conn *websocket.Conn, controller *stream.Controller) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Websocket read error",
					slog.String("session_id", controller.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			samples, err := audio.PCM16BytesToFloat32(data)
			if err != nil {
				s.logger.Warn("Dropping malformed audio frame",
					slog.String("session_id", controller.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := controller.AppendAudio(samples, s.config.Audio.SampleRate); err != nil {
				s.logger.Warn("Audio append rejected",
					slog.String("session_id", controller.ID),
					slog.String("error", err.Error()),
				)
				return
			}

		case websocket.TextMessage:
			if string(data) == "stop" {
				return
			}
		}
	}
}

// writeEvents forwards controller events to the client until the
// controller finishes.
func (s *WSServer) writeEvents(conn *websocket.Conn, controller *stream.Controller) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-controller.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(eventToMessage(ev)); err != nil {
				return
			}

		case <-controller.Done():
			// The final flush events were queued before Done closed;
			// drain what remains, then finish.
			for {
				select {
				case ev := <-controller.Events():
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteJSON(eventToMessage(ev)); err != nil {
						return
					}
				default:
					return
				}
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventToMessage converts a transcript event to its wire envelope.
func eventToMessage(ev stream.Event) transcriptMessage {
	switch e := ev.(type) {
	case stream.Temporary:
		return transcriptMessage{Type: "temporary", Text: e.Text, Confidence: e.Confidence}
	case stream.Confirmed:
		msg := transcriptMessage{Type: "confirmed", Text: e.Text}
		for _, t := range e.Tokens {
			msg.Tokens = append(msg.Tokens, tokenMessage{Start: t.Start, End: t.End, Text: t.Text})
		}
		return msg
	case stream.Final:
		return transcriptMessage{Type: "final"}
	default:
		return transcriptMessage{Type: "unknown"}
	}
}

// streamConfig maps the application configuration onto controller
// configuration.
func streamConfig(cfg *config.Config) stream.Config {
	return stream.Config{
		SampleRate:        cfg.Audio.SampleRate,
		MaxBufferDuration: cfg.Audio.MaxBufferDuration,
		VADThreshold:      cfg.VAD.Threshold,
		VADDebounce:       cfg.VAD.Debounce,
		FastMinChunk:      cfg.Fast.MinChunk,
		FastMinInterval:   time.Duration(cfg.Fast.MinInterval * float64(time.Second)),
		FastMinConfidence: cfg.Fast.MinConfidence,
		ReconcileChunk:    cfg.Reconcile.Chunk,
		ReconcileMaxChunk: cfg.Reconcile.MaxChunk,
		AgreementN:        cfg.Reconcile.AgreementN,
		Timers: stream.SilenceTimers{
			TempFlush:      cfg.Commit.TempSilence,
			FinalCommit:    cfg.Commit.FinalSilence,
			PendingTimeout: cfg.Commit.GetPendingTimeoutDuration(),
		},
		RollbackTokens:   cfg.Commit.RollbackTokens,
		PromptCharBudget: cfg.Prompt.CharBudget,
		GuardMaxTokens:   cfg.Guard.MaxTokens,
		GuardRepeats:     cfg.Guard.RepeatThreshold,
		GuardDenylist:    cfg.Guard.Denylist,
		EngineTimeout:    cfg.Engine.GetTimeoutDuration(),
		SerializeEngine:  cfg.Engine.Serialize,
		StopGrace:        cfg.Commit.GetStopGraceDuration(),
	}
}
