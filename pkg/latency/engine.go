package latency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine owns the turn window, both detectors and the measurement history for
// one connected session. All window mutation goes through the transition
// methods under a single lock; the probe loops and the transport callbacks are
// only ever readers of everything else.
type Engine struct {
	cfg    Config
	logger Logger
	store  *MeasurementStore

	sessionID string

	localProbe  *VolumeProbe
	remoteProbe *VolumeProbe
	speech      *SpeechActivityDetector
	echo        *EchoActivityDetector

	mu     sync.Mutex
	window turnWindow
	timer  *time.Timer
	closed bool

	events chan Event
	now    func() time.Time
}

// NewEngine creates an engine with the given config. If logger is nil, a
// no-op logger is used.
func NewEngine(cfg Config, logger Logger) *Engine {
	if logger == nil {
		logger = &NoOpLogger{}
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     NewMeasurementStore(cfg.HistorySize),
		sessionID: "sess_" + uuid.NewString(),
		window:    newTurnWindow(),
		events:    make(chan Event, 256),
		now:       time.Now,
	}

	e.speech = NewSpeechActivityDetector(cfg.SpeechThreshold, e.handleSpeechStart, e.handleSpeechEnd)
	e.echo = NewEchoActivityDetector(cfg.EchoThreshold, e.handleEchoTrigger)
	e.localProbe = NewVolumeProbe(ModeRMS, cfg, e.speech.OnSample)
	e.remoteProbe = NewVolumeProbe(ModeSpectrum, cfg, e.echo.OnSample)

	return e
}

// Start runs both probe loops until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.mu.Unlock()

	go func() {
		if err := e.localProbe.Run(ctx); err != nil && err != context.Canceled {
			e.logger.Warn("local probe stopped", "error", err)
		}
	}()
	go func() {
		if err := e.remoteProbe.Run(ctx); err != nil && err != context.Canceled {
			e.logger.Warn("remote probe stopped", "error", err)
		}
	}()
	e.logger.Info("latency engine started", "sessionID", e.sessionID)
	return nil
}

// LocalProbe returns the microphone-side probe. Feed it capture chunks.
func (e *Engine) LocalProbe() *VolumeProbe { return e.localProbe }

// RemoteProbe returns the agent-audio-side probe. Feed it playback chunks.
func (e *Engine) RemoteProbe() *VolumeProbe { return e.remoteProbe }

// PlaybackStarted signals the media-lifecycle echo trigger: the remote audio
// path began producing sound.
func (e *Engine) PlaybackStarted() {
	e.echo.PlaybackStarted(e.nowMs())
}

// Events returns the UI-facing event channel.
func (e *Engine) Events() <-chan Event { return e.events }

// SessionID identifies this engine's session.
func (e *Engine) SessionID() string { return e.sessionID }

// CurrentState reports the turn phase for display.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.phase
}

// TurnSeq returns the sequence number of the most recent turn.
func (e *Engine) TurnSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.turnSeq
}

// Snapshot derives statistics from the current history against the configured
// acceptable-latency target.
func (e *Engine) Snapshot() Statistics {
	return e.store.Snapshot(float64(e.cfg.AcceptableBelow.Milliseconds()))
}

// Current returns the display measurement for the newest turn (Server wins
// over Local for the same turn).
func (e *Engine) Current() (Measurement, bool) { return e.store.Current() }

// History returns a copy of the measurement history, oldest first.
func (e *Engine) History() []Measurement { return e.store.History() }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// ResetSession clears history and the turn window. Called on reconnect;
// measurement history never crosses a reconnect.
func (e *Engine) ResetSession() {
	e.mu.Lock()
	e.applyLocked(turnEvent{kind: evReset})
	e.mu.Unlock()
	e.speech.Reset()
	e.store.Clear()
	e.logger.Info("session reset", "sessionID", e.sessionID)
}

// Close tears the engine down: pending timeout cancelled, window closed,
// event channel closed. History stays readable for in-session redisplay.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.applyLocked(turnEvent{kind: evReset})
	e.closed = true
	close(e.events)
	e.logger.Info("latency engine closed", "sessionID", e.sessionID)
}

func (e *Engine) handleSpeechStart(atMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(turnEvent{kind: evSpeechStart, atMs: atMs})
}

func (e *Engine) handleSpeechEnd(atMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(turnEvent{kind: evSpeechEnd, atMs: atMs})
}

func (e *Engine) handleEchoTrigger(atMs int64, trigger EchoTrigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(turnEvent{kind: evEchoTrigger, atMs: atMs, trigger: trigger})
}

func (e *Engine) handleTimeout(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(turnEvent{kind: evTimeout, atMs: e.nowMs(), timerGen: gen})
}

// applyLocked runs one transition and executes its actions. Caller holds the
// lock.
func (e *Engine) applyLocked(ev turnEvent) {
	if e.closed {
		return
	}

	next, acts := transition(e.window, ev)
	e.window = next

	if acts.cancelTimer && e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if acts.armTimer {
		gen := next.timerGen
		e.timer = time.AfterFunc(e.cfg.EchoTimeout, func() {
			e.handleTimeout(gen)
		})
	}
	if acts.record {
		m := Measurement{
			ValueMs:      acts.latencyMs,
			Source:       SourceLocal,
			MeasuredAtMs: e.nowMs(),
			TurnSeq:      next.turnSeq,
		}
		e.store.Record(m)
		e.logger.Info("local latency measured",
			"sessionID", e.sessionID, "turn", m.TurnSeq,
			"latencyMs", m.ValueMs, "trigger", string(ev.trigger))
		e.emitLocked(MeasurementRecorded, m)
	}
	if acts.emitSet {
		switch acts.emit {
		case EchoDetected:
			e.emitLocked(acts.emit, string(ev.trigger))
		case TurnTimedOut:
			e.logger.Warn("no response within timeout",
				"sessionID", e.sessionID, "turn", next.turnSeq)
			e.emitLocked(acts.emit, nil)
		default:
			e.emitLocked(acts.emit, nil)
		}
	}
}

// emitLocked pushes a UI event without ever blocking detection. The UI is an
// observer; if it falls behind, events are dropped.
func (e *Engine) emitLocked(eventType EventType, data interface{}) {
	select {
	case e.events <- Event{Type: eventType, SessionID: e.sessionID, Data: data}:
	default:
		e.logger.Debug("event dropped, consumer behind", "type", string(eventType))
	}
}

func (e *Engine) nowMs() int64 {
	return e.now().UnixMilli()
}
