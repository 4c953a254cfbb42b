package latency

import (
	"context"
	"errors"
	"testing"
	"time"
)

// testClock lets scenario tests drive the engine's notion of "now" in
// milliseconds.
type testClock struct {
	ms int64
}

func (c *testClock) set(ms int64)   { c.ms = ms }
func (c *testClock) now() time.Time { return time.UnixMilli(c.ms) }

func newTestEngine(cfg Config) (*Engine, *testClock) {
	e := NewEngine(cfg, nil)
	clock := &testClock{}
	e.now = clock.now
	return e, clock
}

func drainEvents(e *Engine) []Event {
	var out []Event
	for {
		select {
		case ev := <-e.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, t EventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func TestScenarioEchoDetected(t *testing.T) {
	cfg := DefaultConfig()
	e, clock := newTestEngine(cfg)

	// Volume exceeds threshold at t=5ms.
	e.speech.OnSample(EnergySample{TimestampMs: 5, Level: 40})
	if e.CurrentState() != StateSpeaking {
		t.Fatalf("expected Speaking, got %s", e.CurrentState())
	}

	// Volume drops at t=1200ms: timeout armed.
	e.speech.OnSample(EnergySample{TimestampMs: 1200, Level: 0})
	if e.CurrentState() != StateAwaitingEcho {
		t.Fatalf("expected AwaitingEcho, got %s", e.CurrentState())
	}

	// Agent audio begins at t=1950ms.
	clock.set(1950)
	e.echo.OnSample(EnergySample{TimestampMs: 1950, Level: 30})

	if e.CurrentState() != StateIdle {
		t.Fatalf("expected Idle after echo, got %s", e.CurrentState())
	}
	m, ok := e.Current()
	if !ok {
		t.Fatal("expected a recorded measurement")
	}
	if m.ValueMs != 1945 {
		t.Errorf("expected latency 1950-5=1945, got %v", m.ValueMs)
	}
	if m.Source != SourceLocal {
		t.Errorf("expected local source, got %s", m.Source)
	}

	events := drainEvents(e)
	if !hasEvent(events, UserSpeaking) || !hasEvent(events, AwaitingResponse) ||
		!hasEvent(events, EchoDetected) || !hasEvent(events, MeasurementRecorded) {
		t.Errorf("missing expected events, got %v", events)
	}
}

func TestScenarioTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EchoTimeout = 40 * time.Millisecond
	e, _ := newTestEngine(cfg)

	e.speech.OnSample(EnergySample{TimestampMs: 5, Level: 40})
	e.speech.OnSample(EnergySample{TimestampMs: 1200, Level: 0})

	time.Sleep(150 * time.Millisecond)

	if e.CurrentState() != StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", e.CurrentState())
	}
	if len(e.History()) != 0 {
		t.Errorf("timeout must not record a measurement, history %v", e.History())
	}
	if !hasEvent(drainEvents(e), TurnTimedOut) {
		t.Error("expected a TurnTimedOut event")
	}

	// A late echo must not resurrect the closed turn.
	e.echo.OnSample(EnergySample{TimestampMs: 9500, Level: 30})
	if len(e.History()) != 0 {
		t.Error("echo after timeout recorded a measurement")
	}

	// The engine accepts a new Start.
	e.speech.OnSample(EnergySample{TimestampMs: 10000, Level: 40})
	if e.CurrentState() != StateSpeaking || e.TurnSeq() != 2 {
		t.Errorf("expected a fresh Speaking turn, state=%s seq=%d", e.CurrentState(), e.TurnSeq())
	}
}

func TestEchoCancelsPendingTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EchoTimeout = 40 * time.Millisecond
	e, clock := newTestEngine(cfg)

	e.speech.OnSample(EnergySample{TimestampMs: 0, Level: 40})
	e.speech.OnSample(EnergySample{TimestampMs: 100, Level: 0})
	clock.set(120)
	e.echo.OnSample(EnergySample{TimestampMs: 120, Level: 30})

	time.Sleep(120 * time.Millisecond)

	if e.CurrentState() == StateTimedOut {
		t.Fatal("cancelled timeout still fired")
	}
	if got := len(e.History()); got != 1 {
		t.Errorf("expected exactly one measurement, got %d", got)
	}
}

func TestRedundantTriggersFirstWins(t *testing.T) {
	e, clock := newTestEngine(DefaultConfig())

	e.speech.OnSample(EnergySample{TimestampMs: 0, Level: 40})
	e.speech.OnSample(EnergySample{TimestampMs: 500, Level: 0})

	// Both triggers fire in the same tick.
	clock.set(800)
	e.PlaybackStarted()
	e.echo.OnSample(EnergySample{TimestampMs: 800, Level: 30})

	if got := len(e.History()); got != 1 {
		t.Fatalf("expected exactly one measurement from racing triggers, got %d", got)
	}
	m := e.History()[0]
	if m.ValueMs != 800 {
		t.Errorf("expected latency 800, got %v", m.ValueMs)
	}
}

func TestServerReportSupersedesLocal(t *testing.T) {
	e, clock := newTestEngine(DefaultConfig())

	e.speech.OnSample(EnergySample{TimestampMs: 0, Level: 40})
	e.speech.OnSample(EnergySample{TimestampMs: 300, Level: 0})
	clock.set(900)
	e.echo.OnSample(EnergySample{TimestampMs: 900, Level: 30})

	m, _ := e.Current()
	if m.ValueMs != 900 || m.Source != SourceLocal {
		t.Fatalf("expected local 900, got %+v", m)
	}

	err := e.HandleReport([]byte(`{"type":"processing_complete","latency_ms":450}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, _ = e.Current()
	if m.ValueMs != 450 || m.Source != SourceServer {
		t.Errorf("server report should win for display, got %+v", m)
	}
	if got := len(e.History()); got != 2 {
		t.Errorf("history must append, not replace: got %d entries", got)
	}
}

func TestServerReportAfterTimeoutIsAccepted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EchoTimeout = 30 * time.Millisecond
	e, _ := newTestEngine(cfg)

	e.speech.OnSample(EnergySample{TimestampMs: 0, Level: 40})
	e.speech.OnSample(EnergySample{TimestampMs: 100, Level: 0})
	time.Sleep(100 * time.Millisecond)
	if e.CurrentState() != StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", e.CurrentState())
	}

	if err := e.HandleReport([]byte(`{"type":"latency_update","latency_ms":620.5}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, ok := e.Current()
	if !ok || m.Source != SourceServer || m.ValueMs != 620.5 {
		t.Errorf("expected accepted server measurement, got %+v ok=%v", m, ok)
	}
	if m.TurnSeq != 1 {
		t.Errorf("expected attribution to the latest turn, got seq %d", m.TurnSeq)
	}
}

func TestCloseInvalidatesTimerAndEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EchoTimeout = 30 * time.Millisecond
	e, _ := newTestEngine(cfg)

	e.speech.OnSample(EnergySample{TimestampMs: 0, Level: 40})
	e.speech.OnSample(EnergySample{TimestampMs: 100, Level: 0})
	e.Close()

	time.Sleep(80 * time.Millisecond)

	// The pending timeout must not fire against a closed engine.
	if e.CurrentState() != StateIdle {
		t.Errorf("expected Idle after close, got %s", e.CurrentState())
	}

	// Detector input after close is ignored.
	e.speech.OnSample(EnergySample{TimestampMs: 200, Level: 40})
	if e.TurnSeq() != 1 {
		t.Errorf("closed engine opened a new turn, seq %d", e.TurnSeq())
	}

	// Channel is closed for consumers.
	for range e.Events() {
	}

	// Double close is safe.
	e.Close()
}

func TestResetSessionClearsHistory(t *testing.T) {
	e, clock := newTestEngine(DefaultConfig())

	e.speech.OnSample(EnergySample{TimestampMs: 0, Level: 40})
	clock.set(500)
	e.echo.OnSample(EnergySample{TimestampMs: 500, Level: 30})
	if len(e.History()) != 1 {
		t.Fatal("expected one measurement before reset")
	}

	e.ResetSession()
	if len(e.History()) != 0 {
		t.Error("history must be cleared on reconnect")
	}
	if e.CurrentState() != StateIdle {
		t.Errorf("expected Idle after reset, got %s", e.CurrentState())
	}

	// Still usable after reset.
	e.speech.OnSample(EnergySample{TimestampMs: 1000, Level: 40})
	if e.CurrentState() != StateSpeaking {
		t.Error("engine unusable after reset")
	}
}

func TestStartAfterClose(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())
	e.Close()
	if err := e.Start(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
}
