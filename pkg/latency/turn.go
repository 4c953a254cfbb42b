package latency

type turnEventKind int

const (
	evSpeechStart turnEventKind = iota
	evSpeechEnd
	evEchoTrigger
	evTimeout
	evReset
)

type turnEvent struct {
	kind turnEventKind
	atMs int64
	// timerGen is carried by evTimeout so a stale timer can never close a
	// newer turn.
	timerGen uint64
	trigger  EchoTrigger
}

// turnWindow is the measurement window owned by the engine. Invariant: at
// most one window is open at any instant, and speechStartMs never changes
// while it is open. Latency is only meaningful as "time since this turn's
// speech began".
type turnWindow struct {
	phase         State
	open          bool
	speechStartMs int64
	awaitingEcho  bool
	turnSeq       uint64
	timerGen      uint64
}

func newTurnWindow() turnWindow {
	return turnWindow{phase: StateIdle}
}

// turnActions is what the engine must do after a transition: timer
// bookkeeping, at most one local measurement, and a UI event.
type turnActions struct {
	armTimer    bool
	cancelTimer bool
	record      bool
	latencyMs   float64
	emit        EventType
	emitSet     bool
}

// transition is the whole turn state machine. Pure: no clocks, no locks, no
// side effects, which keeps every sequence of speech/echo/timeout events
// directly testable.
func transition(w turnWindow, ev turnEvent) (turnWindow, turnActions) {
	switch ev.kind {
	case evSpeechStart:
		if w.open {
			// Re-arm the same window; speechStartMs stays put.
			if w.phase == StateAwaitingEcho {
				w.phase = StateSpeaking
				return w, turnActions{cancelTimer: true, emit: UserSpeaking, emitSet: true}
			}
			return w, turnActions{}
		}
		w = turnWindow{
			phase:         StateSpeaking,
			open:          true,
			speechStartMs: ev.atMs,
			awaitingEcho:  true,
			turnSeq:       w.turnSeq + 1,
			timerGen:      w.timerGen,
		}
		return w, turnActions{cancelTimer: true, emit: UserSpeaking, emitSet: true}

	case evSpeechEnd:
		if !w.open || w.phase != StateSpeaking {
			return w, turnActions{}
		}
		w.phase = StateAwaitingEcho
		w.timerGen++
		return w, turnActions{armTimer: true, emit: AwaitingResponse, emitSet: true}

	case evEchoTrigger:
		// Single check-and-set: once the window closes, every later
		// trigger for the same turn is a no-op.
		if !w.open || !w.awaitingEcho {
			return w, turnActions{}
		}
		latency := float64(ev.atMs - w.speechStartMs)
		w.phase = StateIdle
		w.open = false
		w.awaitingEcho = false
		w.timerGen++
		return w, turnActions{
			cancelTimer: true,
			record:      true,
			latencyMs:   latency,
			emit:        EchoDetected,
			emitSet:     true,
		}

	case evTimeout:
		if !w.open || w.phase != StateAwaitingEcho || ev.timerGen != w.timerGen {
			return w, turnActions{}
		}
		w.phase = StateTimedOut
		w.open = false
		w.awaitingEcho = false
		return w, turnActions{emit: TurnTimedOut, emitSet: true}

	case evReset:
		gen := w.timerGen + 1
		return turnWindow{phase: StateIdle, turnSeq: w.turnSeq, timerGen: gen},
			turnActions{cancelTimer: true}
	}

	return w, turnActions{}
}
