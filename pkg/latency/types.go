package latency

import "time"

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// Source tells where a measurement came from. Server values are authoritative
// and supersede the local heuristic for display.
type Source string

const (
	SourceLocal  Source = "local"
	SourceServer Source = "server"
)

// State is the turn-taking phase exposed to the UI.
type State string

const (
	StateIdle         State = "IDLE"
	StateSpeaking     State = "SPEAKING"
	StateAwaitingEcho State = "AWAITING_ECHO"
	StateTimedOut     State = "TIMED_OUT"
)

// EnergySample is one probe reading. Level is on a 0-100 scale and is not
// retained beyond the tick's threshold decision.
type EnergySample struct {
	TimestampMs int64
	Level       float64
}

// Measurement is one latency sample, immutable once stored.
type Measurement struct {
	ValueMs      float64 `json:"value_ms"`
	Source       Source  `json:"source"`
	MeasuredAtMs int64   `json:"measured_at_ms"`
	TurnSeq      uint64  `json:"turn_seq"`
}

type EventType string

const (
	UserSpeaking        EventType = "USER_SPEAKING"
	AwaitingResponse    EventType = "AWAITING_RESPONSE"
	EchoDetected        EventType = "ECHO_DETECTED"
	TurnTimedOut        EventType = "TURN_TIMED_OUT"
	AgentProcessing     EventType = "AGENT_PROCESSING"
	MeasurementRecorded EventType = "MEASUREMENT_RECORDED"
	ErrorEvent          EventType = "ERROR"
)

// Event is pushed to the UI collaborator. The engine only sets values; it
// never renders.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

type Config struct {
	SampleRate   int
	Channels     int
	BytesPerSamp int
	// GainFactor scales the raw microphone RMS before it hits the 0-100
	// level scale. Empirically 5x.
	GainFactor float64
	// SpeechThreshold and EchoThreshold are on the post-gain 0-100 scale.
	SpeechThreshold float64
	EchoThreshold   float64
	// TickRate is the probe polling cadence in samples per second.
	TickRate int
	// EchoTimeout abandons the measurement window after speech end.
	EchoTimeout time.Duration
	HistorySize int
	// Display bands for the quality label.
	ExcellentBelow  time.Duration
	AcceptableBelow time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      44100,
		Channels:        1,
		BytesPerSamp:    2,
		GainFactor:      5,
		SpeechThreshold: 5,
		EchoThreshold:   5,
		TickRate:        60,
		EchoTimeout:     8 * time.Second,
		HistorySize:     20,
		ExcellentBelow:  300 * time.Millisecond,
		AcceptableBelow: 600 * time.Millisecond,
	}
}

// QualityLabel maps a latency value onto the fixed display bands.
func (c Config) QualityLabel(valueMs float64) string {
	switch {
	case valueMs < float64(c.ExcellentBelow.Milliseconds()):
		return "excellent"
	case valueMs <= float64(c.AcceptableBelow.Milliseconds()):
		return "acceptable"
	default:
		return "poor"
	}
}
