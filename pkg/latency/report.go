package latency

import (
	"encoding/json"
	"fmt"
)

// Message kinds delivered by the agent pipeline over the session's
// out-of-band channel.
const (
	MsgProcessingStart    = "processing_start"
	MsgProcessingComplete = "processing_complete"
	MsgLatencyUpdate      = "latency_update"
)

type reportEnvelope struct {
	Type string `json:"type"`
}

type processingStartReport struct {
	Timestamp float64 `json:"timestamp"`
}

type processingCompleteReport struct {
	LatencyMs        float64  `json:"latency_ms"`
	AverageLatencyMs *float64 `json:"average_latency_ms,omitempty"`
	MeasurementCount *int     `json:"measurement_count,omitempty"`
	TTSText          string   `json:"tts_text,omitempty"`
}

type latencyUpdateReport struct {
	LatencyMs     float64  `json:"latency_ms"`
	Timestamp     *float64 `json:"timestamp,omitempty"`
	ResponseCount *int     `json:"response_count,omitempty"`
}

// HandleReport consumes one raw JSON message from the agent side. Malformed
// payloads are logged and dropped, unknown kinds are logged and ignored;
// neither touches engine state and nothing here is fatal to the session.
func (e *Engine) HandleReport(raw []byte) error {
	var env reportEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		e.logger.Error("dropping unparseable agent report", "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	switch env.Type {
	case MsgProcessingStart:
		var msg processingStartReport
		if err := json.Unmarshal(raw, &msg); err != nil {
			e.logger.Error("dropping malformed processing_start", "error", err)
			return fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}
		e.logger.Debug("agent processing started", "timestamp", msg.Timestamp)
		e.emitReport(AgentProcessing, nil)
		return nil

	case MsgProcessingComplete:
		var msg processingCompleteReport
		if err := json.Unmarshal(raw, &msg); err != nil {
			e.logger.Error("dropping malformed processing_complete", "error", err)
			return fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}
		if msg.TTSText != "" {
			e.logger.Debug("agent response text", "text", msg.TTSText)
		}
		e.recordServer(msg.LatencyMs)
		return nil

	case MsgLatencyUpdate:
		var msg latencyUpdateReport
		if err := json.Unmarshal(raw, &msg); err != nil {
			e.logger.Error("dropping malformed latency_update", "error", err)
			return fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}
		e.recordServer(msg.LatencyMs)
		return nil

	default:
		e.logger.Warn("ignoring unknown agent report type", "type", env.Type)
		return nil
	}
}

// recordServer appends an authoritative measurement. It is attributed to the
// latest turn, whether or not that turn's window is still open: a report
// arriving after a local timeout is accepted rather than discarded. It never
// touches the turn window, so the speech/echo path is unaffected.
func (e *Engine) recordServer(latencyMs float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	m := Measurement{
		ValueMs:      latencyMs,
		Source:       SourceServer,
		MeasuredAtMs: e.nowMs(),
		TurnSeq:      e.window.turnSeq,
	}
	e.store.Record(m)
	e.logger.Info("authoritative latency reported",
		"sessionID", e.sessionID, "turn", m.TurnSeq, "latencyMs", m.ValueMs)
	e.emitLocked(MeasurementRecorded, m)
}

// emitReport emits outside a transition, still serialized by the engine lock.
func (e *Engine) emitReport(eventType EventType, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.emitLocked(eventType, data)
}
