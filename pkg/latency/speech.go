package latency

import "sync"

// SpeechActivityDetector turns the local probe's level signal into
// speech-start / speech-end transitions. A single threshold with no extra
// hysteresis: boundary jitter is acceptable because a premature start re-arms
// the same window and a premature end only starts the abandon timeout early.
type SpeechActivityDetector struct {
	threshold float64

	// speaking is read and written on the probe's tick goroutine, but Reset
	// runs on whichever goroutine tears the session down.
	mu       sync.Mutex
	speaking bool

	onStart func(atMs int64)
	onEnd   func(atMs int64)
}

func NewSpeechActivityDetector(threshold float64, onStart, onEnd func(atMs int64)) *SpeechActivityDetector {
	return &SpeechActivityDetector{
		threshold: threshold,
		onStart:   onStart,
		onEnd:     onEnd,
	}
}

// OnSample consumes one probe reading. Called from the local probe's tick
// goroutine only; the callback fires outside the lock so it may take the
// engine's.
func (d *SpeechActivityDetector) OnSample(s EnergySample) {
	isSpeaking := s.Level > d.threshold

	d.mu.Lock()
	var fire func(atMs int64)
	switch {
	case isSpeaking && !d.speaking:
		d.speaking = true
		fire = d.onStart
	case !isSpeaking && d.speaking:
		d.speaking = false
		fire = d.onEnd
	}
	d.mu.Unlock()

	if fire != nil {
		fire(s.TimestampMs)
	}
}

// IsSpeaking reports whether the last sample was above threshold.
func (d *SpeechActivityDetector) IsSpeaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// Reset clears detector state on session teardown.
func (d *SpeechActivityDetector) Reset() {
	d.mu.Lock()
	d.speaking = false
	d.mu.Unlock()
}
